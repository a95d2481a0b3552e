// Package logger предоставляет минимальный интерфейс логирования поверх log/slog.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger — интерфейс логгера, который используется во всех слоях приложения.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(err error, format string, args ...any)
	With(args ...any) Logger
}

// SlogLogger реализует Logger поверх *slog.Logger.
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger создаёт логгер, настроенный из LOG_LEVEL и LOG_FORMAT.
// Конфиг приложения в этот момент ещё не загружен, поэтому переменные читаются напрямую.
func NewSlogLogger() *SlogLogger {
	return NewSlogLoggerWithWriter(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// NewSlogLoggerWithWriter создаёт логгер с явным writer'ом, уровнем (debug|info|warn|error)
// и форматом (json|text).
func NewSlogLoggerWithWriter(w io.Writer, level, format string) *SlogLogger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &SlogLogger{log: slog.New(handler)}
}

// NewNopLogger возвращает логгер, который ничего не пишет. Удобен в тестах.
func NewNopLogger() *SlogLogger {
	return NewSlogLoggerWithWriter(io.Discard, "error", "text")
}

func (l *SlogLogger) Debugf(format string, args ...any) {
	l.logf(slog.LevelDebug, format, args...)
}

func (l *SlogLogger) Infof(format string, args ...any) {
	l.logf(slog.LevelInfo, format, args...)
}

func (l *SlogLogger) Warnf(format string, args ...any) {
	l.logf(slog.LevelWarn, format, args...)
}

// Errorf пишет сообщение уровня error, добавляя ошибку отдельным атрибутом.
func (l *SlogLogger) Errorf(err error, format string, args ...any) {
	if !l.log.Enabled(context.Background(), slog.LevelError) {
		return
	}

	if err != nil {
		l.log.Error(fmt.Sprintf(format, args...), slog.String("error", err.Error()))
		return
	}

	l.log.Error(fmt.Sprintf(format, args...))
}

// With возвращает дочерний логгер с дополнительными атрибутами.
func (l *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{log: l.log.With(args...)}
}

func (l *SlogLogger) logf(level slog.Level, format string, args ...any) {
	if !l.log.Enabled(context.Background(), level) {
		return
	}

	l.log.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
