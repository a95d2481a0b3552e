package kafka

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/DRSN-tech/visual-matcher/internal/usecase"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"github.com/DRSN-tech/visual-matcher/pkg/jitter"
	"github.com/DRSN-tech/visual-matcher/pkg/logger"
)

var (
	// ErrOutboxFull возвращается, когда буфер событий переполнен и событие отброшено.
	ErrOutboxFull = errors.New("match event outbox is full")
	// ErrOutboxStopped возвращается для событий, поступивших после Stop.
	ErrOutboxStopped = errors.New("match event outbox is stopped")
)

// OutboxWorker буферизует события поиска и отправляет их в фоне,
// повторяя попытку при временных сбоях брокера. Поиск никогда не ждёт Kafka.
type OutboxWorker struct {
	publisher  usecase.EventsInfra
	logger     logger.Logger
	events     chan *domain.MatchEvent
	backoff    *jitter.Backoff
	maxRetries int
	stop       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewOutboxWorker(publisher usecase.EventsInfra, logger logger.Logger, bufferSize int) *OutboxWorker {
	return &OutboxWorker{
		publisher:  publisher,
		logger:     logger,
		events:     make(chan *domain.MatchEvent, max(bufferSize, 1)),
		backoff:    jitter.NewBackoff(100*time.Millisecond, 2*time.Second, jitter.DefaultJitter),
		maxRetries: 3,
		stop:       make(chan struct{}),
	}
}

// PublishMatchEvent ставит событие в очередь. Если очередь заполнена, событие отбрасывается.
func (w *OutboxWorker) PublishMatchEvent(_ context.Context, event *domain.MatchEvent) error {
	select {
	case <-w.stop:
		return e.Wrap("OutboxWorker.PublishMatchEvent", ErrOutboxStopped)
	default:
	}

	select {
	case w.events <- event:
		return nil
	default:
		return e.Wrap("OutboxWorker.PublishMatchEvent", ErrOutboxFull)
	}
}

func (w *OutboxWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Stop прекращает приём событий и ждёт отправки уже накопленных, но не дольше ctx.
func (w *OutboxWorker) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stop) })

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return e.Wrap("OutboxWorker.Stop", ctx.Err())
	}
}

func (w *OutboxWorker) run(ctx context.Context) {
	for {
		select {
		case event := <-w.events:
			w.processEvent(ctx, event)
		case <-w.stop:
			w.drain(ctx)
			return
		case <-ctx.Done():
			w.logger.Infof("Outbox worker stopped by context cancellation, %d events dropped", len(w.events))
			return
		}
	}
}

// drain отправляет события, оставшиеся в очереди на момент остановки.
func (w *OutboxWorker) drain(ctx context.Context) {
	w.logger.Infof("Draining %d pending match events...", len(w.events))
	for {
		select {
		case event := <-w.events:
			w.processEvent(ctx, event)
		default:
			return
		}
	}
}

func (w *OutboxWorker) processEvent(ctx context.Context, event *domain.MatchEvent) {
	for attempt := 0; attempt < w.maxRetries; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := w.publisher.PublishMatchEvent(sendCtx, event)
		cancel()
		if err == nil {
			return
		}

		if !isRetryableError(err) || attempt == w.maxRetries-1 {
			w.logger.Warnf("match event %s dropped: %v", event.EventID, err)
			return
		}

		select {
		case <-time.After(w.backoff.Next(attempt)):
		case <-ctx.Done():
			return
		}
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	retryablePhrases := []string{
		"connection refused",
		"i/o timeout",
		"network is unreachable",
		"broker not available",
		"leader not available",
		"connection reset",
		"broken pipe",
		"no such host",
	}
	for _, phrase := range retryablePhrases {
		if strings.Contains(errStr, phrase) {
			return true
		}
	}
	return false
}
