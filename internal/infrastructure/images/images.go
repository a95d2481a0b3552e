// Package images скачивает и нормализует изображения для ML-сервиса.
package images

import (
	"github.com/DRSN-tech/visual-matcher/internal/cfg"
	"golang.org/x/time/rate"
)

// Images объединяет загрузку и нормализацию изображений.
type Images struct {
	*Fetcher
	*Processor
}

// NewImages создаёт инфраструктуру изображений из конфигурации. limiter может быть nil.
func NewImages(cfg *cfg.ImagesCfg, limiter *rate.Limiter) *Images {
	return &Images{
		Fetcher:   NewFetcher(cfg.FetchTimeout, cfg.MaxBytes, limiter),
		Processor: NewProcessor(cfg.TargetSize, cfg.JPEGQuality),
	}
}

// NewBatchLimiter создаёт ограничитель скорости загрузки для batch-векторизации.
// Неположительный FetchRPS отключает ограничение.
func NewBatchLimiter(cfg *cfg.ImagesCfg) *rate.Limiter {
	if cfg.FetchRPS <= 0 {
		return nil
	}

	return rate.NewLimiter(rate.Limit(cfg.FetchRPS), max(int(cfg.FetchRPS), 1))
}
