package usecase

import (
	"context"
	"time"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
)

type MlServiceInfra interface {
	VectorizeRequest(ctx context.Context, req *VectorizeReq) ([]VectorizeRes, error)
}

type ImagesInfra interface {
	Fetch(ctx context.Context, url string) (*domain.Image, error)
	Normalize(image *domain.Image) (*domain.Image, error)
}

type EventsInfra interface {
	PublishMatchEvent(ctx context.Context, event *domain.MatchEvent) error
}

type MetricsInfra interface {
	ObserveMatch(outcome string)
	ObserveEmbedding(d time.Duration, cacheHit bool)
	SetCatalogSize(total, valid int)
	ObserveBatchRow(status string)
}
