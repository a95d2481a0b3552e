package kafka

import (
	"context"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
)

// NopPublisher используется, когда KAFKA_BROKERS не задан.
type NopPublisher struct{}

func (NopPublisher) PublishMatchEvent(context.Context, *domain.MatchEvent) error {
	return nil
}
