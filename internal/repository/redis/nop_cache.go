package redis

import (
	"context"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
)

// NopCache используется, когда Redis не настроен: всегда промах.
type NopCache struct{}

func (NopCache) GetEmbedding(context.Context, string) (*domain.Embedding, error) {
	return nil, nil
}

func (NopCache) SetEmbedding(context.Context, string, *domain.Embedding) error {
	return nil
}
