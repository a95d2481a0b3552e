package converter

import (
	"time"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
)

func ToRedisModel(entity *domain.Embedding, now time.Time) *EmbeddingRedisModel {
	return &EmbeddingRedisModel{
		Vector:       entity.Vector,
		ModelVersion: entity.ModelVersion,
		CachedAt:     now.Unix(),
	}
}

func ToDomain(model *EmbeddingRedisModel) *domain.Embedding {
	return domain.NewEmbedding(model.Vector, model.ModelVersion)
}
