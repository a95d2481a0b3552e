package usecase

import (
	"context"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
)

// CatalogRepository хранит каталог вместе с векторами (файл, PostgreSQL или Qdrant).
type CatalogRepository interface {
	Load(ctx context.Context) (*domain.Catalog, error)
	Save(ctx context.Context, catalog *domain.Catalog) error
}

// DatasetRepository читает исходный табличный список товаров для batch-векторизации.
type DatasetRepository interface {
	ReadProducts(ctx context.Context) ([]domain.Product, error)
}

// EmbeddingCacheRepository кэширует векторы запросов по хэшу нормализованного изображения.
// Промах возвращает (nil, nil).
type EmbeddingCacheRepository interface {
	GetEmbedding(ctx context.Context, key string) (*domain.Embedding, error)
	SetEmbedding(ctx context.Context, key string, embedding *domain.Embedding) error
}

// ImageRepository читает локальные изображения товаров (файловая система или MinIO).
type ImageRepository interface {
	Read(ctx context.Context, path string) (*domain.Image, error)
}
