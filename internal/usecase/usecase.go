package usecase

import (
	"context"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
)

type MatchUC interface {
	Match(ctx context.Context, req *MatchReq) (*MatchRes, error)
	Categories() []string
	CatalogStats(ctx context.Context) (*CatalogStats, error)
}

type CatalogUC interface {
	GenerateEmbeddings(ctx context.Context, req *GenerateEmbeddingsReq) (*GenerateEmbeddingsRes, error)
	LoadCatalog(ctx context.Context) (*domain.Catalog, error)
}
