package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"github.com/DRSN-tech/visual-matcher/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// CatalogUseCase реализует офлайн-векторизацию каталога: для каждой строки загружает изображение,
// получает вектор у ML-сервиса и сохраняет каталог в выбранное хранилище.
type CatalogUseCase struct {
	datasetRepo DatasetRepository
	catalogRepo CatalogRepository
	imageRepo   ImageRepository
	mlService   MlServiceInfra
	imagesInfra ImagesInfra
	metrics     MetricsInfra
	logger      logger.Logger
	vectorSize  int
}

func NewCatalogUC(
	datasetRepo DatasetRepository,
	catalogRepo CatalogRepository,
	imageRepo ImageRepository,
	mlService MlServiceInfra,
	imagesInfra ImagesInfra,
	metrics MetricsInfra,
	logger logger.Logger,
	vectorSize int,
) *CatalogUseCase {
	return &CatalogUseCase{
		datasetRepo: datasetRepo,
		catalogRepo: catalogRepo,
		imageRepo:   imageRepo,
		mlService:   mlService,
		imagesInfra: imagesInfra,
		metrics:     metrics,
		logger:      logger,
		vectorSize:  vectorSize,
	}
}

// GenerateEmbeddings векторизует все товары исходного набора и сохраняет каталог.
// Ошибка одной строки не прерывает обработку: строка получает нулевой вектор и помечается невалидной.
func (c *CatalogUseCase) GenerateEmbeddings(ctx context.Context, req *GenerateEmbeddingsReq) (*GenerateEmbeddingsRes, error) {
	const op = "CatalogUseCase.GenerateEmbeddings"

	products, err := c.datasetRepo.ReadProducts(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if len(products) == 0 {
		return nil, e.Wrap(op, e.ErrEmptyCatalog)
	}

	parallel := req.Parallel
	if parallel <= 0 {
		parallel = 1
	}

	var (
		total   = len(products)
		items   = make([]domain.CatalogItem, total)
		errs    = make([]error, total)
		g, gctx = errgroup.WithContext(ctx)
	)
	g.SetLimit(parallel)

	for i, product := range products {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			vector, err := c.embedProduct(gctx, product)
			if err != nil {
				errs[i] = err
				items[i] = domain.NewCatalogItem(product, make([]float32, c.vectorSize), false)
				c.metrics.ObserveBatchRow(RowFailed)
				c.logger.Warnf("[%d/%d] failed: %s: %v", i+1, total, product.Name, err)
				return nil
			}

			items[i] = domain.NewCatalogItem(product, vector, true)
			c.metrics.ObserveBatchRow(RowEmbedded)
			c.logger.Infof("[%d/%d] embedded: %s", i+1, total, product.Name)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, e.Wrap(op, err)
	}

	catalog, err := domain.NewCatalog(items)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if err := c.catalogRepo.Save(ctx, catalog); err != nil {
		return nil, e.Wrap(op, err)
	}

	res := &GenerateEmbeddingsRes{Total: total}
	for i, err := range errs {
		if err != nil {
			res.Failed = append(res.Failed, FailedRow{Index: i, Name: products[i].Name, Err: err})
		}
	}
	res.Embedded = total - len(res.Failed)

	return res, nil
}

// LoadCatalog читает сохранённый каталог.
func (c *CatalogUseCase) LoadCatalog(ctx context.Context) (*domain.Catalog, error) {
	const op = "CatalogUseCase.LoadCatalog"

	catalog, err := c.catalogRepo.Load(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return catalog, nil
}

// embedProduct загружает и нормализует изображение товара и возвращает его вектор.
func (c *CatalogUseCase) embedProduct(ctx context.Context, product domain.Product) ([]float32, error) {
	image, err := c.loadProductImage(ctx, product)
	if err != nil {
		return nil, err
	}

	normalized, err := c.imagesInfra.Normalize(image)
	if err != nil {
		return nil, err
	}

	vectors, err := c.mlService.VectorizeRequest(ctx, NewVectorizeReq(*normalized))
	if err != nil {
		return nil, err
	}

	if len(vectors) == 0 || len(vectors[0].Vector) == 0 {
		return nil, e.ErrVectorEmbeddingEmpty
	}

	if len(vectors[0].Vector) != c.vectorSize {
		return nil, fmt.Errorf("%w: got %d, want %d", e.ErrDimensionMismatch, len(vectors[0].Vector), c.vectorSize)
	}

	return vectors[0].Vector, nil
}

// loadProductImage сначала пробует удалённый URL, затем локальную ссылку на изображение.
func (c *CatalogUseCase) loadProductImage(ctx context.Context, product domain.Product) (*domain.Image, error) {
	var urlErr error
	if isRemoteURL(product.ImageURL) {
		image, err := c.imagesInfra.Fetch(ctx, product.ImageURL)
		if err == nil {
			return image, nil
		}
		urlErr = err
	}

	if strings.TrimSpace(product.ImagePath) != "" {
		image, err := c.imageRepo.Read(ctx, product.ImagePath)
		if err != nil {
			return nil, errors.Join(urlErr, err)
		}

		return image, nil
	}

	if urlErr != nil {
		return nil, urlErr
	}

	return nil, e.ErrNoImageSource
}

func isRemoteURL(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
