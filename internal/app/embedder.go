package app

import (
	"context"
	"time"

	config "github.com/DRSN-tech/visual-matcher/internal/cfg"
	"github.com/DRSN-tech/visual-matcher/internal/infrastructure/images"
	fileRepo "github.com/DRSN-tech/visual-matcher/internal/repository/file"
	"github.com/DRSN-tech/visual-matcher/internal/usecase"
	"github.com/DRSN-tech/visual-matcher/pkg/closer"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"github.com/DRSN-tech/visual-matcher/pkg/logger"
	"github.com/DRSN-tech/visual-matcher/pkg/metrics"
	"github.com/jimlawless/whereami"
)

// Embedder — офлайн-задача векторизации каталога.
type Embedder struct {
	catalogUC usecase.CatalogUC
	metrics   *metrics.Prometheus
	closer    *closer.Closer
	logger    logger.Logger
}

// NewEmbedder собирает зависимости batch-задачи. Исходный CSV читается из cfg.Catalog.CSVPath,
// результат пишется в хранилище, выбранное CATALOG_SOURCE.
func NewEmbedder(cfg *config.Config, log logger.Logger) (emb *Embedder, err error) {
	cl := closer.NewCloser(2 * time.Second)
	defer func() {
		if err != nil {
			_ = cl.Close(context.Background())
		}
	}()

	catalogRepo, err := newCatalogRepo(cfg, log, cl)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	imageRepo, err := newImageRepo(cfg, log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	ml, err := newMLService(cfg, log, cl)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	m := metrics.NewPrometheus()
	catalogUC := usecase.NewCatalogUC(
		fileRepo.NewDatasetRepo(cfg.Catalog.CSVPath),
		catalogRepo,
		imageRepo,
		ml,
		images.NewImages(cfg.Images, images.NewBatchLimiter(cfg.Images)),
		m,
		log,
		cfg.Catalog.VectorSize,
	)

	return &Embedder{
		catalogUC: catalogUC,
		metrics:   m,
		closer:    cl,
		logger:    log,
	}, nil
}

// Run векторизует каталог и проверяет, что сохранённый результат читается обратно.
func (em *Embedder) Run(ctx context.Context, parallel int) (*usecase.GenerateEmbeddingsRes, error) {
	res, err := em.catalogUC.GenerateEmbeddings(ctx, &usecase.GenerateEmbeddingsReq{Parallel: parallel})
	em.logBatchRows()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	catalog, err := em.catalogUC.LoadCatalog(ctx)
	if err != nil {
		return res, e.Wrap(whereami.WhereAmI(), err)
	}

	em.logger.Infof("catalog saved: %d products (%d valid), %d dims", catalog.Len(), catalog.ValidCount(), catalog.Dim)
	return res, nil
}

// logBatchRows выводит счётчики обработанных строк, накопленные за запуск.
func (em *Embedder) logBatchRows() {
	counts, err := em.metrics.BatchRowCounts()
	if err != nil {
		em.logger.Warnf("failed to gather batch metrics: %v", err)
		return
	}

	em.logger.Infof("batch rows: %s=%.0f, %s=%.0f",
		usecase.RowEmbedded, counts[usecase.RowEmbedded], usecase.RowFailed, counts[usecase.RowFailed])
}

func (em *Embedder) Close(ctx context.Context) error {
	return em.closer.Close(ctx)
}
