package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/DRSN-tech/visual-matcher/internal/matcher"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"github.com/DRSN-tech/visual-matcher/pkg/logger"
	"github.com/google/uuid"
)

// MatchUseCase реализует поиск визуально похожего товара.
// Каталог загружается один раз и дальше только читается.
type MatchUseCase struct {
	catalogRepo    CatalogRepository
	mlService      MlServiceInfra
	imagesInfra    ImagesInfra
	embeddingCache EmbeddingCacheRepository
	events         EventsInfra
	metrics        MetricsInfra
	logger         logger.Logger
	topK           int

	catalogOnce sync.Once
	catalog     *domain.Catalog
	catalogErr  error
}

func NewMatchUC(
	catalogRepo CatalogRepository,
	mlService MlServiceInfra,
	imagesInfra ImagesInfra,
	embeddingCache EmbeddingCacheRepository,
	events EventsInfra,
	metrics MetricsInfra,
	logger logger.Logger,
	topK int,
) *MatchUseCase {
	return &MatchUseCase{
		catalogRepo:    catalogRepo,
		mlService:      mlService,
		imagesInfra:    imagesInfra,
		embeddingCache: embeddingCache,
		events:         events,
		metrics:        metrics,
		logger:         logger,
		topK:           topK,
	}
}

// Match векторизует изображение запроса и возвращает самые похожие товары каталога с близостью не ниже порога.
// Отбор top-k выполняется до применения порога.
func (m *MatchUseCase) Match(ctx context.Context, req *MatchReq) (*MatchRes, error) {
	const op = "MatchUseCase.Match"

	res, err := m.match(ctx, req)
	if err != nil {
		m.metrics.ObserveMatch(OutcomeError)
		return nil, e.Wrap(op, err)
	}

	if res.NoMatch {
		m.metrics.ObserveMatch(OutcomeNoMatch)
	} else {
		m.metrics.ObserveMatch(OutcomeMatched)
	}

	return res, nil
}

func (m *MatchUseCase) match(ctx context.Context, req *MatchReq) (*MatchRes, error) {
	if err := m.validateMatch(req); err != nil {
		return nil, err
	}

	catalog, err := m.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	image, err := m.resolveImage(ctx, req)
	if err != nil {
		return nil, err
	}

	normalized, err := m.imagesInfra.Normalize(image)
	if err != nil {
		return nil, err
	}

	embedding, cacheHit, err := m.embed(ctx, normalized, catalog.Dim)
	if err != nil {
		return nil, err
	}

	ranked, err := matcher.Rank(embedding.Vector, catalog, req.Category, m.topK)
	if err != nil {
		return nil, err
	}

	res := NewMatchRes(matcher.ApplyThreshold(ranked, req.MinScore), embedding.ModelVersion, cacheHit)
	m.publishEvent(req, res)

	return res, nil
}

// Catalog возвращает каталог, загружая его при первом обращении.
// Результат загрузки (в том числе ошибка) запоминается на всё время жизни процесса.
func (m *MatchUseCase) Catalog(ctx context.Context) (*domain.Catalog, error) {
	const op = "MatchUseCase.Catalog"

	m.catalogOnce.Do(func() {
		m.catalog, m.catalogErr = m.catalogRepo.Load(ctx)
		if m.catalogErr != nil {
			return
		}

		m.metrics.SetCatalogSize(m.catalog.Len(), m.catalog.ValidCount())
		if invalid := m.catalog.Len() - m.catalog.ValidCount(); invalid > 0 {
			m.logger.Warnf("catalog has %d products without valid embeddings, they are excluded from matching", invalid)
		}
		m.logger.Infof("catalog loaded: %d products, %d dims", m.catalog.Len(), m.catalog.Dim)
	})

	if m.catalogErr != nil {
		return nil, e.Wrap(op, m.catalogErr)
	}

	return m.catalog, nil
}

// CatalogStats возвращает сводку о загруженном каталоге.
func (m *MatchUseCase) CatalogStats(ctx context.Context) (*CatalogStats, error) {
	catalog, err := m.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	return NewCatalogStats(catalog), nil
}

// Categories возвращает список категорий для выбора пользователем.
func (m *MatchUseCase) Categories() []string {
	return domain.Categories()
}

// resolveImage возвращает загруженное изображение или скачивает его по ссылке.
func (m *MatchUseCase) resolveImage(ctx context.Context, req *MatchReq) (*domain.Image, error) {
	if req.Image != nil && len(req.Image.Data) > 0 {
		return req.Image, nil
	}

	return m.imagesInfra.Fetch(ctx, strings.TrimSpace(req.ImageURL))
}

// embed возвращает вектор изображения из кэша или запрашивает его у ML-сервиса.
// Закэшированный вектор другой размерности считается промахом.
func (m *MatchUseCase) embed(ctx context.Context, image *domain.Image, dim int) (*domain.Embedding, bool, error) {
	start := time.Now()
	key := imageCacheKey(image.Data, dim)

	cached, err := m.embeddingCache.GetEmbedding(ctx, key)
	if err != nil {
		m.logger.Warnf("embedding cache lookup failed: %v", err)
	}
	if cached != nil && len(cached.Vector) == dim {
		m.metrics.ObserveEmbedding(time.Since(start), true)
		return cached, true, nil
	}
	if cached != nil {
		m.logger.Debugf("cached embedding %s has %d dims, catalog has %d", key, len(cached.Vector), dim)
	}

	vectors, err := m.mlService.VectorizeRequest(ctx, NewVectorizeReq(*image))
	if err != nil {
		return nil, false, err
	}

	if len(vectors) == 0 {
		return nil, false, e.ErrEmptyVectors
	}

	if len(vectors[0].Vector) == 0 {
		return nil, false, e.ErrVectorEmbeddingEmpty
	}

	m.metrics.ObserveEmbedding(time.Since(start), false)

	embedding := domain.NewEmbedding(vectors[0].Vector, vectors[0].ModelVersion)
	if err := m.embeddingCache.SetEmbedding(ctx, key, embedding); err != nil {
		m.logger.Warnf("embedding cache store failed: %v", err)
	}

	return embedding, false, nil
}

// publishEvent отправляет событие о поиске в фоне, не задерживая ответ.
func (m *MatchUseCase) publishEvent(req *MatchReq, res *MatchRes) {
	const op = "MatchUseCase.publishEvent"

	event := &domain.MatchEvent{
		EventID:   uuid.NewString(),
		Category:  req.Category,
		MinScore:  req.MinScore,
		Matched:   !res.NoMatch,
		CacheHit:  res.CacheHit,
		CreatedAt: time.Now().UTC(),
	}
	if !res.NoMatch {
		event.ResultName = res.Results[0].Name
		event.Score = res.Results[0].Score
	}

	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := m.events.PublishMatchEvent(bgCtx, event); err != nil {
			m.logger.Warnf("Failed to publish match event: %v", e.Wrap(op, err))
		}
	}()
}

// validateMatch проверяет корректность входных данных запроса на поиск.
func (m *MatchUseCase) validateMatch(req *MatchReq) error {
	// При наличии загруженного файла ссылка игнорируется
	hasImage := req.Image != nil && len(req.Image.Data) > 0
	hasURL := strings.TrimSpace(req.ImageURL) != ""
	if !hasImage && !hasURL {
		return e.ErrNoImage
	}

	if req.MinScore < 0 || req.MinScore > 1 {
		return e.ErrInvalidMinScore
	}

	return nil
}

// imageCacheKey возвращает ключ кэша эмбеддингов для нормализованного изображения и размерности каталога.
func imageCacheKey(data []byte, dim int) string {
	sum := sha256.Sum256(data)
	return strconv.Itoa(dim) + ":" + hex.EncodeToString(sum[:])
}
