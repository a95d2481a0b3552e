package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"github.com/DRSN-tech/visual-matcher/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type matchFixture struct {
	uc      *MatchUseCase
	repo    *fakeCatalogRepo
	ml      *fakeML
	images  *fakeImages
	cache   *fakeCache
	events  *fakeEvents
	metrics *fakeMetrics
}

func newMatchFixture(t *testing.T) *matchFixture {
	t.Helper()

	catalog, err := domain.NewCatalog([]domain.CatalogItem{
		domain.NewCatalogItem(domain.Product{Name: "A", Category: "Shoes", ImageURL: "http://cdn/a.jpg"}, []float32{1, 0}, true),
		domain.NewCatalogItem(domain.Product{Name: "B", Category: "Bags", ImageURL: "http://cdn/b.jpg"}, []float32{0, 1}, true),
	})
	require.NoError(t, err)

	f := &matchFixture{
		repo: &fakeCatalogRepo{catalog: catalog},
		ml: &fakeML{
			vectors: map[string][]float32{
				"shoe-photo": {1, 0},
				"remote-bag": {0.1, 1},
				"wide":       {1, 0, 0},
			},
			failing: map[string]bool{"ml-down": true},
		},
		images: &fakeImages{
			remote: map[string]string{"https://example.com/bag.jpg": "remote-bag"},
		},
		cache:   &fakeCache{},
		events:  newFakeEvents(),
		metrics: &fakeMetrics{},
	}
	f.uc = NewMatchUC(f.repo, f.ml, f.images, f.cache, f.events, f.metrics, logger.NewNopLogger(), 1)

	return f
}

func upload(name string) *domain.Image {
	return domain.NewImage([]byte("upload-"+name), "image/jpeg", name)
}

func TestMatchUseCase_Match(t *testing.T) {
	f := newMatchFixture(t)

	res, err := f.uc.Match(context.Background(), NewMatchReq(upload("shoe-photo"), "", "All", 0.5))
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.False(t, res.NoMatch)
	assert.Equal(t, "A", res.Results[0].Name)
	assert.InDelta(t, 1.0, res.Results[0].Score, 1e-9)
	assert.Equal(t, "clip-vit-b32", res.ModelVersion)

	select {
	case ev := <-f.events.ch:
		assert.True(t, ev.Matched)
		assert.Equal(t, "A", ev.ResultName)
		assert.Equal(t, "All", ev.Category)
		assert.NotEmpty(t, ev.EventID)
	case <-time.After(time.Second):
		t.Fatal("match event was not published")
	}

	assert.Equal(t, []string{OutcomeMatched}, f.metrics.outcomes)
	assert.Equal(t, 2, f.metrics.total)
}

func TestMatchUseCase_CategoryAndThreshold(t *testing.T) {
	f := newMatchFixture(t)

	res, err := f.uc.Match(context.Background(), NewMatchReq(upload("shoe-photo"), "", "bags", 0))
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "B", res.Results[0].Name)
	assert.InDelta(t, 0.0, res.Results[0].Score, 1e-9)

	// Лучший товар категории ниже порога: результат пустой, но это не ошибка
	res, err = f.uc.Match(context.Background(), NewMatchReq(upload("shoe-photo"), "", "bags", 0.5))
	require.NoError(t, err)
	assert.True(t, res.NoMatch)
	assert.Empty(t, res.Results)
	assert.Contains(t, f.metrics.outcomes, OutcomeNoMatch)
}

func TestMatchUseCase_ByURL(t *testing.T) {
	f := newMatchFixture(t)

	res, err := f.uc.Match(context.Background(), NewMatchReq(nil, " https://example.com/bag.jpg ", "All", 0.5))
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "B", res.Results[0].Name)
	assert.Equal(t, 1, f.images.fetchCalls)
}

func TestMatchUseCase_UploadWinsOverURL(t *testing.T) {
	f := newMatchFixture(t)

	res, err := f.uc.Match(context.Background(), NewMatchReq(upload("shoe-photo"), "https://example.com/bag.jpg", "All", 0.5))
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "A", res.Results[0].Name)
	assert.Zero(t, f.images.fetchCalls)
}

func TestMatchUseCase_Errors(t *testing.T) {
	tests := []struct {
		name string
		req  *MatchReq
		want error
	}{
		{"no image", NewMatchReq(nil, "", "All", 0.5), e.ErrNoImage},
		{"empty upload", NewMatchReq(domain.NewImage(nil, "", "empty"), "", "All", 0.5), e.ErrNoImage},
		{"min score too high", NewMatchReq(upload("shoe-photo"), "", "All", 1.2), e.ErrInvalidMinScore},
		{"min score negative", NewMatchReq(upload("shoe-photo"), "", "All", -0.1), e.ErrInvalidMinScore},
		{"unreachable url", NewMatchReq(nil, "https://example.com/404.jpg", "All", 0.5), e.ErrImageFetchFailure},
		{"undecodable upload", NewMatchReq(domain.NewImage([]byte("garbage"), "text/plain", "junk"), "", "All", 0.5), e.ErrImageDecodeFailure},
		{"query dimension mismatch", NewMatchReq(upload("wide"), "", "All", 0.5), e.ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMatchFixture(t)

			res, err := f.uc.Match(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, []string{OutcomeError}, f.metrics.outcomes)
		})
	}
}

func TestMatchUseCase_MLFailure(t *testing.T) {
	f := newMatchFixture(t)

	_, err := f.uc.Match(context.Background(), NewMatchReq(upload("ml-down"), "", "All", 0.5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ml unavailable")
}

func TestMatchUseCase_CatalogMemoized(t *testing.T) {
	f := newMatchFixture(t)

	for i := 0; i < 3; i++ {
		_, err := f.uc.Match(context.Background(), NewMatchReq(upload("shoe-photo"), "", "All", 0.5))
		require.NoError(t, err)
	}

	stats, err := f.uc.CatalogStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &CatalogStats{Total: 2, Valid: 2, Dim: 2}, stats)
	assert.Equal(t, 1, f.repo.loads)
}

func TestMatchUseCase_CatalogLoadError(t *testing.T) {
	f := newMatchFixture(t)
	f.repo.catalog = nil
	f.repo.err = e.ErrEmptyCatalog

	_, err := f.uc.Match(context.Background(), NewMatchReq(upload("shoe-photo"), "", "All", 0.5))
	assert.ErrorIs(t, err, e.ErrEmptyCatalog)

	_, err = f.uc.CatalogStats(context.Background())
	assert.ErrorIs(t, err, e.ErrEmptyCatalog)
	assert.Equal(t, 1, f.repo.loads)
}

func TestMatchUseCase_EmbeddingCache(t *testing.T) {
	f := newMatchFixture(t)
	req := NewMatchReq(upload("shoe-photo"), "", "All", 0.5)

	first, err := f.uc.Match(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := f.uc.Match(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, 1, f.ml.calls)
}

func TestMatchUseCase_CacheErrorIsNotFatal(t *testing.T) {
	f := newMatchFixture(t)
	f.cache.err = errors.New("redis down")

	res, err := f.uc.Match(context.Background(), NewMatchReq(upload("shoe-photo"), "", "All", 0.5))
	require.NoError(t, err)
	assert.Len(t, res.Results, 1)
	assert.Equal(t, 1, f.ml.calls)
}

func TestMatchUseCase_Categories(t *testing.T) {
	f := newMatchFixture(t)
	assert.Equal(t, domain.Categories(), f.uc.Categories())
}

func TestMatchUseCase_StaleCachedEmbeddingIsMiss(t *testing.T) {
	f := newMatchFixture(t)
	req := NewMatchReq(upload("shoe-photo"), "", "All", 0.5)

	_, err := f.uc.Match(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, f.cache.items, 1)

	// Вектор, сохранённый прежней моделью другой размерности
	for key := range f.cache.items {
		f.cache.items[key] = domain.NewEmbedding([]float32{1, 0, 0}, "old-model")
	}

	res, err := f.uc.Match(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.Equal(t, "clip-vit-b32", res.ModelVersion)
	assert.Equal(t, 2, f.ml.calls)
}

func TestImageCacheKey_DependsOnDim(t *testing.T) {
	data := []byte("norm:upload")

	assert.Equal(t, imageCacheKey(data, 512), imageCacheKey(data, 512))
	assert.NotEqual(t, imageCacheKey(data, 512), imageCacheKey(data, 768))
}
