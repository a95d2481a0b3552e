package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
)

type fakeCatalogRepo struct {
	catalog *domain.Catalog
	err     error
	loads   int
	saved   *domain.Catalog
}

func (f *fakeCatalogRepo) Load(context.Context) (*domain.Catalog, error) {
	f.loads++
	return f.catalog, f.err
}

func (f *fakeCatalogRepo) Save(_ context.Context, c *domain.Catalog) error {
	f.saved = c
	return f.err
}

type fakeDatasetRepo struct {
	products []domain.Product
	err      error
}

func (f *fakeDatasetRepo) ReadProducts(context.Context) ([]domain.Product, error) {
	return f.products, f.err
}

// fakeML возвращает вектор по имени изображения; имена из failing возвращают ошибку.
type fakeML struct {
	mu      sync.Mutex
	vectors map[string][]float32
	failing map[string]bool
	calls   int
}

func (f *fakeML) VectorizeRequest(_ context.Context, req *VectorizeReq) ([]VectorizeRes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	res := make([]VectorizeRes, 0, len(req.Images))
	for _, img := range req.Images {
		if f.failing[img.Name] {
			return nil, errors.New("ml unavailable")
		}
		res = append(res, *NewVectorizeRes(f.vectors[img.Name], "clip-vit-b32"))
	}

	return res, nil
}

// fakeImages скачивает «изображения» из карты url -> имя, нормализация сохраняет имя.
type fakeImages struct {
	remote     map[string]string
	badDecode  map[string]bool
	fetchCalls int
	mu         sync.Mutex
}

func (f *fakeImages) Fetch(_ context.Context, url string) (*domain.Image, error) {
	f.mu.Lock()
	f.fetchCalls++
	f.mu.Unlock()

	name, ok := f.remote[url]
	if !ok {
		return nil, e.ErrImageFetchFailure
	}

	return domain.NewImage([]byte("bytes-of-"+name), "image/jpeg", name), nil
}

func (f *fakeImages) Normalize(image *domain.Image) (*domain.Image, error) {
	if f.badDecode[image.Name] || strings.HasPrefix(string(image.Data), "garbage") {
		return nil, e.ErrImageDecodeFailure
	}

	return domain.NewImage(append([]byte("norm:"), image.Data...), "image/jpeg", image.Name), nil
}

type fakeImageRepo struct {
	local map[string]string
}

func (f *fakeImageRepo) Read(_ context.Context, path string) (*domain.Image, error) {
	name, ok := f.local[path]
	if !ok {
		return nil, errors.New("local image not found: " + path)
	}

	return domain.NewImage([]byte("local-"+name), "image/png", name), nil
}

type fakeCache struct {
	mu    sync.Mutex
	items map[string]*domain.Embedding
	err   error
}

func (f *fakeCache) GetEmbedding(_ context.Context, key string) (*domain.Embedding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	return f.items[key], nil
}

func (f *fakeCache) SetEmbedding(_ context.Context, key string, emb *domain.Embedding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.items == nil {
		f.items = map[string]*domain.Embedding{}
	}
	f.items[key] = emb
	return nil
}

type fakeEvents struct {
	ch chan *domain.MatchEvent
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{ch: make(chan *domain.MatchEvent, 8)}
}

func (f *fakeEvents) PublishMatchEvent(_ context.Context, event *domain.MatchEvent) error {
	f.ch <- event
	return nil
}

type fakeMetrics struct {
	mu       sync.Mutex
	outcomes []string
	rows     map[string]int
	total    int
	valid    int
}

func (f *fakeMetrics) ObserveMatch(outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
}

func (f *fakeMetrics) ObserveEmbedding(time.Duration, bool) {}

func (f *fakeMetrics) SetCatalogSize(total, valid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.total, f.valid = total, valid
}

func (f *fakeMetrics) ObserveBatchRow(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows == nil {
		f.rows = map[string]int{}
	}
	f.rows[status]++
}
