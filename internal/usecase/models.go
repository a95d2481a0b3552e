package usecase

import "github.com/DRSN-tech/visual-matcher/internal/domain"

// MATCH USECASE

// Исходы поиска для метрик
const (
	OutcomeMatched = "matched"
	OutcomeNoMatch = "no_match"
	OutcomeError   = "error"
)

// Статусы строк batch-векторизации для метрик
const (
	RowEmbedded = "embedded"
	RowFailed   = "failed"
)

// MatchReq — запрос на поиск похожего товара. Должно быть задано ровно одно из Image и ImageURL.
type MatchReq struct {
	Image    *domain.Image // загруженный файл
	ImageURL string        // или ссылка на изображение
	Category string        // "All" или подстрока категории
	MinScore float64       // порог близости в [0, 1]
}

// MatchRes — результат поиска. Пустой Results с NoMatch=true считается штатным исходом.
type MatchRes struct {
	Results      []domain.MatchResult
	NoMatch      bool
	ModelVersion string
	CacheHit     bool
}

// CatalogStats — сводка о загруженном каталоге.
type CatalogStats struct {
	Total int
	Valid int
	Dim   int
}

// CATALOG USECASE

// GenerateEmbeddingsReq — параметры batch-векторизации каталога.
type GenerateEmbeddingsReq struct {
	Parallel int // число одновременно обрабатываемых строк
}

// GenerateEmbeddingsRes — итог batch-векторизации.
type GenerateEmbeddingsRes struct {
	Total    int
	Embedded int
	Failed   []FailedRow
}

// FailedRow описывает строку каталога, для которой не удалось получить вектор.
type FailedRow struct {
	Index int
	Name  string
	Err   error
}

// INFRASTUCTURE

// VectorizeReq — запрос на векторизацию изображений.
type VectorizeReq struct {
	Images []domain.Image
}

// VectorizeRes — результат векторизации одного изображения.
type VectorizeRes struct {
	Vector       []float32
	ModelVersion string
}

// MAPPERS

func NewMatchReq(image *domain.Image, imageURL string, category string, minScore float64) *MatchReq {
	return &MatchReq{
		Image:    image,
		ImageURL: imageURL,
		Category: category,
		MinScore: minScore,
	}
}

func NewMatchRes(results []domain.MatchResult, modelVersion string, cacheHit bool) *MatchRes {
	return &MatchRes{
		Results:      results,
		NoMatch:      len(results) == 0,
		ModelVersion: modelVersion,
		CacheHit:     cacheHit,
	}
}

func NewVectorizeReq(images ...domain.Image) *VectorizeReq {
	return &VectorizeReq{
		Images: images,
	}
}

func NewVectorizeRes(vector []float32, modelVersion string) *VectorizeRes {
	return &VectorizeRes{
		Vector:       vector,
		ModelVersion: modelVersion,
	}
}

func NewCatalogStats(catalog *domain.Catalog) *CatalogStats {
	return &CatalogStats{
		Total: catalog.Len(),
		Valid: catalog.ValidCount(),
		Dim:   catalog.Dim,
	}
}
