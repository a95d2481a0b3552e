// Package matcher ранжирует товары каталога по косинусной близости к вектору запроса.
// Все функции пакета чистые: каталог только читается, поэтому его можно разделять между запросами без блокировок.
package matcher

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
)

// CosineSimilarity возвращает скалярное произведение векторов, делённое на произведение их норм.
// Если норма одного из векторов равна нулю или результат не является конечным числом, близость считается равной 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", e.ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, nil
	}

	return score, nil
}

// MatchesCategory проверяет категорию товара фильтром: "All" (без учёта регистра) или пустой фильтр пропускают всё,
// иначе фильтр ищется как подстрока категории без учёта регистра ("bag" подходит к "Bags & Accessories").
func MatchesCategory(category, filter string) bool {
	if domain.IsAllCategories(filter) {
		return true
	}

	return strings.Contains(strings.ToLower(category), strings.ToLower(strings.TrimSpace(filter)))
}

// Rank считает близость запроса к каждому валидному товару каталога, отбрасывает товары другой категории,
// сортирует по убыванию близости (при равенстве сохраняется порядок каталога) и возвращает не больше topK результатов.
// topK <= 0 трактуется как 1.
func Rank(query []float32, catalog *domain.Catalog, filter string, topK int) ([]domain.MatchResult, error) {
	if catalog.ValidCount() == 0 {
		return nil, e.ErrEmptyCatalog
	}

	if len(query) != catalog.Dim {
		return nil, fmt.Errorf("%w: query has %d dims, catalog has %d", e.ErrDimensionMismatch, len(query), catalog.Dim)
	}

	if topK <= 0 {
		topK = 1
	}

	results := make([]domain.MatchResult, 0, len(catalog.Items))
	for _, item := range catalog.Items {
		if !item.EmbeddingValid || !MatchesCategory(item.Product.Category, filter) {
			continue
		}

		score, err := CosineSimilarity(query, item.Vector)
		if err != nil {
			return nil, err
		}

		results = append(results, domain.NewMatchResult(item.Product, score))
	}

	slices.SortStableFunc(results, func(a, b domain.MatchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// ApplyThreshold оставляет результаты с Score >= minScore. Число результатов никогда не растёт.
func ApplyThreshold(results []domain.MatchResult, minScore float64) []domain.MatchResult {
	filtered := make([]domain.MatchResult, 0, len(results))
	for _, r := range results {
		if r.Score >= minScore {
			filtered = append(filtered, r)
		}
	}

	return filtered
}
