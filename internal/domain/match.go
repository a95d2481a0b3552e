package domain

import "time"

// MatchResult — товар каталога вместе с вычисленной близостью к запросу.
// Score номинально лежит в [-1, 1], значение не ограничивается.
type MatchResult struct {
	Name        string
	Description string
	ImageURL    string
	Category    string
	Score       float64
}

func NewMatchResult(product Product, score float64) MatchResult {
	return MatchResult{
		Name:        product.Name,
		Description: product.Description,
		ImageURL:    product.ImageURL,
		Category:    product.Category,
		Score:       score,
	}
}

// MatchEvent — аналитическое событие об одном поиске
type MatchEvent struct {
	EventID    string    `json:"event_id"`
	Category   string    `json:"category"`
	MinScore   float64   `json:"min_score"`
	Matched    bool      `json:"matched"`
	ResultName string    `json:"result_name,omitempty"`
	Score      float64   `json:"score,omitempty"`
	CacheHit   bool      `json:"cache_hit"`
	CreatedAt  time.Time `json:"created_at"`
}
