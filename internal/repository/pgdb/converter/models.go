package converter

import "time"

// CatalogProductModel представляет запись таблицы catalog_products в PostgreSQL.
type CatalogProductModel struct {
	Position       int32     `db:"position"`
	Name           string    `db:"name"`
	Description    string    `db:"description"`
	ImageURL       string    `db:"image_url"`
	Category       string    `db:"category"`
	ImagePath      string    `db:"image_path"`
	Embedding      []float32 `db:"embedding"`
	EmbeddingValid bool      `db:"embedding_valid"`
	CreatedAt      time.Time `db:"created_at"`
}
