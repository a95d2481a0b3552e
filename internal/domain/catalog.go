package domain

import (
	"fmt"
	"math"

	"github.com/DRSN-tech/visual-matcher/pkg/e"
)

// CatalogItem объединяет товар и его вектор в одну запись.
type CatalogItem struct {
	Product        Product
	Vector         []float32
	EmbeddingValid bool // false, если векторизация товара не удалась и Vector заполнен нулями
}

func NewCatalogItem(product Product, vector []float32, valid bool) CatalogItem {
	return CatalogItem{
		Product:        product,
		Vector:         vector,
		EmbeddingValid: valid,
	}
}

// Catalog — неизменяемый после загрузки набор товаров с векторами одной размерности.
type Catalog struct {
	Items []CatalogItem
	Dim   int
}

// NewCatalog проверяет согласованность записей и строит каталог.
// Все непустые векторы обязаны иметь одну длину. Невалидные записи могут иметь пустой вектор.
// Векторы валидных записей не должны содержать NaN и бесконечностей.
func NewCatalog(items []CatalogItem) (*Catalog, error) {
	if len(items) == 0 {
		return nil, e.ErrEmptyCatalog
	}

	dim := 0
	for i, item := range items {
		if len(item.Vector) == 0 {
			if item.EmbeddingValid {
				return nil, fmt.Errorf("%w: item %d (%s) has empty vector", e.ErrDimensionMismatch, i, item.Product.Name)
			}
			continue
		}

		if item.EmbeddingValid {
			if j, ok := NonFiniteIndex(item.Vector); ok {
				return nil, fmt.Errorf("%w: item %d (%s) has non-finite component %d",
					e.ErrCatalogFormat, i, item.Product.Name, j)
			}
		}

		if dim == 0 {
			dim = len(item.Vector)
			continue
		}

		if len(item.Vector) != dim {
			return nil, fmt.Errorf("%w: item %d (%s) has %d dims, want %d",
				e.ErrDimensionMismatch, i, item.Product.Name, len(item.Vector), dim)
		}
	}

	return &Catalog{Items: items, Dim: dim}, nil
}

// Len возвращает число товаров в каталоге.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}

	return len(c.Items)
}

// ValidCount возвращает число товаров с корректным вектором.
func (c *Catalog) ValidCount() int {
	if c == nil {
		return 0
	}

	n := 0
	for _, item := range c.Items {
		if item.EmbeddingValid {
			n++
		}
	}

	return n
}

// Products возвращает товары каталога в исходном порядке.
func (c *Catalog) Products() []Product {
	res := make([]Product, 0, c.Len())
	for _, item := range c.Items {
		res = append(res, item.Product)
	}

	return res
}

// NonFiniteIndex возвращает индекс первой компоненты вектора, равной NaN или бесконечности.
func NonFiniteIndex(vector []float32) (int, bool) {
	for i, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return i, true
		}
	}

	return 0, false
}
