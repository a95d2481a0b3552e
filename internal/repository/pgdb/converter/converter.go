package converter

import "github.com/DRSN-tech/visual-matcher/internal/domain"

// ToModel преобразует строку каталога в модель PostgreSQL.
func ToModel(position int, item domain.CatalogItem) *CatalogProductModel {
	return &CatalogProductModel{
		Position:       int32(position),
		Name:           item.Product.Name,
		Description:    item.Product.Description,
		ImageURL:       item.Product.ImageURL,
		Category:       item.Product.Category,
		ImagePath:      item.Product.ImagePath,
		Embedding:      item.Vector,
		EmbeddingValid: item.EmbeddingValid,
	}
}

// ToEntity преобразует модель PostgreSQL в строку каталога.
func ToEntity(model *CatalogProductModel) domain.CatalogItem {
	product := domain.NewProduct(model.Name, model.Description, model.ImageURL, model.Category, model.ImagePath)
	return domain.NewCatalogItem(*product, model.Embedding, model.EmbeddingValid)
}

// Columns возвращает значения модели в порядке колонок COPY.
func (m *CatalogProductModel) Columns() []any {
	return []any{m.Position, m.Name, m.Description, m.ImageURL, m.Category, m.ImagePath, m.Embedding, m.EmbeddingValid}
}
