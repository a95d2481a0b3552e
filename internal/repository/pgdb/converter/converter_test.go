package converter

import (
	"testing"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestConverter(t *testing.T) {
	item := domain.NewCatalogItem(
		*domain.NewProduct("Runner", "Light shoe", "https://cdn/r.jpg", "Shoes", "images/r.jpg"),
		[]float32{0.1, 0.2},
		true,
	)

	model := ToModel(4, item)
	assert.Equal(t, int32(4), model.Position)
	assert.Equal(t, []any{int32(4), "Runner", "Light shoe", "https://cdn/r.jpg", "Shoes", "images/r.jpg", []float32{0.1, 0.2}, true}, model.Columns())
	assert.Equal(t, item, ToEntity(model))
}
