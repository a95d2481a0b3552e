package file

import (
	"context"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
)

// DatasetRepo читает исходный список товаров из CSV для batch-векторизации.
type DatasetRepo struct {
	path string
}

func NewDatasetRepo(path string) *DatasetRepo {
	return &DatasetRepo{path: path}
}

func (d *DatasetRepo) ReadProducts(_ context.Context) ([]domain.Product, error) {
	products, err := readProductsFile(d.path)
	if err != nil {
		return nil, e.Wrap("DatasetRepo.ReadProducts", err)
	}

	return products, nil
}
