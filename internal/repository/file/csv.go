package file

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
)

// Колонки табличного каталога. Колонка image необязательна и ссылается на локальное изображение.
const (
	colName        = "name"
	colDescription = "description"
	colImageURL    = "image_url"
	colCategory    = "category"
	colImage       = "image"
)

var (
	requiredColumns = []string{colName, colDescription, colImageURL, colCategory}
	csvHeader       = []string{colName, colDescription, colImageURL, colCategory, colImage}
)

// readProducts читает каталог с обязательной строкой заголовка.
// Порядок колонок произвольный, лишние колонки игнорируются.
func readProducts(r io.Reader) ([]domain.Product, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: missing header", e.ErrCatalogFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", e.ErrCatalogFormat, err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		index[col] = i
	}

	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", e.ErrCatalogFormat, col)
		}
	}

	field := func(record []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var products []domain.Product
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", e.ErrCatalogFormat, err)
		}

		products = append(products, *domain.NewProduct(
			field(record, colName),
			field(record, colDescription),
			field(record, colImageURL),
			field(record, colCategory),
			field(record, colImage),
		))
	}

	return products, nil
}

// writeProducts пишет каталог в CSV с полным заголовком.
func writeProducts(w io.Writer, products []domain.Product) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, p := range products {
		if err := cw.Write([]string{p.Name, p.Description, p.ImageURL, p.Category, p.ImagePath}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
