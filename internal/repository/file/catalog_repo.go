package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"github.com/jimlawless/whereami"
)

// CatalogRepo хранит каталог в двух файлах: CSV с товарами и сжатый файл векторов.
// i-я строка CSV соответствует i-й записи файла векторов.
type CatalogRepo struct {
	csvPath        string
	embeddingsPath string
}

func NewCatalogRepo(csvPath, embeddingsPath string) *CatalogRepo {
	return &CatalogRepo{
		csvPath:        csvPath,
		embeddingsPath: embeddingsPath,
	}
}

func (c *CatalogRepo) Load(ctx context.Context) (*domain.Catalog, error) {
	const op = "CatalogRepo.Load"

	products, err := readProductsFile(c.csvPath)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, e.Wrap(op, err)
	}

	rows, err := readEmbeddingsFile(c.embeddingsPath)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if len(rows) != len(products) {
		return nil, e.Wrap(op, fmt.Errorf("%w: %d products, %d embeddings", e.ErrCatalogMisaligned, len(products), len(rows)))
	}

	items := make([]domain.CatalogItem, 0, len(products))
	for i, p := range products {
		vector := rows[i].vector
		if !rows[i].valid {
			vector = nil
		}
		items = append(items, domain.NewCatalogItem(p, vector, rows[i].valid))
	}

	catalog, err := domain.NewCatalog(items)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return catalog, nil
}

// Save сначала пишет векторы, затем CSV. Оба файла заменяются атомарно.
func (c *CatalogRepo) Save(ctx context.Context, catalog *domain.Catalog) error {
	const op = "CatalogRepo.Save"

	if catalog.Len() == 0 {
		return e.Wrap(op, e.ErrEmptyCatalog)
	}

	rows := make([]embeddingRow, 0, catalog.Len())
	for _, item := range catalog.Items {
		rows = append(rows, embeddingRow{vector: item.Vector, valid: item.EmbeddingValid})
	}

	err := writeAtomic(c.embeddingsPath, func(w io.Writer) error {
		return writeEmbeddings(w, rows, catalog.Dim)
	})
	if err != nil {
		return e.Wrap(op, err)
	}

	if err := ctx.Err(); err != nil {
		return e.Wrap(op, err)
	}

	err = writeAtomic(c.csvPath, func(w io.Writer) error {
		return writeProducts(w, catalog.Products())
	})
	if err != nil {
		return e.Wrap(op, err)
	}

	return nil
}

func readProductsFile(path string) ([]domain.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return readProducts(f)
}

func readEmbeddingsFile(path string) ([]embeddingRow, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: %s", e.ErrEmbeddingsNotFound, path))
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return readEmbeddings(f)
}
