package pgdb

import (
	"context"
	"fmt"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/DRSN-tech/visual-matcher/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"github.com/DRSN-tech/visual-matcher/pkg/tr"
	transaction "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
)

var catalogColumns = []string{
	"position", "name", "description", "image_url", "category", "image_path", "embedding", "embedding_valid",
}

// CatalogRepo хранит каталог в таблице catalog_products: одна строка на товар, вектор в колонке real[].
type CatalogRepo struct {
	pool *pgxpool.Pool
}

func NewCatalogRepo(pool *pgxpool.Pool) *CatalogRepo {
	return &CatalogRepo{
		pool: pool,
	}
}

// Save атомарно заменяет содержимое каталога: читатели видят либо старый, либо новый каталог целиком.
func (p *CatalogRepo) Save(ctx context.Context, catalog *domain.Catalog) (err error) {
	const op = "CatalogRepo.Save"

	if catalog.Len() == 0 {
		return e.Wrap(op, e.ErrEmptyCatalog)
	}

	ctx, tx, err := transaction.NewTransaction(ctx, pgx.TxOptions{}, p.pool)
	if err != nil {
		return e.Wrap(op, err)
	}
	defer func() {
		if err != nil && tx.IsActive() {
			_ = tx.Rollback(ctx)
		}
	}()

	pgxTx, ok := tx.Transaction().(pgx.Tx)
	if !ok {
		return e.Wrap(op, e.ErrTransactionNotFound)
	}
	ctx = tr.WithTx(ctx, pgxTx)

	if err = p.replaceItems(ctx, catalog.Items); err != nil {
		return e.Wrap(op, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return e.Wrap(op, err)
	}

	return nil
}

// replaceItems очищает таблицу и копирует в неё строки каталога. Должен выполняться в транзакции.
func (p *CatalogRepo) replaceItems(ctx context.Context, items []domain.CatalogItem) error {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM catalog_products`); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"catalog_products"}, catalogColumns,
		pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
			return converter.ToModel(i, items[i]).Columns(), nil
		}),
	)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if copied != int64(len(items)) {
		return e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: copied %d of %d rows", e.ErrCatalogMisaligned, copied, len(items)))
	}

	return nil
}

// Load читает каталог в порядке позиций строк.
func (p *CatalogRepo) Load(ctx context.Context) (*domain.Catalog, error) {
	query := `
		SELECT position, name, description, image_url, category, image_path, embedding, embedding_valid, created_at
		FROM catalog_products
		ORDER BY position
	`

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer rows.Close()

	items := make([]domain.CatalogItem, 0)
	for rows.Next() {
		var model converter.CatalogProductModel
		if err := rows.Scan(
			&model.Position, &model.Name, &model.Description, &model.ImageURL, &model.Category,
			&model.ImagePath, &model.Embedding, &model.EmbeddingValid, &model.CreatedAt,
		); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		if int(model.Position) != len(items) {
			return nil, e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: expected position %d, got %d", e.ErrCatalogMisaligned, len(items), model.Position))
		}

		items = append(items, converter.ToEntity(&model))
	}

	if err := rows.Err(); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	catalog, err := domain.NewCatalog(items)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return catalog, nil
}
