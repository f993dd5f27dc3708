package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads catalog items from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads a single item by id.
func (r *Repository) Get(ctx context.Context, id int64) (Item, error) {
	if r == nil {
		return Item{}, errors.New("catalog repository not initialised")
	}
	var item Item
	err := r.pool.QueryRow(ctx, `SELECT id, sku, name, kind, unit_price, active, created_at, updated_at
FROM catalog_items WHERE id=$1`, id).
		Scan(&item.ID, &item.SKU, &item.Name, &item.Kind, &item.UnitPrice, &item.Active, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

// Exists reports whether an item id resolves to a known catalog entry.
func (r *Repository) Exists(ctx context.Context, id int64) (bool, error) {
	if r == nil {
		return false, errors.New("catalog repository not initialised")
	}
	var found bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM catalog_items WHERE id=$1)`, id).Scan(&found)
	return found, err
}
