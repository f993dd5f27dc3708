package sales

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists sales in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the sale header and lines in one transaction. A unique
// violation on production_id surfaces as ErrAlreadyMaterialized so callers
// can fetch and reuse the prior sale instead of duplicating it.
func (r *Repository) Create(ctx context.Context, sale Sale) (int64, error) {
	if r == nil {
		return 0, errors.New("sales repository not initialised")
	}
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO sales (customer_id, production_id, quote_id, total_amount, sale_date, status, payment_method, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id`,
			sale.CustomerID, sale.ProductionID, sale.QuoteID, sale.TotalAmount, sale.SaleDate, string(sale.Status), sale.PaymentMethod).Scan(&id)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrAlreadyMaterialized
			}
			return err
		}
		for _, line := range sale.Lines {
			if _, err := tx.Exec(ctx, `INSERT INTO sale_lines (sale_id, item_id, quantity, unit_price, subtotal)
VALUES ($1,$2,$3,$4,$5)`, id, line.ItemID, line.Quantity, line.UnitPrice, line.Subtotal); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Get loads a sale with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Sale, error) {
	if r == nil {
		return Sale{}, errors.New("sales repository not initialised")
	}
	return r.getWhere(ctx, `id=$1`, id)
}

// GetByProduction loads the sale materialized for a production.
func (r *Repository) GetByProduction(ctx context.Context, productionID int64) (Sale, error) {
	if r == nil {
		return Sale{}, errors.New("sales repository not initialised")
	}
	return r.getWhere(ctx, `production_id=$1`, productionID)
}

func (r *Repository) getWhere(ctx context.Context, where string, arg any) (Sale, error) {
	var s Sale
	err := r.pool.QueryRow(ctx, `SELECT id, customer_id, production_id, quote_id, total_amount, sale_date, status, payment_method, created_at
FROM sales WHERE `+where, arg).
		Scan(&s.ID, &s.CustomerID, &s.ProductionID, &s.QuoteID, &s.TotalAmount, &s.SaleDate, &s.Status, &s.PaymentMethod, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrNotFound
		}
		return Sale{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, sale_id, item_id, quantity, unit_price, subtotal
FROM sale_lines WHERE sale_id=$1 ORDER BY id ASC`, s.ID)
	if err != nil {
		return Sale{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line SaleLine
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ItemID, &line.Quantity, &line.UnitPrice, &line.Subtotal); err != nil {
			return Sale{}, err
		}
		s.Lines = append(s.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return Sale{}, err
	}
	return s, nil
}
