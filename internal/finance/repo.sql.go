package finance

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists ledger entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one ledger entry. A unique violation on the source
// document (sale id or receipt ref per kind) surfaces as ErrDuplicateEntry
// so reposts of an already-posted entry are harmless.
func (r *Repository) Insert(ctx context.Context, entry LedgerEntry) (int64, error) {
	if r == nil {
		return 0, errors.New("finance repository not initialised")
	}
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO ledger_entries (kind, description, amount, category, entry_date, status, sale_id, receipt_ref, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		string(entry.Kind), entry.Description, entry.Amount, entry.Category, entry.Date, string(entry.Status),
		nullInt(entry.SaleID), nullString(entry.ReceiptRef)).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateEntry
		}
		return 0, err
	}
	return id, nil
}

// GetBySale returns the revenue entry posted for a sale.
func (r *Repository) GetBySale(ctx context.Context, saleID int64) (LedgerEntry, error) {
	if r == nil {
		return LedgerEntry{}, errors.New("finance repository not initialised")
	}
	return r.getWhere(ctx, `kind=$1 AND sale_id=$2`, string(EntryRevenue), saleID)
}

// GetByReceipt returns the expense entry posted for a goods receipt.
func (r *Repository) GetByReceipt(ctx context.Context, receiptRef string) (LedgerEntry, error) {
	if r == nil {
		return LedgerEntry{}, errors.New("finance repository not initialised")
	}
	return r.getWhere(ctx, `receipt_ref=$1`, receiptRef)
}

func (r *Repository) getWhere(ctx context.Context, where string, args ...any) (LedgerEntry, error) {
	var e LedgerEntry
	var saleRef *int64
	var receiptRef *string
	err := r.pool.QueryRow(ctx, `SELECT id, kind, description, amount, category, entry_date, status, sale_id, receipt_ref, created_at
FROM ledger_entries WHERE `+where, args...).
		Scan(&e.ID, &e.Kind, &e.Description, &e.Amount, &e.Category, &e.Date, &e.Status, &saleRef, &receiptRef, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LedgerEntry{}, ErrNotFound
		}
		return LedgerEntry{}, err
	}
	if saleRef != nil {
		e.SaleID = *saleRef
	}
	if receiptRef != nil {
		e.ReceiptRef = *receiptRef
	}
	return e, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
