package quotes

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists quotes in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the quote header and lines in one transaction and returns
// the new quote id.
func (r *Repository) Create(ctx context.Context, quote Quote) (int64, error) {
	if r == nil {
		return 0, errors.New("quotes repository not initialised")
	}
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO quotes (customer_id, status, total_amount, valid_until, delivery_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW()) RETURNING id`,
			quote.CustomerID, string(quote.Status), quote.TotalAmount, nullTime(quote.ValidUntil), nullTime(quote.DeliveryBy)).Scan(&id)
		if err != nil {
			return err
		}
		for _, line := range quote.Lines {
			if _, err := tx.Exec(ctx, `INSERT INTO quote_lines (quote_id, item_id, kind, quantity, unit_price, subtotal)
VALUES ($1,$2,$3,$4,$5,$6)`, id, line.ItemID, string(line.Kind), line.Quantity, line.UnitPrice, line.Subtotal); err != nil {
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

// Get loads a quote with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Quote, error) {
	if r == nil {
		return Quote{}, errors.New("quotes repository not initialised")
	}
	var q Quote
	var validUntil, deliveryBy *time.Time
	err := r.pool.QueryRow(ctx, `SELECT id, customer_id, status, total_amount, valid_until, delivery_by, created_at, updated_at
FROM quotes WHERE id=$1`, id).
		Scan(&q.ID, &q.CustomerID, &q.Status, &q.TotalAmount, &validUntil, &deliveryBy, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, ErrNotFound
		}
		return Quote{}, err
	}
	if validUntil != nil {
		q.ValidUntil = *validUntil
	}
	if deliveryBy != nil {
		q.DeliveryBy = *deliveryBy
	}

	rows, err := r.pool.Query(ctx, `SELECT id, quote_id, item_id, kind, quantity, unit_price, subtotal
FROM quote_lines WHERE quote_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Quote{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line QuoteLine
		if err := rows.Scan(&line.ID, &line.QuoteID, &line.ItemID, &line.Kind, &line.Quantity, &line.UnitPrice, &line.Subtotal); err != nil {
			return Quote{}, err
		}
		q.Lines = append(q.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return Quote{}, err
	}
	return q, nil
}

// TransitionStatus moves a quote from one status to another as a single
// compare-and-swap update. It returns false when the quote was not in the
// expected status, leaving the caller to re-read and decide.
func (r *Repository) TransitionStatus(ctx context.Context, id int64, from, to QuoteStatus) (bool, error) {
	if r == nil {
		return false, errors.New("quotes repository not initialised")
	}
	tag, err := r.pool.Exec(ctx, `UPDATE quotes SET status=$3, updated_at=NOW() WHERE id=$1 AND status=$2`,
		id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ExpireStale flips IN_REVIEW quotes past their validity window to EXPIRED
// and returns how many were affected. Used by the background sweep; lazy
// evaluation on read remains authoritative.
func (r *Repository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	if r == nil {
		return 0, errors.New("quotes repository not initialised")
	}
	tag, err := r.pool.Exec(ctx, `UPDATE quotes SET status=$2, updated_at=NOW()
WHERE status=$1 AND valid_until IS NOT NULL AND valid_until < $3`,
		string(QuoteStatusInReview), string(QuoteStatusExpired), now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
