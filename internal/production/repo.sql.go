package production

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists productions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateIfAbsent inserts a PREPARING production for the quote, treating a
// unique violation on quote_id as "already created": the existing row is
// fetched and returned with created=false. This is the conflict-as-success
// guard that keeps retried approvals from scheduling duplicate work.
func (r *Repository) CreateIfAbsent(ctx context.Context, quoteID int64, startedAt time.Time) (Production, bool, error) {
	if r == nil {
		return Production{}, false, errors.New("production repository not initialised")
	}
	var p Production
	err := r.pool.QueryRow(ctx, `INSERT INTO productions (quote_id, status, started_at)
VALUES ($1,$2,$3) RETURNING id, quote_id, status, started_at`,
		quoteID, string(StatusPreparing), startedAt).
		Scan(&p.ID, &p.QuoteID, &p.Status, &p.StartedAt)
	if err == nil {
		return p, true, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		existing, getErr := r.GetByQuote(ctx, quoteID)
		if getErr != nil {
			return Production{}, false, getErr
		}
		return existing, false, nil
	}
	return Production{}, false, err
}

// Get loads a production by id.
func (r *Repository) Get(ctx context.Context, id int64) (Production, error) {
	if r == nil {
		return Production{}, errors.New("production repository not initialised")
	}
	return r.scanOne(r.pool.QueryRow(ctx, `SELECT id, quote_id, status, started_at, completed_at
FROM productions WHERE id=$1`, id))
}

// GetByQuote loads the production created for a quote.
func (r *Repository) GetByQuote(ctx context.Context, quoteID int64) (Production, error) {
	if r == nil {
		return Production{}, errors.New("production repository not initialised")
	}
	return r.scanOne(r.pool.QueryRow(ctx, `SELECT id, quote_id, status, started_at, completed_at
FROM productions WHERE quote_id=$1`, quoteID))
}

// Complete moves PREPARING -> COMPLETED as a single compare-and-swap
// update. Returns false when the production was not PREPARING.
func (r *Repository) Complete(ctx context.Context, id int64, completedAt time.Time) (bool, error) {
	if r == nil {
		return false, errors.New("production repository not initialised")
	}
	tag, err := r.pool.Exec(ctx, `UPDATE productions SET status=$2, completed_at=$3
WHERE id=$1 AND status=$4`, id, string(StatusCompleted), completedAt, string(StatusPreparing))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Cancel moves PREPARING -> CANCELLED.
func (r *Repository) Cancel(ctx context.Context, id int64) (bool, error) {
	if r == nil {
		return false, errors.New("production repository not initialised")
	}
	tag, err := r.pool.Exec(ctx, `UPDATE productions SET status=$2
WHERE id=$1 AND status=$3`, id, string(StatusCancelled), string(StatusPreparing))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) scanOne(row pgx.Row) (Production, error) {
	var p Production
	var completedAt *time.Time
	err := row.Scan(&p.ID, &p.QuoteID, &p.Status, &p.StartedAt, &completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Production{}, ErrNotFound
		}
		return Production{}, err
	}
	if completedAt != nil {
		p.CompletedAt = *completedAt
	}
	return p, nil
}
