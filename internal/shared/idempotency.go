package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyStore persists processed operation keys. Each workflow step
// that must not run twice inserts (module, key) before acting; a unique
// violation means a previous invocation already completed the step and its
// recorded result id should be returned instead.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

var (
	// ErrIdempotencyConflict indicates a duplicate key.
	ErrIdempotencyConflict = errors.New("idempotent request already processed")
	// ErrResultNotFound indicates the key was never processed or its result
	// was not recorded.
	ErrResultNotFound = errors.New("idempotency result not found")
)

// CheckAndInsert ensures key uniqueness per module.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, module, time.Now())
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok {
			if pgErr.Code == "23505" {
				return ErrIdempotencyConflict
			}
		}
		return err
	}
	return nil
}

// RecordResult stores the id produced by the guarded operation so replays
// can return the original outcome.
func (s *IdempotencyStore) RecordResult(ctx context.Context, key string, resultID int64) error {
	if s == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE idempotency_keys SET result_id=$2 WHERE key=$1`, key, resultID)
	return err
}

// LookupResult returns the recorded result id for a processed key.
func (s *IdempotencyStore) LookupResult(ctx context.Context, key string) (int64, error) {
	if s == nil {
		return 0, errors.New("idempotency store not initialised")
	}
	var resultID int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(result_id, 0) FROM idempotency_keys WHERE key=$1`, key).Scan(&resultID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrResultNotFound
		}
		return 0, err
	}
	if resultID == 0 {
		return 0, ErrResultNotFound
	}
	return resultID, nil
}

// Cleanup removes entries older than retention and reports how many went.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Delete removes a key, typically used to roll back failed processing.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1`, key)
	return err
}
