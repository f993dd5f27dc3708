package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
	GetBalanceForUpdate(ctx context.Context, itemID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
}

type txRepository struct {
	tx pgx.Tx
}

// ErrBalanceNotFound indicates missing balance row.
var ErrBalanceNotFound = errors.New("inventory balance not found")

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetBalance reads the current balance outside a transaction.
func (r *Repository) GetBalance(ctx context.Context, itemID int64) (Balance, error) {
	if r == nil {
		return Balance{}, errors.New("inventory repository not initialised")
	}
	var bal Balance
	err := r.pool.QueryRow(ctx, `SELECT item_id, qty_on_hand, avg_unit_cost, last_movement_at
FROM inventory_balances WHERE item_id=$1`, itemID).
		Scan(&bal.ItemID, &bal.QuantityOnHand, &bal.AvgUnitCost, &bal.LastMovementAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{ItemID: itemID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

// ListMovements returns movements newest-first using a keyset cursor.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, quantity, kind, source, unit_cost, production_id, sale_id, ref_id, actor_id, occurred_at
FROM inventory_movements
WHERE ($1::bigint = 0 OR item_id = $1)
  AND ($2::bigint = 0 OR id < $2)
ORDER BY id DESC
LIMIT $3`, filter.ItemID, filter.BeforeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		var productionID, saleID *int64
		var refID *string
		if err := rows.Scan(&m.ID, &m.ItemID, &m.Quantity, &m.Kind, &m.Source, &m.UnitCost, &productionID, &saleID, &refID, &m.ActorID, &m.OccurredAt); err != nil {
			return nil, err
		}
		if productionID != nil {
			m.ProductionID = *productionID
		}
		if saleID != nil {
			m.SaleID = *saleID
		}
		if refID != nil {
			m.RefID = *refID
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *txRepository) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_movements (item_id, quantity, kind, source, unit_cost, production_id, sale_id, ref_id, actor_id, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		movement.ItemID, movement.Quantity, string(movement.Kind), string(movement.Source), movement.UnitCost,
		nullInt(movement.ProductionID), nullInt(movement.SaleID), nullString(movement.RefID), movement.ActorID, movement.OccurredAt).Scan(&id)
	return id, err
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, itemID int64) (Balance, error) {
	var bal Balance
	err := r.tx.QueryRow(ctx, `SELECT item_id, qty_on_hand, avg_unit_cost, last_movement_at
FROM inventory_balances WHERE item_id=$1 FOR UPDATE`, itemID).
		Scan(&bal.ItemID, &bal.QuantityOnHand, &bal.AvgUnitCost, &bal.LastMovementAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{ItemID: itemID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

func (r *txRepository) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_balances (item_id, qty_on_hand, avg_unit_cost, last_movement_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (item_id) DO UPDATE SET qty_on_hand=EXCLUDED.qty_on_hand, avg_unit_cost=EXCLUDED.avg_unit_cost, last_movement_at=EXCLUDED.last_movement_at`,
		balance.ItemID, balance.QuantityOnHand, balance.AvgUnitCost, balance.LastMovementAt)
	return err
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
