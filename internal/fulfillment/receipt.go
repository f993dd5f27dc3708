package fulfillment

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GoodsReceipt records an inbound delivery from a supplier. The movement
// and the expense entry reference it by Ref.
type GoodsReceipt struct {
	ID         int64
	Ref        string
	SupplierID int64
	ItemID     int64
	Quantity   float64
	UnitCost   float64
	ActorID    int64
	ReceivedAt time.Time
}

// ErrReceiptExists indicates a receipt with the same ref was already
// recorded.
var ErrReceiptExists = errors.New("fulfillment: goods receipt already recorded")

// ReceiptRepository persists goods receipts in PostgreSQL.
type ReceiptRepository struct {
	pool *pgxpool.Pool
}

// NewReceiptRepository constructs ReceiptRepository.
func NewReceiptRepository(pool *pgxpool.Pool) *ReceiptRepository {
	return &ReceiptRepository{pool: pool}
}

// Insert stores the receipt; a duplicate ref surfaces as ErrReceiptExists.
func (r *ReceiptRepository) Insert(ctx context.Context, receipt GoodsReceipt) (int64, error) {
	if r == nil {
		return 0, errors.New("receipt repository not initialised")
	}
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO goods_receipts (ref, supplier_id, item_id, quantity, unit_cost, actor_id, received_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		receipt.Ref, receipt.SupplierID, receipt.ItemID, receipt.Quantity, receipt.UnitCost, receipt.ActorID, receipt.ReceivedAt).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrReceiptExists
		}
		return 0, err
	}
	return id, nil
}
