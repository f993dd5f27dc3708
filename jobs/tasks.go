package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerRepost retries a revenue posting that failed during
	// production completion.
	TaskLedgerRepost = "ledger:repost"
	// TaskQuoteExpiry sweeps quotes whose validity window has passed.
	TaskQuoteExpiry = "quotes:expire"
	// TaskIdempotencyCleanup prunes settled idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// LedgerRepostPayload identifies the sale whose revenue entry is missing.
type LedgerRepostPayload struct {
	SaleID int64 `json:"sale_id"`
}

// NewLedgerRepostTask constructs an Asynq task for a revenue repost.
func NewLedgerRepostTask(saleID int64) (*asynq.Task, error) {
	body, err := json.Marshal(LedgerRepostPayload{SaleID: saleID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerRepost, body, asynq.Queue(QueueDefault), asynq.MaxRetry(10)), nil
}

// QuoteExpiryPayload carries scheduling metadata.
type QuoteExpiryPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewQuoteExpiryTask constructs an Asynq task for the expiry sweep.
func NewQuoteExpiryTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(QuoteExpiryPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuoteExpiry, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload sets the retention horizon for settled keys.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for key cleanup.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
