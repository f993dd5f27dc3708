package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// RevenueReposter re-runs a failed revenue posting.
type RevenueReposter interface {
	RepostRevenue(ctx context.Context, saleID int64) error
}

// QuoteExpirer moves stale quotes to EXPIRED.
type QuoteExpirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// KeyCleaner prunes settled idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SweepMetrics records background sweep outcomes.
type SweepMetrics interface {
	LedgerRepost()
	QuotesExpired(n int64)
}

// HandleLedgerRepost builds the handler for TaskLedgerRepost.
func HandleLedgerRepost(reposter RevenueReposter, metrics SweepMetrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LedgerRepostPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if err := reposter.RepostRevenue(ctx, payload.SaleID); err != nil {
			logger.Warn("ledger repost failed",
				slog.Int64("sale_id", payload.SaleID),
				slog.Any("error", err))
			return err
		}
		if metrics != nil {
			metrics.LedgerRepost()
		}
		logger.Info("ledger repost landed", slog.Int64("sale_id", payload.SaleID))
		return nil
	}
}

// HandleQuoteExpiry builds the handler for TaskQuoteExpiry.
func HandleQuoteExpiry(expirer QuoteExpirer, metrics SweepMetrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		expired, err := expirer.ExpireStale(ctx)
		if err != nil {
			return err
		}
		if expired > 0 {
			if metrics != nil {
				metrics.QuotesExpired(expired)
			}
			logger.Info("expired stale quotes", slog.Int64("count", expired))
		}
		return nil
	}
}

// HandleIdempotencyCleanup builds the handler for TaskIdempotencyCleanup.
func HandleIdempotencyCleanup(cleaner KeyCleaner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload IdempotencyCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		retention := payload.Retention
		if retention <= 0 {
			retention = 7 * 24 * time.Hour
		}
		removed, err := cleaner.Cleanup(ctx, retention)
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.Info("pruned idempotency keys", slog.Int64("count", removed))
		}
		return nil
	}
}
