package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeReposter struct {
	calls []int64
	fail  error
}

func (f *fakeReposter) RepostRevenue(ctx context.Context, saleID int64) error {
	f.calls = append(f.calls, saleID)
	return f.fail
}

type fakeExpirer struct {
	expired int64
}

func (f *fakeExpirer) ExpireStale(ctx context.Context) (int64, error) {
	return f.expired, nil
}

type fakeCleaner struct {
	olderThan time.Duration
	removed   int64
}

func (f *fakeCleaner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return f.removed, nil
}

type fakeMetrics struct {
	reposts int
	expired int64
}

func (f *fakeMetrics) LedgerRepost() { f.reposts++ }

func (f *fakeMetrics) QuotesExpired(n int64) { f.expired += n }

func TestHandleLedgerRepost(t *testing.T) {
	reposter := &fakeReposter{}
	metrics := &fakeMetrics{}
	handler := HandleLedgerRepost(reposter, metrics, slog.Default())

	task, err := NewLedgerRepostTask(42)
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, []int64{42}, reposter.calls)
	require.Equal(t, 1, metrics.reposts)
}

func TestHandleLedgerRepostRetriesOnFailure(t *testing.T) {
	reposter := &fakeReposter{fail: errors.New("ledger down")}
	handler := HandleLedgerRepost(reposter, nil, slog.Default())

	task, err := NewLedgerRepostTask(42)
	require.NoError(t, err)

	err = handler(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleLedgerRepostBadPayloadSkipsRetry(t *testing.T) {
	handler := HandleLedgerRepost(&fakeReposter{}, nil, slog.Default())
	err := handler(context.Background(), asynq.NewTask(TaskLedgerRepost, []byte("{broken")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleQuoteExpiry(t *testing.T) {
	metrics := &fakeMetrics{}
	handler := HandleQuoteExpiry(&fakeExpirer{expired: 3}, metrics, slog.Default())

	task, err := NewQuoteExpiryTask(time.Now())
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, int64(3), metrics.expired)
}

func TestHandleIdempotencyCleanupDefaultsRetention(t *testing.T) {
	cleaner := &fakeCleaner{removed: 5}
	handler := HandleIdempotencyCleanup(cleaner, slog.Default())

	task, err := NewIdempotencyCleanupTask(0)
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, 7*24*time.Hour, cleaner.olderThan)
}
