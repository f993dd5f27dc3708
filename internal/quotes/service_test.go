package quotes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryQuoteRepo struct {
	quotes map[int64]Quote
	nextID int64
}

func newMemoryQuoteRepo() *memoryQuoteRepo {
	return &memoryQuoteRepo{quotes: make(map[int64]Quote)}
}

func (r *memoryQuoteRepo) Create(ctx context.Context, quote Quote) (int64, error) {
	r.nextID++
	quote.ID = r.nextID
	quote.CreatedAt = time.Now()
	for i := range quote.Lines {
		quote.Lines[i].ID = int64(i + 1)
		quote.Lines[i].QuoteID = quote.ID
	}
	r.quotes[quote.ID] = quote
	return quote.ID, nil
}

func (r *memoryQuoteRepo) Get(ctx context.Context, id int64) (Quote, error) {
	q, ok := r.quotes[id]
	if !ok {
		return Quote{}, ErrNotFound
	}
	q.Lines = append([]QuoteLine(nil), q.Lines...)
	return q, nil
}

func (r *memoryQuoteRepo) TransitionStatus(ctx context.Context, id int64, from, to QuoteStatus) (bool, error) {
	q, ok := r.quotes[id]
	if !ok {
		return false, ErrNotFound
	}
	if q.Status != from {
		return false, nil
	}
	q.Status = to
	r.quotes[id] = q
	return true, nil
}

func (r *memoryQuoteRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for id, q := range r.quotes {
		if q.Expired(now) {
			q.Status = QuoteStatusExpired
			r.quotes[id] = q
			n++
		}
	}
	return n, nil
}

func submitTestQuote(t *testing.T, svc *Service) Quote {
	t.Helper()
	quote, err := svc.Submit(context.Background(), SubmitInput{
		CustomerID: 7,
		ValidUntil: time.Now().Add(48 * time.Hour),
		Lines: []LineInput{
			{ItemID: 1, Kind: LineKindProduct, Quantity: 3, UnitPrice: 10},
			{ItemID: 2, Kind: LineKindService, Quantity: 1, UnitPrice: 25.5},
		},
	})
	require.NoError(t, err)
	return quote
}

func TestSubmitComputesTotals(t *testing.T) {
	svc := NewService(newMemoryQuoteRepo(), nil)

	quote := submitTestQuote(t, svc)
	require.Equal(t, QuoteStatusInReview, quote.Status)
	require.Len(t, quote.Lines, 2)
	require.InDelta(t, 30.0, quote.Lines[0].Subtotal, 0.001)
	require.InDelta(t, 25.5, quote.Lines[1].Subtotal, 0.001)
	require.InDelta(t, 55.5, quote.TotalAmount, 0.001)
}

func TestSubmitValidation(t *testing.T) {
	svc := NewService(newMemoryQuoteRepo(), nil)
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmitInput{CustomerID: 1})
	require.ErrorIs(t, err, ErrNoLines)

	_, err = svc.Submit(ctx, SubmitInput{CustomerID: 1, Lines: []LineInput{
		{ItemID: 1, Kind: LineKindProduct, Quantity: 0, UnitPrice: 10},
	}})
	require.ErrorIs(t, err, ErrInvalidLine)

	_, err = svc.Submit(ctx, SubmitInput{CustomerID: 1, Lines: []LineInput{
		{ItemID: 1, Kind: LineKindProduct, Quantity: 2, UnitPrice: -1},
	}})
	require.ErrorIs(t, err, ErrInvalidLine)
}

func TestApproveIsIdempotent(t *testing.T) {
	svc := NewService(newMemoryQuoteRepo(), nil)
	quote := submitTestQuote(t, svc)
	ctx := context.Background()

	approved, noop, err := svc.Approve(ctx, quote.ID, 1)
	require.NoError(t, err)
	require.False(t, noop)
	require.Equal(t, QuoteStatusApproved, approved.Status)

	again, noop, err := svc.Approve(ctx, quote.ID, 1)
	require.NoError(t, err)
	require.True(t, noop)
	require.Equal(t, approved.ID, again.ID)
}

func TestApproveTerminalStates(t *testing.T) {
	svc := NewService(newMemoryQuoteRepo(), nil)
	quote := submitTestQuote(t, svc)
	ctx := context.Background()

	_, err := svc.Reject(ctx, quote.ID, 1)
	require.NoError(t, err)

	_, _, err = svc.Approve(ctx, quote.ID, 1)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestLazyExpiry(t *testing.T) {
	repo := newMemoryQuoteRepo()
	svc := NewService(repo, nil)
	quote := submitTestQuote(t, svc)
	ctx := context.Background()

	svc.now = func() time.Time { return time.Now().Add(72 * time.Hour) }

	got, err := svc.Get(ctx, quote.ID)
	require.NoError(t, err)
	require.Equal(t, QuoteStatusExpired, got.Status)

	_, _, err = svc.Approve(ctx, quote.ID, 1)
	require.ErrorIs(t, err, ErrExpired)
}

func TestExpireStaleSweep(t *testing.T) {
	repo := newMemoryQuoteRepo()
	svc := NewService(repo, nil)
	submitTestQuote(t, svc)
	submitTestQuote(t, svc)

	svc.now = func() time.Time { return time.Now().Add(72 * time.Hour) }

	n, err := svc.ExpireStale(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}
