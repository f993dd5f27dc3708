package fulfillment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/finance"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/production"
	"github.com/meridian-erp/meridian-erp/internal/quotes"
	"github.com/meridian-erp/meridian-erp/internal/sales"
)

// quote state machine backed by a map, driven through the real service

type memoryQuoteRepo struct {
	quotes map[int64]quotes.Quote
	nextID int64
}

func (r *memoryQuoteRepo) Create(ctx context.Context, quote quotes.Quote) (int64, error) {
	r.nextID++
	quote.ID = r.nextID
	for i := range quote.Lines {
		quote.Lines[i].ID = r.nextID*100 + int64(i+1)
		quote.Lines[i].QuoteID = quote.ID
	}
	r.quotes[quote.ID] = quote
	return quote.ID, nil
}

func (r *memoryQuoteRepo) Get(ctx context.Context, id int64) (quotes.Quote, error) {
	q, ok := r.quotes[id]
	if !ok {
		return quotes.Quote{}, quotes.ErrNotFound
	}
	return q, nil
}

func (r *memoryQuoteRepo) TransitionStatus(ctx context.Context, id int64, from, to quotes.QuoteStatus) (bool, error) {
	q, ok := r.quotes[id]
	if !ok {
		return false, quotes.ErrNotFound
	}
	if q.Status != from {
		return false, nil
	}
	q.Status = to
	r.quotes[id] = q
	return true, nil
}

func (r *memoryQuoteRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type memoryProductions struct {
	byID    map[int64]production.Production
	byQuote map[int64]int64
	nextID  int64
}

func newMemoryProductions() *memoryProductions {
	return &memoryProductions{byID: make(map[int64]production.Production), byQuote: make(map[int64]int64)}
}

func (m *memoryProductions) CreateIfAbsent(ctx context.Context, quoteID int64, startedAt time.Time) (production.Production, bool, error) {
	if id, ok := m.byQuote[quoteID]; ok {
		return m.byID[id], false, nil
	}
	m.nextID++
	p := production.Production{ID: m.nextID, QuoteID: quoteID, Status: production.StatusPreparing, StartedAt: startedAt}
	m.byID[p.ID] = p
	m.byQuote[quoteID] = p.ID
	return p, true, nil
}

func (m *memoryProductions) Get(ctx context.Context, id int64) (production.Production, error) {
	p, ok := m.byID[id]
	if !ok {
		return production.Production{}, production.ErrNotFound
	}
	return p, nil
}

func (m *memoryProductions) Complete(ctx context.Context, id int64, completedAt time.Time) (bool, error) {
	p, ok := m.byID[id]
	if !ok {
		return false, production.ErrNotFound
	}
	if p.Status != production.StatusPreparing {
		return false, nil
	}
	p.Status = production.StatusCompleted
	p.CompletedAt = completedAt
	m.byID[id] = p
	return true, nil
}

func (m *memoryProductions) Cancel(ctx context.Context, id int64) (bool, error) {
	p, ok := m.byID[id]
	if !ok {
		return false, production.ErrNotFound
	}
	if p.Status != production.StatusPreparing {
		return false, nil
	}
	p.Status = production.StatusCancelled
	m.byID[id] = p
	return true, nil
}

// inventory fake with ref dedup, mirroring the ledger's idempotency guard

type memoryInventory struct {
	movements []inventory.Movement
	balances  map[int64]float64
	seenRefs  map[string]bool
}

func newMemoryInventory() *memoryInventory {
	return &memoryInventory{balances: make(map[int64]float64), seenRefs: make(map[string]bool)}
}

func (m *memoryInventory) RecordMovement(ctx context.Context, input inventory.MovementInput) (inventory.Balance, error) {
	if input.RefID != "" && m.seenRefs[input.RefID] {
		return inventory.Balance{ItemID: input.ItemID, QuantityOnHand: m.balances[input.ItemID]}, nil
	}
	switch input.Kind {
	case inventory.MovementIn:
		m.balances[input.ItemID] += input.Quantity
	case inventory.MovementOut:
		m.balances[input.ItemID] -= input.Quantity
	case inventory.MovementAdjust:
		m.balances[input.ItemID] = input.Quantity
	}
	m.movements = append(m.movements, inventory.Movement{
		ID:           int64(len(m.movements) + 1),
		ItemID:       input.ItemID,
		Quantity:     input.Quantity,
		Kind:         input.Kind,
		Source:       input.Source,
		UnitCost:     input.UnitCost,
		ProductionID: input.ProductionID,
		RefID:        input.RefID,
	})
	if input.RefID != "" {
		m.seenRefs[input.RefID] = true
	}
	return inventory.Balance{ItemID: input.ItemID, QuantityOnHand: m.balances[input.ItemID]}, nil
}

type memorySales struct {
	byID   map[int64]sales.Sale
	byProd map[int64]int64
	nextID int64
}

func newMemorySales() *memorySales {
	return &memorySales{byID: make(map[int64]sales.Sale), byProd: make(map[int64]int64)}
}

func (m *memorySales) CreateFromQuote(ctx context.Context, quote quotes.Quote, productionID int64) (sales.Sale, error) {
	if len(quote.Lines) == 0 {
		return sales.Sale{}, sales.ErrNoLines
	}
	if id, ok := m.byProd[productionID]; ok {
		return m.byID[id], nil
	}
	m.nextID++
	sale := sales.Sale{
		ID:            m.nextID,
		CustomerID:    quote.CustomerID,
		ProductionID:  productionID,
		QuoteID:       quote.ID,
		TotalAmount:   quote.TotalAmount,
		Status:        sales.SaleStatusCompleted,
		PaymentMethod: sales.PaymentMethodPending,
	}
	for _, line := range quote.Lines {
		sale.Lines = append(sale.Lines, sales.SaleLine{ItemID: line.ItemID, Quantity: line.Quantity, UnitPrice: line.UnitPrice, Subtotal: line.Subtotal})
	}
	m.byID[sale.ID] = sale
	m.byProd[productionID] = sale.ID
	return sale, nil
}

func (m *memorySales) Get(ctx context.Context, id int64) (sales.Sale, error) {
	s, ok := m.byID[id]
	if !ok {
		return sales.Sale{}, sales.ErrNotFound
	}
	return s, nil
}

func (m *memorySales) GetByProduction(ctx context.Context, productionID int64) (sales.Sale, error) {
	id, ok := m.byProd[productionID]
	if !ok {
		return sales.Sale{}, sales.ErrNotFound
	}
	return m.byID[id], nil
}

type memoryFinance struct {
	revenue  map[int64]finance.LedgerEntry
	expenses map[string]finance.LedgerEntry
	fail     error
}

func newMemoryFinance() *memoryFinance {
	return &memoryFinance{revenue: make(map[int64]finance.LedgerEntry), expenses: make(map[string]finance.LedgerEntry)}
}

func (m *memoryFinance) PostRevenue(ctx context.Context, sale sales.Sale) (finance.LedgerEntry, error) {
	if m.fail != nil {
		return finance.LedgerEntry{}, m.fail
	}
	if entry, ok := m.revenue[sale.ID]; ok {
		return entry, nil
	}
	entry := finance.LedgerEntry{
		ID:     int64(len(m.revenue) + 1),
		Kind:   finance.EntryRevenue,
		Amount: sale.TotalAmount,
		SaleID: sale.ID,
	}
	m.revenue[sale.ID] = entry
	return entry, nil
}

func (m *memoryFinance) PostExpense(ctx context.Context, input finance.ExpenseInput) (finance.LedgerEntry, error) {
	if m.fail != nil {
		return finance.LedgerEntry{}, m.fail
	}
	entry := finance.LedgerEntry{Kind: finance.EntryExpense, Amount: input.Quantity * input.UnitCost, ReceiptRef: input.ReceiptRef}
	m.expenses[input.ReceiptRef] = entry
	return entry, nil
}

type memoryReceipts struct {
	byRef map[string]GoodsReceipt
}

func (m *memoryReceipts) Insert(ctx context.Context, receipt GoodsReceipt) (int64, error) {
	if _, ok := m.byRef[receipt.Ref]; ok {
		return 0, ErrReceiptExists
	}
	receipt.ID = int64(len(m.byRef) + 1)
	m.byRef[receipt.Ref] = receipt
	return receipt.ID, nil
}

type memoryQueue struct {
	saleIDs []int64
}

func (m *memoryQueue) EnqueueLedgerRepost(ctx context.Context, saleID int64) error {
	m.saleIDs = append(m.saleIDs, saleID)
	return nil
}

type fixture struct {
	svc       *Service
	quotes    *quotes.Service
	inventory *memoryInventory
	finance   *memoryFinance
	receipts  *memoryReceipts
	queue     *memoryQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	quoteSvc := quotes.NewService(&memoryQuoteRepo{quotes: make(map[int64]quotes.Quote)}, nil)
	inv := newMemoryInventory()
	fin := newMemoryFinance()
	receipts := &memoryReceipts{byRef: make(map[string]GoodsReceipt)}
	queue := &memoryQueue{}
	svc := NewService(ServiceParams{
		Quotes:      quoteSvc,
		Productions: newMemoryProductions(),
		Inventory:   inv,
		Sales:       newMemorySales(),
		Finance:     fin,
		Receipts:    receipts,
		Queue:       queue,
	})
	return &fixture{svc: svc, quotes: quoteSvc, inventory: inv, finance: fin, receipts: receipts, queue: queue}
}

func (f *fixture) submitQuote(t *testing.T, lines ...quotes.LineInput) quotes.Quote {
	t.Helper()
	quote, err := f.quotes.Submit(context.Background(), quotes.SubmitInput{
		CustomerID: 7,
		ValidUntil: time.Now().Add(48 * time.Hour),
		Lines:      lines,
	})
	require.NoError(t, err)
	return quote
}

func productLine(qty, price float64) quotes.LineInput {
	return quotes.LineInput{ItemID: 1, Kind: quotes.LineKindProduct, Quantity: qty, UnitPrice: price}
}

func TestHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.submitQuote(t, productLine(3, 10))

	approved, err := f.svc.ApproveQuote(ctx, quote.ID, 1)
	require.NoError(t, err)
	require.False(t, approved.Reused)
	require.Equal(t, production.StatusPreparing, approved.Production.Status)
	require.Equal(t, quote.ID, approved.Production.QuoteID)

	sale, err := f.svc.CompleteProduction(ctx, approved.Production.ID, quote.ID, 1)
	require.NoError(t, err)
	require.InDelta(t, 30.0, sale.TotalAmount, 0.001)
	require.Len(t, sale.Lines, 1)

	require.Len(t, f.inventory.movements, 1)
	movement := f.inventory.movements[0]
	require.Equal(t, inventory.MovementOut, movement.Kind)
	require.Equal(t, inventory.SourceProduction, movement.Source)
	require.InDelta(t, 3.0, movement.Quantity, 0.001)

	entry, ok := f.finance.revenue[sale.ID]
	require.True(t, ok)
	require.InDelta(t, 30.0, entry.Amount, 0.001)
}

func TestApproveQuoteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.submitQuote(t, productLine(3, 10))

	first, err := f.svc.ApproveQuote(ctx, quote.ID, 1)
	require.NoError(t, err)

	second, err := f.svc.ApproveQuote(ctx, quote.ID, 1)
	require.NoError(t, err)
	require.True(t, second.Reused)
	require.Equal(t, first.Production.ID, second.Production.ID)
}

func TestCompleteProductionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.submitQuote(t, productLine(3, 10))

	approved, err := f.svc.ApproveQuote(ctx, quote.ID, 1)
	require.NoError(t, err)

	first, err := f.svc.CompleteProduction(ctx, approved.Production.ID, quote.ID, 1)
	require.NoError(t, err)

	second, err := f.svc.CompleteProduction(ctx, approved.Production.ID, quote.ID, 1)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	// one line's worth of movements, not two
	require.Len(t, f.inventory.movements, 1)
	require.Len(t, f.finance.revenue, 1)
}

func TestServiceOnlyQuoteMovesNoInventory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.submitQuote(t, quotes.LineInput{ItemID: 9, Kind: quotes.LineKindService, Quantity: 2, UnitPrice: 40})

	approved, err := f.svc.ApproveQuote(ctx, quote.ID, 1)
	require.NoError(t, err)

	sale, err := f.svc.CompleteProduction(ctx, approved.Production.ID, quote.ID, 1)
	require.NoError(t, err)
	require.Len(t, sale.Lines, 1)
	require.InDelta(t, 80.0, sale.TotalAmount, 0.001)
	require.Empty(t, f.inventory.movements)
}

func TestRevenuePostingFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.submitQuote(t, productLine(3, 10))

	approved, err := f.svc.ApproveQuote(ctx, quote.ID, 1)
	require.NoError(t, err)

	f.finance.fail = errors.New("ledger unavailable")
	sale, err := f.svc.CompleteProduction(ctx, approved.Production.ID, quote.ID, 1)
	require.NoError(t, err)
	require.Empty(t, f.finance.revenue)
	require.Equal(t, []int64{sale.ID}, f.queue.saleIDs)

	// the queued repost lands once the ledger recovers
	f.finance.fail = nil
	require.NoError(t, f.svc.RepostRevenue(ctx, sale.ID))
	require.Len(t, f.finance.revenue, 1)
}

func TestCompleteProductionQuoteMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.submitQuote(t, productLine(3, 10))

	approved, err := f.svc.ApproveQuote(ctx, quote.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.CompleteProduction(ctx, approved.Production.ID, quote.ID+100, 1)
	require.ErrorIs(t, err, ErrQuoteMismatch)
}

func TestCompleteProductionDeductsEveryLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// the same product on two lines at different prices deducts per line
	quote := f.submitQuote(t, productLine(3, 10), productLine(2, 8))

	approved, err := f.svc.ApproveQuote(ctx, quote.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.CompleteProduction(ctx, approved.Production.ID, quote.ID, 1)
	require.NoError(t, err)

	require.Len(t, f.inventory.movements, 2)
	require.InDelta(t, -5.0, f.inventory.balances[1], 0.0001)
}

func TestCancelProduction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.submitQuote(t, productLine(3, 10))

	approved, err := f.svc.ApproveQuote(ctx, quote.ID, 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelProduction(ctx, approved.Production.ID, quote.ID, 1))
	// cancelling again is a no-op
	require.NoError(t, f.svc.CancelProduction(ctx, approved.Production.ID, quote.ID, 1))

	_, err = f.svc.CompleteProduction(ctx, approved.Production.ID, quote.ID, 1)
	require.ErrorIs(t, err, ErrProductionCancelled)
	require.Empty(t, f.inventory.movements)
}

func TestCancelCompletedProduction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.submitQuote(t, productLine(1, 10))

	approved, err := f.svc.ApproveQuote(ctx, quote.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.CompleteProduction(ctx, approved.Production.ID, quote.ID, 1)
	require.NoError(t, err)

	err = f.svc.CancelProduction(ctx, approved.Production.ID, quote.ID, 1)
	require.ErrorIs(t, err, production.ErrInvalidState)
}

func TestCompleteUnknownProduction(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CompleteProduction(context.Background(), 42, 1, 1)
	require.ErrorIs(t, err, production.ErrNotFound)
}

func TestRecordGoodsReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	balance, err := f.svc.RecordGoodsReceipt(ctx, ReceiptInput{
		Ref:        "GR-1",
		SupplierID: 3,
		ItemID:     1,
		Quantity:   5,
		UnitCost:   4,
	})
	require.NoError(t, err)
	require.InDelta(t, 5.0, balance.QuantityOnHand, 0.001)
	require.Contains(t, f.receipts.byRef, "GR-1")

	entry, ok := f.finance.expenses["GR-1"]
	require.True(t, ok)
	require.InDelta(t, 20.0, entry.Amount, 0.001)

	// replaying the same receipt adds no stock
	balance, err = f.svc.RecordGoodsReceipt(ctx, ReceiptInput{
		Ref:        "GR-1",
		SupplierID: 3,
		ItemID:     1,
		Quantity:   5,
		UnitCost:   4,
	})
	require.NoError(t, err)
	require.InDelta(t, 5.0, balance.QuantityOnHand, 0.001)
	require.Len(t, f.inventory.movements, 1)
}

func TestRecordGoodsReceiptValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RecordGoodsReceipt(ctx, ReceiptInput{SupplierID: 3, ItemID: 1, Quantity: 0, UnitCost: 4})
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)

	_, err = f.svc.RecordGoodsReceipt(ctx, ReceiptInput{SupplierID: 3, ItemID: 1, Quantity: 5})
	require.ErrorIs(t, err, inventory.ErrMissingUnitCost)
}
