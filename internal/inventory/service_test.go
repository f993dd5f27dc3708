package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	balances  map[int64]Balance
	movements []Movement
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{balances: make(map[int64]Balance)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetBalance(ctx context.Context, itemID int64) (Balance, error) {
	if bal, ok := r.balances[itemID]; ok {
		return bal, nil
	}
	return Balance{ItemID: itemID}, ErrBalanceNotFound
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	result := []Movement{}
	for i := len(r.movements) - 1; i >= 0; i-- {
		m := r.movements[i]
		if filter.ItemID != 0 && m.ItemID != filter.ItemID {
			continue
		}
		if filter.BeforeID != 0 && m.ID >= filter.BeforeID {
			continue
		}
		result = append(result, m)
		if len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	tx.repo.nextID++
	movement.ID = tx.repo.nextID
	tx.repo.movements = append(tx.repo.movements, movement)
	return movement.ID, nil
}

func (tx *memoryTx) GetBalanceForUpdate(ctx context.Context, itemID int64) (Balance, error) {
	return tx.repo.GetBalance(ctx, itemID)
}

func (tx *memoryTx) UpsertBalance(ctx context.Context, balance Balance) error {
	tx.repo.balances[balance.ItemID] = balance
	return nil
}

type staticCatalog struct {
	known map[int64]bool
}

func (c staticCatalog) Exists(ctx context.Context, itemID int64) (bool, error) {
	return c.known[itemID], nil
}

func newTestService(cfg ServiceConfig) (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	catalog := staticCatalog{known: map[int64]bool{1: true, 2: true}}
	return NewService(repo, catalog, nil, nil, nil, cfg), repo
}

func TestWeightedAverageCost(t *testing.T) {
	svc, _ := newTestService(ServiceConfig{})
	ctx := context.Background()

	bal, err := svc.RecordMovement(ctx, MovementInput{ItemID: 1, Quantity: 10, Kind: MovementIn, Source: SourcePurchase, UnitCost: 2})
	require.NoError(t, err)
	require.InDelta(t, 10.0, bal.QuantityOnHand, 0.0001)
	require.InDelta(t, 2.0, bal.AvgUnitCost, 0.0001)

	bal, err = svc.RecordMovement(ctx, MovementInput{ItemID: 1, Quantity: 5, Kind: MovementIn, Source: SourcePurchase, UnitCost: 5})
	require.NoError(t, err)
	require.InDelta(t, 15.0, bal.QuantityOnHand, 0.0001)
	require.InDelta(t, 3.0, bal.AvgUnitCost, 0.0001)
}

func TestOutflowKeepsAverageCost(t *testing.T) {
	svc, repo := newTestService(ServiceConfig{})
	ctx := context.Background()

	_, err := svc.RecordMovement(ctx, MovementInput{ItemID: 1, Quantity: 10, Kind: MovementIn, Source: SourcePurchase, UnitCost: 4})
	require.NoError(t, err)

	bal, err := svc.RecordMovement(ctx, MovementInput{ItemID: 1, Quantity: 6, Kind: MovementOut, Source: SourceProduction})
	require.NoError(t, err)
	require.InDelta(t, 4.0, bal.QuantityOnHand, 0.0001)
	require.InDelta(t, 4.0, bal.AvgUnitCost, 0.0001)

	// the out movement row records the cost it consumed at
	last := repo.movements[len(repo.movements)-1]
	require.Equal(t, MovementOut, last.Kind)
	require.InDelta(t, 4.0, last.UnitCost, 0.0001)
}

func TestAdjustSetsAbsoluteQuantity(t *testing.T) {
	svc, _ := newTestService(ServiceConfig{})
	ctx := context.Background()

	_, err := svc.RecordMovement(ctx, MovementInput{ItemID: 1, Quantity: 10, Kind: MovementIn, Source: SourcePurchase, UnitCost: 3})
	require.NoError(t, err)

	bal, err := svc.RecordMovement(ctx, MovementInput{ItemID: 1, Quantity: 4, Kind: MovementAdjust, Source: SourceManualAdjust})
	require.NoError(t, err)
	require.InDelta(t, 4.0, bal.QuantityOnHand, 0.0001)
	require.InDelta(t, 3.0, bal.AvgUnitCost, 0.0001)
}

func TestNegativeStockPolicy(t *testing.T) {
	svc, _ := newTestService(ServiceConfig{})
	ctx := context.Background()

	_, err := svc.RecordMovement(ctx, MovementInput{ItemID: 1, Quantity: 3, Kind: MovementOut, Source: SourceProduction})
	require.ErrorIs(t, err, ErrInsufficientStock)

	permissive, _ := newTestService(ServiceConfig{AllowNegativeStock: true})
	bal, err := permissive.RecordMovement(ctx, MovementInput{ItemID: 1, Quantity: 3, Kind: MovementOut, Source: SourceProduction})
	require.NoError(t, err)
	require.InDelta(t, -3.0, bal.QuantityOnHand, 0.0001)
}

func TestRecordMovementValidation(t *testing.T) {
	svc, _ := newTestService(ServiceConfig{})
	ctx := context.Background()

	_, err := svc.RecordMovement(ctx, MovementInput{ItemID: 1, Quantity: 0, Kind: MovementIn, UnitCost: 1})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.RecordMovement(ctx, MovementInput{ItemID: 1, Quantity: 5, Kind: MovementIn})
	require.ErrorIs(t, err, ErrMissingUnitCost)

	_, err = svc.RecordMovement(ctx, MovementInput{ItemID: 99, Quantity: 5, Kind: MovementIn, UnitCost: 1})
	require.ErrorIs(t, err, ErrUnknownItem)
}

func TestBalanceMatchesMovementReplay(t *testing.T) {
	svc, repo := newTestService(ServiceConfig{AllowNegativeStock: true})
	ctx := context.Background()

	steps := []MovementInput{
		{ItemID: 1, Quantity: 10, Kind: MovementIn, Source: SourcePurchase, UnitCost: 2},
		{ItemID: 1, Quantity: 4, Kind: MovementOut, Source: SourceProduction},
		{ItemID: 1, Quantity: 5, Kind: MovementIn, Source: SourceRestock, UnitCost: 3},
		{ItemID: 1, Quantity: 8, Kind: MovementOut, Source: SourceSale},
		{ItemID: 1, Quantity: 6, Kind: MovementAdjust, Source: SourceManualAdjust},
		{ItemID: 1, Quantity: 2, Kind: MovementOut, Source: SourceProduction},
	}
	for _, step := range steps {
		_, err := svc.RecordMovement(ctx, step)
		require.NoError(t, err)
	}

	// Replay the log: IN adds, OUT subtracts, ADJUST overrides.
	var replayed float64
	for _, m := range repo.movements {
		switch m.Kind {
		case MovementIn:
			replayed += m.Quantity
		case MovementOut:
			replayed -= m.Quantity
		case MovementAdjust:
			replayed = m.Quantity
		}
	}

	bal, err := svc.GetBalance(ctx, 1)
	require.NoError(t, err)
	require.InDelta(t, replayed, bal.QuantityOnHand, 0.0001)
	require.InDelta(t, 4.0, bal.QuantityOnHand, 0.0001)
}

type memoryIdempotency struct {
	keys    map[string]bool
	results map[string]int64
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) RecordResult(ctx context.Context, key string, resultID int64) error {
	if m.results == nil {
		m.results = make(map[string]int64)
	}
	m.results[key] = resultID
	return nil
}

func (m *memoryIdempotency) LookupResult(ctx context.Context, key string) (int64, error) {
	id, ok := m.results[key]
	if !ok || id == 0 {
		return 0, shared.ErrResultNotFound
	}
	return id, nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	delete(m.results, key)
	return nil
}

func TestRefKeyedMovementAppliesOnce(t *testing.T) {
	repo := newMemoryRepo()
	catalog := staticCatalog{known: map[int64]bool{1: true}}
	idem := &memoryIdempotency{}
	svc := NewService(repo, catalog, nil, idem, nil, ServiceConfig{})
	ctx := context.Background()

	input := MovementInput{ItemID: 1, Quantity: 10, Kind: MovementIn, Source: SourcePurchase, UnitCost: 2, RefID: "gr-1:1"}

	bal, err := svc.RecordMovement(ctx, input)
	require.NoError(t, err)
	require.InDelta(t, 10.0, bal.QuantityOnHand, 0.0001)

	// the key remembers which movement it produced
	resultID, err := idem.LookupResult(ctx, "gr-1:1")
	require.NoError(t, err)
	require.Equal(t, repo.movements[0].ID, resultID)

	bal, err = svc.RecordMovement(ctx, input)
	require.NoError(t, err)
	require.InDelta(t, 10.0, bal.QuantityOnHand, 0.0001)
	require.Len(t, repo.movements, 1)
}

type memoryAudit struct {
	logs []shared.AuditLog
}

func (m *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func TestAdjustReasonIsAudited(t *testing.T) {
	repo := newMemoryRepo()
	catalog := staticCatalog{known: map[int64]bool{1: true}}
	audit := &memoryAudit{}
	svc := NewService(repo, catalog, audit, nil, nil, ServiceConfig{})

	_, err := svc.RecordMovement(context.Background(), MovementInput{
		ItemID:   1,
		Quantity: 4,
		Kind:     MovementAdjust,
		Source:   SourceManualAdjust,
		Reason:   "stocktake 2026-08",
	})
	require.NoError(t, err)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "stocktake 2026-08", audit.logs[0].Meta["reason"])
}

func TestGetBalanceZeroDefault(t *testing.T) {
	svc, _ := newTestService(ServiceConfig{})
	bal, err := svc.GetBalance(context.Background(), 2)
	require.NoError(t, err)
	require.Zero(t, bal.QuantityOnHand)
	require.Zero(t, bal.AvgUnitCost)
	require.EqualValues(t, 2, bal.ItemID)
}

func TestListMovementsCursor(t *testing.T) {
	svc, _ := newTestService(ServiceConfig{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.RecordMovement(ctx, MovementInput{ItemID: 1, Quantity: 1, Kind: MovementIn, Source: SourcePurchase, UnitCost: 1})
		require.NoError(t, err)
	}

	first, err := svc.ListMovements(ctx, MovementFilter{ItemID: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Greater(t, first[0].ID, first[1].ID)

	rest, err := svc.ListMovements(ctx, MovementFilter{ItemID: 1, BeforeID: first[1].ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rest, 3)
}
