package inventory

import (
	"errors"
	"time"
)

// MovementKind enumerates supported stock movements.
type MovementKind string

const (
	// MovementIn represents an inbound movement; requires a unit cost.
	MovementIn MovementKind = "IN"
	// MovementOut represents an outbound movement at the running average cost.
	MovementOut MovementKind = "OUT"
	// MovementAdjust sets the on-hand quantity to an absolute value.
	MovementAdjust MovementKind = "ADJUST"
)

// MovementSource records which business process produced a movement.
type MovementSource string

const (
	SourcePurchase     MovementSource = "PURCHASE"
	SourceProduction   MovementSource = "PRODUCTION"
	SourceSale         MovementSource = "SALE"
	SourceManualAdjust MovementSource = "MANUAL_ADJUST"
	SourceRestock      MovementSource = "RESTOCK"
)

// Movement is one immutable, signed change to an item's stock. The movement
// log is append-only and is the system of record for stock history; the
// balance table is a materialized cache of it.
type Movement struct {
	ID           int64
	ItemID       int64
	Quantity     float64
	Kind         MovementKind
	Source       MovementSource
	UnitCost     float64
	ProductionID int64
	SaleID       int64
	RefID        string
	ActorID      int64
	OccurredAt   time.Time
}

// Balance summarises on-hand stock per item with its running weighted
// average unit cost. Created lazily on the first movement for an item.
type Balance struct {
	ItemID         int64
	QuantityOnHand float64
	AvgUnitCost    float64
	LastMovementAt time.Time
}

// MovementFilter selects movements for history listings. BeforeID is a
// keyset cursor: zero means start from the newest entry.
type MovementFilter struct {
	ItemID   int64
	BeforeID int64
	Limit    int
}

var (
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrMissingUnitCost indicates an inbound movement without a unit cost.
	ErrMissingUnitCost = errors.New("inventory: unit cost required for inbound movement")
	// ErrUnknownItem indicates the item reference does not resolve in the catalog.
	ErrUnknownItem = errors.New("inventory: unknown catalog item")
	// ErrInsufficientStock triggered when a movement would drive stock negative
	// and negative stock is not allowed.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInvalidKind indicates an unsupported movement kind.
	ErrInvalidKind = errors.New("inventory: invalid movement kind")
)
