package catalog

import (
	"errors"
	"time"
)

// ItemKind separates physical goods from billed services. Only products
// ever move inventory.
type ItemKind string

const (
	ItemKindProduct ItemKind = "PRODUCT"
	ItemKindService ItemKind = "SERVICE"
)

// Item is a sellable catalog entry.
type Item struct {
	ID        int64
	SKU       string
	Name      string
	Kind      ItemKind
	UnitPrice float64
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrItemNotFound indicates an unknown item reference.
var ErrItemNotFound = errors.New("catalog: item not found")
