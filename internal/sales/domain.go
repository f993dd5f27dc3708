package sales

import (
	"errors"
	"time"
)

// SaleStatus is fixed to COMPLETED when a sale is materialized from a
// finished production; other states exist for reconciliation tooling.
type SaleStatus string

const (
	SaleStatusCompleted SaleStatus = "COMPLETED"
	SaleStatusVoided    SaleStatus = "VOIDED"
)

// PaymentMethodPending is the placeholder until payment reconciliation
// assigns the real method.
const PaymentMethodPending = "PENDING"

// Sale is the billed record materialized from an approved quote once its
// production completes.
type Sale struct {
	ID            int64
	CustomerID    int64
	ProductionID  int64
	QuoteID       int64
	TotalAmount   float64
	SaleDate      time.Time
	Status        SaleStatus
	PaymentMethod string
	CreatedAt     time.Time
	Lines         []SaleLine
}

// SaleLine copies one quote line onto the sale. Unlike inventory
// deduction, sales include service lines: everything billed is here.
type SaleLine struct {
	ID        int64
	SaleID    int64
	ItemID    int64
	Quantity  float64
	UnitPrice float64
	Subtotal  float64
}

var (
	// ErrNotFound indicates an unknown sale.
	ErrNotFound = errors.New("sales: sale not found")
	// ErrNoLines indicates an attempt to materialize a sale from a quote
	// without lines.
	ErrNoLines = errors.New("sales: quote has no lines")
	// ErrAlreadyMaterialized indicates a sale already exists for the
	// production.
	ErrAlreadyMaterialized = errors.New("sales: sale already exists for production")
)
