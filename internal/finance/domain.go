package finance

import (
	"errors"
	"time"
)

// EntryKind separates revenue from expense ledger entries.
type EntryKind string

const (
	EntryRevenue EntryKind = "REVENUE"
	EntryExpense EntryKind = "EXPENSE"
)

// EntryStatus tracks settlement of a ledger entry.
type EntryStatus string

const (
	EntryStatusPaid    EntryStatus = "PAID"
	EntryStatusPending EntryStatus = "PENDING"
)

// LedgerEntry is a financial record of revenue or expense. It is
// independent of inventory cost basis: revenue entries carry the quote
// price, never COGS.
type LedgerEntry struct {
	ID          int64
	Kind        EntryKind
	Description string
	Amount      float64
	Category    string
	Date        time.Time
	Status      EntryStatus
	SaleID      int64
	ReceiptRef  string
	CreatedAt   time.Time
}

var (
	// ErrNotFound indicates an unknown ledger entry.
	ErrNotFound = errors.New("finance: entry not found")
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = errors.New("finance: amount must be positive")
	// ErrDuplicateEntry indicates the entry was already posted for its
	// source document.
	ErrDuplicateEntry = errors.New("finance: entry already posted")
)
