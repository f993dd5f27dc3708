package quotes

import (
	"errors"
	"time"
)

// QuoteStatus enumerates the quote lifecycle. Transitions are one-way:
// IN_REVIEW is the only state that can still move.
type QuoteStatus string

const (
	QuoteStatusInReview QuoteStatus = "IN_REVIEW"
	QuoteStatusApproved QuoteStatus = "APPROVED"
	QuoteStatusRejected QuoteStatus = "REJECTED"
	QuoteStatusExpired  QuoteStatus = "EXPIRED"
)

// LineKind mirrors the catalog item kind on the quote line so downstream
// consumers do not need a catalog lookup to know whether the line moves
// inventory.
type LineKind string

const (
	LineKindProduct LineKind = "PRODUCT"
	LineKindService LineKind = "SERVICE"
)

// Quote is a priced offer to a customer. Approved quotes are never hard
// deleted.
type Quote struct {
	ID          int64
	CustomerID  int64
	Status      QuoteStatus
	TotalAmount float64
	ValidUntil  time.Time
	DeliveryBy  time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Lines       []QuoteLine
}

// QuoteLine is one priced item on a quote. Subtotal is fixed at creation
// time as Quantity * UnitPrice.
type QuoteLine struct {
	ID        int64
	QuoteID   int64
	ItemID    int64
	Kind      LineKind
	Quantity  float64
	UnitPrice float64
	Subtotal  float64
}

// Expired reports whether the quote has passed its validity window at the
// given instant. Expiry is evaluated lazily wherever a quote is read.
func (q Quote) Expired(now time.Time) bool {
	return q.Status == QuoteStatusInReview && !q.ValidUntil.IsZero() && q.ValidUntil.Before(now)
}

var (
	// ErrNoLines indicates a quote submitted without lines.
	ErrNoLines = errors.New("quotes: at least one line required")
	// ErrInvalidLine indicates a non-positive quantity or price.
	ErrInvalidLine = errors.New("quotes: quantity and unit price must be positive")
	// ErrInvalidStatus indicates a transition from a terminal state.
	ErrInvalidStatus = errors.New("quotes: invalid status transition")
	// ErrExpired indicates the quote validity window has passed.
	ErrExpired = errors.New("quotes: quote expired")
	// ErrNotFound indicates an unknown quote id.
	ErrNotFound = errors.New("quotes: quote not found")
)
