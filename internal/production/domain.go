package production

import (
	"errors"
	"time"
)

// Status enumerates production lifecycle states. COMPLETED and CANCELLED
// are terminal.
type Status string

const (
	StatusPreparing Status = "PREPARING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Production is an internal work order derived from an approved quote.
// At most one production exists per quote, enforced by a unique constraint
// on quote_id.
type Production struct {
	ID          int64
	QuoteID     int64
	Status      Status
	StartedAt   time.Time
	CompletedAt time.Time
}

var (
	// ErrNotFound indicates an unknown production id.
	ErrNotFound = errors.New("production: not found")
	// ErrInvalidState indicates a transition from a terminal state.
	ErrInvalidState = errors.New("production: invalid state transition")
)
