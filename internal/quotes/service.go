package quotes

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	Create(ctx context.Context, quote Quote) (int64, error)
	Get(ctx context.Context, id int64) (Quote, error)
	TransitionStatus(ctx context.Context, id int64, from, to QuoteStatus) (bool, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements the quote state machine.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// SubmitInput describes a new quote.
type SubmitInput struct {
	CustomerID int64
	ValidUntil time.Time
	DeliveryBy time.Time
	ActorID    int64
	Lines      []LineInput
}

// LineInput describes one quote line.
type LineInput struct {
	ItemID    int64
	Kind      LineKind
	Quantity  float64
	UnitPrice float64
}

// Submit creates a quote in IN_REVIEW. The total is fixed here as the sum
// of line subtotals and is not re-validated later.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (Quote, error) {
	if len(input.Lines) == 0 {
		return Quote{}, ErrNoLines
	}
	if input.CustomerID == 0 {
		return Quote{}, fmt.Errorf("%w: customer required", ErrInvalidLine)
	}
	quote := Quote{
		CustomerID: input.CustomerID,
		Status:     QuoteStatusInReview,
		ValidUntil: input.ValidUntil,
		DeliveryBy: input.DeliveryBy,
	}
	for _, line := range input.Lines {
		if line.Quantity <= 0 || line.UnitPrice <= 0 {
			return Quote{}, ErrInvalidLine
		}
		if line.Kind != LineKindProduct && line.Kind != LineKindService {
			return Quote{}, fmt.Errorf("%w: unknown line kind %q", ErrInvalidLine, line.Kind)
		}
		subtotal := roundMoney(line.Quantity * line.UnitPrice)
		quote.Lines = append(quote.Lines, QuoteLine{
			ItemID:    line.ItemID,
			Kind:      line.Kind,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Subtotal:  subtotal,
		})
		quote.TotalAmount = roundMoney(quote.TotalAmount + subtotal)
	}

	id, err := s.repo.Create(ctx, quote)
	if err != nil {
		return Quote{}, fmt.Errorf("quotes: create: %w", err)
	}
	s.recordAudit(ctx, input.ActorID, "QUOTE_SUBMIT", id, map[string]any{"total": quote.TotalAmount, "lines": len(quote.Lines)})
	return s.repo.Get(ctx, id)
}

// Get loads a quote, lazily expiring it when the validity window passed.
func (s *Service) Get(ctx context.Context, id int64) (Quote, error) {
	quote, err := s.repo.Get(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	if quote.Expired(s.now()) {
		// Persist lazily; a lost race just means someone else expired it.
		if _, err := s.repo.TransitionStatus(ctx, id, QuoteStatusInReview, QuoteStatusExpired); err != nil {
			return Quote{}, fmt.Errorf("quotes: expire: %w", err)
		}
		quote.Status = QuoteStatusExpired
	}
	return quote, nil
}

// Approve transitions IN_REVIEW -> APPROVED. Re-approving an APPROVED quote
// is a no-op returning the existing quote, so retried approval requests
// never start a second workflow run. The second return value reports the
// no-op case.
func (s *Service) Approve(ctx context.Context, id int64, actorID int64) (Quote, bool, error) {
	quote, err := s.Get(ctx, id)
	if err != nil {
		return Quote{}, false, err
	}
	switch quote.Status {
	case QuoteStatusApproved:
		return quote, true, nil
	case QuoteStatusRejected:
		return Quote{}, false, fmt.Errorf("%w: quote %d is rejected", ErrInvalidStatus, id)
	case QuoteStatusExpired:
		return Quote{}, false, fmt.Errorf("%w: quote %d", ErrExpired, id)
	}

	moved, err := s.repo.TransitionStatus(ctx, id, QuoteStatusInReview, QuoteStatusApproved)
	if err != nil {
		return Quote{}, false, fmt.Errorf("quotes: approve: %w", err)
	}
	if !moved {
		// Lost a race; re-read and treat a concurrent approval as a no-op.
		quote, err = s.repo.Get(ctx, id)
		if err != nil {
			return Quote{}, false, err
		}
		if quote.Status == QuoteStatusApproved {
			return quote, true, nil
		}
		return Quote{}, false, fmt.Errorf("%w: quote %d is %s", ErrInvalidStatus, id, quote.Status)
	}
	s.recordAudit(ctx, actorID, "QUOTE_APPROVE", id, nil)
	quote.Status = QuoteStatusApproved
	return quote, false, nil
}

// Reject transitions IN_REVIEW -> REJECTED. Terminal.
func (s *Service) Reject(ctx context.Context, id int64, actorID int64) (Quote, error) {
	quote, err := s.Get(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	if quote.Status != QuoteStatusInReview {
		return Quote{}, fmt.Errorf("%w: quote %d is %s", ErrInvalidStatus, id, quote.Status)
	}
	moved, err := s.repo.TransitionStatus(ctx, id, QuoteStatusInReview, QuoteStatusRejected)
	if err != nil {
		return Quote{}, fmt.Errorf("quotes: reject: %w", err)
	}
	if !moved {
		quote, err = s.repo.Get(ctx, id)
		if err != nil {
			return Quote{}, err
		}
		return Quote{}, fmt.Errorf("%w: quote %d is %s", ErrInvalidStatus, id, quote.Status)
	}
	s.recordAudit(ctx, actorID, "QUOTE_REJECT", id, nil)
	quote.Status = QuoteStatusRejected
	return quote, nil
}

// ExpireStale persists expiry for all overdue IN_REVIEW quotes.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	return s.repo.ExpireStale(ctx, s.now())
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, quoteID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "quote",
		EntityID: fmt.Sprintf("%d", quoteID),
		Meta:     meta,
	})
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
