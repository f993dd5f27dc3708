package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/finance"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/production"
	"github.com/meridian-erp/meridian-erp/internal/quotes"
	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// QuotePort exposes the quote state machine to the orchestrator.
type QuotePort interface {
	Approve(ctx context.Context, id int64, actorID int64) (quotes.Quote, bool, error)
	Get(ctx context.Context, id int64) (quotes.Quote, error)
}

// ProductionPort exposes production records.
type ProductionPort interface {
	CreateIfAbsent(ctx context.Context, quoteID int64, startedAt time.Time) (production.Production, bool, error)
	Get(ctx context.Context, id int64) (production.Production, error)
	Complete(ctx context.Context, id int64, completedAt time.Time) (bool, error)
	Cancel(ctx context.Context, id int64) (bool, error)
}

// InventoryPort exposes the inventory ledger.
type InventoryPort interface {
	RecordMovement(ctx context.Context, input inventory.MovementInput) (inventory.Balance, error)
}

// SalesPort exposes the sale materializer.
type SalesPort interface {
	CreateFromQuote(ctx context.Context, quote quotes.Quote, productionID int64) (sales.Sale, error)
	Get(ctx context.Context, id int64) (sales.Sale, error)
	GetByProduction(ctx context.Context, productionID int64) (sales.Sale, error)
}

// FinancePort exposes the financial poster.
type FinancePort interface {
	PostRevenue(ctx context.Context, sale sales.Sale) (finance.LedgerEntry, error)
	PostExpense(ctx context.Context, input finance.ExpenseInput) (finance.LedgerEntry, error)
}

// ReceiptStore persists goods receipt headers.
type ReceiptStore interface {
	Insert(ctx context.Context, receipt GoodsReceipt) (int64, error)
}

// LockPort serialises entry points per natural key.
type LockPort interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// RepostQueue schedules retries for failed ledger postings.
type RepostQueue interface {
	EnqueueLedgerRepost(ctx context.Context, saleID int64) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

var (
	// ErrQuoteMismatch indicates the production does not belong to the
	// given quote.
	ErrQuoteMismatch = errors.New("fulfillment: production does not belong to quote")
	// ErrProductionCancelled indicates completion was requested for a
	// cancelled production.
	ErrProductionCancelled = errors.New("fulfillment: production cancelled")
	// ErrSupplierRequired indicates a goods receipt without a supplier.
	ErrSupplierRequired = errors.New("fulfillment: supplier required")
)

// Service sequences the side effects of quote approval and production
// completion. The underlying store offers only per-record writes, so each
// entry point is a short saga of individually idempotency-guarded steps:
// the whole call is safe to invoke repeatedly for the same ids, and a
// per-key lock closes the window that plain read-then-write guards leave
// open under true concurrency.
type Service struct {
	quotes      QuotePort
	productions ProductionPort
	inventory   InventoryPort
	sales       SalesPort
	finance     FinancePort
	receipts    ReceiptStore
	locks       LockPort
	queue       RepostQueue
	audit       AuditPort
	metrics     MetricsPort
	logger      *slog.Logger
	now         func() time.Time
}

// ServiceParams groups the orchestrator dependencies.
type ServiceParams struct {
	Quotes      QuotePort
	Productions ProductionPort
	Inventory   InventoryPort
	Sales       SalesPort
	Finance     FinancePort
	Receipts    ReceiptStore
	Locks       LockPort
	Queue       RepostQueue
	Audit       AuditPort
	Metrics     MetricsPort
	Logger      *slog.Logger
}

// NewService builds Service.
func NewService(params ServiceParams) *Service {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		quotes:      params.Quotes,
		productions: params.Productions,
		inventory:   params.Inventory,
		sales:       params.Sales,
		finance:     params.Finance,
		receipts:    params.Receipts,
		locks:       params.Locks,
		queue:       params.Queue,
		audit:       params.Audit,
		metrics:     params.Metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// ApproveQuoteResult is returned by ApproveQuote.
type ApproveQuoteResult struct {
	Quote      quotes.Quote
	Production production.Production
	// Reused reports that the approval was a no-op replay: the production
	// existed before this call.
	Reused bool
}

// ApproveQuote approves the quote and schedules exactly one production for
// it. Replayed calls return the existing production unchanged. A failure
// after approval leaves an approved-but-unscheduled quote, which is a
// recoverable, observable state: the next ApproveQuote call picks it up.
func (s *Service) ApproveQuote(ctx context.Context, quoteID int64, actorID int64) (ApproveQuoteResult, error) {
	var result ApproveQuoteResult
	err := s.withLock(ctx, shared.QuoteLockKey(quoteID), func(ctx context.Context) error {
		quote, reapproved, err := s.quotes.Approve(ctx, quoteID, actorID)
		if err != nil {
			return err
		}
		prod, created, err := s.productions.CreateIfAbsent(ctx, quoteID, s.now().UTC())
		if err != nil {
			return fmt.Errorf("fulfillment: schedule production for quote %d: %w", quoteID, err)
		}
		result = ApproveQuoteResult{Quote: quote, Production: prod, Reused: reapproved && !created}
		if created {
			s.recordAudit(ctx, actorID, "PRODUCTION_CREATE", prod.ID, map[string]any{"quote_id": quoteID})
		}
		return nil
	})
	return result, err
}

// CompleteProduction marks the production completed, deducts inventory for
// every product line, materializes the sale and posts revenue. Re-invoking
// it for an already-completed production returns the original sale without
// new side effects. Revenue posting is declared non-critical: its failure
// is logged and queued for repost, never rolled into the caller's error.
func (s *Service) CompleteProduction(ctx context.Context, productionID, quoteID int64, actorID int64) (sales.Sale, error) {
	var sale sales.Sale
	err := s.withLock(ctx, shared.ProductionLockKey(productionID), func(ctx context.Context) error {
		prod, err := s.productions.Get(ctx, productionID)
		if err != nil {
			return err
		}
		if prod.QuoteID != quoteID {
			return fmt.Errorf("%w: production %d belongs to quote %d", ErrQuoteMismatch, productionID, prod.QuoteID)
		}
		if prod.Status == production.StatusCancelled {
			return fmt.Errorf("%w: production %d", ErrProductionCancelled, productionID)
		}
		quote, err := s.quotes.Get(ctx, quoteID)
		if err != nil {
			return err
		}

		steps := []Step{
			{
				Name:     "complete-production",
				Critical: true,
				Run: func(ctx context.Context) error {
					moved, err := s.productions.Complete(ctx, productionID, s.now().UTC())
					if err != nil {
						return err
					}
					if moved {
						return nil
					}
					// Lost the CAS: either a previous invocation finished
					// the production (fine, keep resuming through the
					// idempotent steps below) or it was cancelled.
					current, err := s.productions.Get(ctx, productionID)
					if err != nil {
						return err
					}
					if current.Status == production.StatusCompleted {
						return nil
					}
					return fmt.Errorf("%w: production %d", ErrProductionCancelled, productionID)
				},
			},
			{
				Name:     "deduct-inventory",
				Critical: true,
				Run: func(ctx context.Context) error {
					return s.deductQuoteLines(ctx, quote, productionID, actorID)
				},
			},
			{
				Name:     "materialize-sale",
				Critical: true,
				Run: func(ctx context.Context) error {
					created, err := s.sales.CreateFromQuote(ctx, quote, productionID)
					if err != nil {
						return err
					}
					sale = created
					return nil
				},
			},
			{
				Name: "post-revenue",
				Run: func(ctx context.Context) error {
					_, err := s.finance.PostRevenue(ctx, sale)
					return err
				},
				OnError: func(ctx context.Context, err error) {
					if s.queue == nil {
						return
					}
					if qErr := s.queue.EnqueueLedgerRepost(ctx, sale.ID); qErr != nil {
						s.logger.Error("enqueue ledger repost",
							slog.Int64("sale_id", sale.ID),
							slog.Any("error", qErr))
					}
				},
			},
		}
		if err := runSaga(ctx, s.logger, s.metrics, "complete-production", steps); err != nil {
			return err
		}
		s.recordAudit(ctx, actorID, "PRODUCTION_COMPLETE", productionID, map[string]any{"quote_id": quoteID, "sale_id": sale.ID})
		return nil
	})
	if err != nil {
		return sales.Sale{}, err
	}
	return sale, nil
}

// Only product lines move inventory; service lines are billed but have no
// stock. Each movement carries a deterministic ref so replays after a
// partial failure re-apply only the lines that never landed. The ref is
// keyed by line id, not item id: a quote may carry the same product on two
// lines at different prices and each line deducts separately.
func (s *Service) deductQuoteLines(ctx context.Context, quote quotes.Quote, productionID int64, actorID int64) error {
	for _, line := range quote.Lines {
		if line.Kind != quotes.LineKindProduct {
			continue
		}
		ref := uuid.NewSHA1(uuid.Nil, fmt.Appendf(nil, "production:%d:line:%d", productionID, line.ID))
		_, err := s.inventory.RecordMovement(ctx, inventory.MovementInput{
			ItemID:       line.ItemID,
			Quantity:     line.Quantity,
			Kind:         inventory.MovementOut,
			Source:       inventory.SourceProduction,
			ProductionID: productionID,
			RefID:        ref.String(),
			ActorID:      actorID,
		})
		if err != nil {
			return fmt.Errorf("deduct item %d: %w", line.ItemID, err)
		}
	}
	return nil
}

// CancelProduction abandons a PREPARING production. The quote keeps its
// APPROVED status; cancelling an already-cancelled production is a no-op,
// while a completed one cannot be cancelled.
func (s *Service) CancelProduction(ctx context.Context, productionID, quoteID int64, actorID int64) error {
	return s.withLock(ctx, shared.ProductionLockKey(productionID), func(ctx context.Context) error {
		prod, err := s.productions.Get(ctx, productionID)
		if err != nil {
			return err
		}
		if prod.QuoteID != quoteID {
			return fmt.Errorf("%w: production %d belongs to quote %d", ErrQuoteMismatch, productionID, prod.QuoteID)
		}
		switch prod.Status {
		case production.StatusCancelled:
			return nil
		case production.StatusCompleted:
			return fmt.Errorf("%w: production %d is completed", production.ErrInvalidState, productionID)
		}
		moved, err := s.productions.Cancel(ctx, productionID)
		if err != nil {
			return fmt.Errorf("fulfillment: cancel production %d: %w", productionID, err)
		}
		if !moved {
			current, err := s.productions.Get(ctx, productionID)
			if err != nil {
				return err
			}
			if current.Status == production.StatusCancelled {
				return nil
			}
			return fmt.Errorf("%w: production %d is %s", production.ErrInvalidState, productionID, current.Status)
		}
		s.recordAudit(ctx, actorID, "PRODUCTION_CANCEL", productionID, map[string]any{"quote_id": quoteID})
		return nil
	})
}

// ReceiptInput describes an inbound goods receipt.
type ReceiptInput struct {
	Ref        string
	SupplierID int64
	ItemID     int64
	Quantity   float64
	UnitCost   float64
	ActorID    int64
}

// RecordGoodsReceipt adds stock from a supplier delivery and posts the
// matching expense entry. The expense posting is best-effort, mirroring
// revenue posting on the sale path.
func (s *Service) RecordGoodsReceipt(ctx context.Context, input ReceiptInput) (inventory.Balance, error) {
	if input.SupplierID == 0 {
		return inventory.Balance{}, ErrSupplierRequired
	}
	if input.Quantity <= 0 {
		return inventory.Balance{}, inventory.ErrInvalidQuantity
	}
	if input.UnitCost <= 0 {
		return inventory.Balance{}, inventory.ErrMissingUnitCost
	}
	receipt := GoodsReceipt{
		Ref:        input.Ref,
		SupplierID: input.SupplierID,
		ItemID:     input.ItemID,
		Quantity:   input.Quantity,
		UnitCost:   input.UnitCost,
		ActorID:    input.ActorID,
		ReceivedAt: s.now().UTC(),
	}
	if receipt.Ref == "" {
		receipt.Ref = fmt.Sprintf("GR-%d", receipt.ReceivedAt.UnixNano())
	}

	var balance inventory.Balance
	steps := []Step{
		{
			Name:     "record-receipt",
			Critical: true,
			Run: func(ctx context.Context) error {
				_, err := s.receipts.Insert(ctx, receipt)
				if errors.Is(err, ErrReceiptExists) {
					return nil
				}
				return err
			},
		},
		{
			Name:     "add-stock",
			Critical: true,
			Run: func(ctx context.Context) error {
				ref := uuid.NewSHA1(uuid.Nil, fmt.Appendf(nil, "receipt:%s:item:%d", receipt.Ref, input.ItemID))
				updated, err := s.inventory.RecordMovement(ctx, inventory.MovementInput{
					ItemID:   input.ItemID,
					Quantity: input.Quantity,
					Kind:     inventory.MovementIn,
					Source:   inventory.SourcePurchase,
					UnitCost: input.UnitCost,
					RefID:    ref.String(),
					ActorID:  input.ActorID,
				})
				if err != nil {
					return err
				}
				balance = updated
				return nil
			},
		},
		{
			Name: "post-expense",
			Run: func(ctx context.Context) error {
				_, err := s.finance.PostExpense(ctx, finance.ExpenseInput{
					ReceiptRef: receipt.Ref,
					SupplierID: input.SupplierID,
					ItemID:     input.ItemID,
					Quantity:   input.Quantity,
					UnitCost:   input.UnitCost,
				})
				return err
			},
		},
	}
	if err := runSaga(ctx, s.logger, s.metrics, "goods-receipt", steps); err != nil {
		return inventory.Balance{}, err
	}
	s.recordAudit(ctx, input.ActorID, "GOODS_RECEIPT", input.ItemID, map[string]any{"ref": receipt.Ref, "qty": input.Quantity})
	return balance, nil
}

// RepostRevenue re-runs a failed revenue posting for the sale. Invoked by
// the background retry task; duplicate postings collapse in the finance
// layer.
func (s *Service) RepostRevenue(ctx context.Context, saleID int64) error {
	sale, err := s.sales.Get(ctx, saleID)
	if err != nil {
		return fmt.Errorf("fulfillment: repost revenue: %w", err)
	}
	if _, err := s.finance.PostRevenue(ctx, sale); err != nil {
		return fmt.Errorf("fulfillment: repost revenue for sale %d: %w", saleID, err)
	}
	return nil
}

func (s *Service) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if s.locks == nil {
		return fn(ctx)
	}
	return s.locks.WithLock(ctx, key, fn)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "fulfillment",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
