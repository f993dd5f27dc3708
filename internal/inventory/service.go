package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBalance(ctx context.Context, itemID int64) (Balance, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// CatalogPort resolves item references against the product catalog.
type CatalogPort interface {
	Exists(ctx context.Context, itemID int64) (bool, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards ref-keyed movements against re-application. The
// movement id is recorded as the key's result so replays can name the
// original write.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	RecordResult(ctx context.Context, key string, resultID int64) error
	LookupResult(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
}

// ServiceConfig groups policy settings.
type ServiceConfig struct {
	// AllowNegativeStock lets outbound movements drive on-hand quantity
	// below zero. When false such movements fail with ErrInsufficientStock.
	AllowNegativeStock bool
}

// Service maintains the movement log and materialized balances.
type Service struct {
	repo        RepositoryPort
	catalog     CatalogPort
	audit       AuditPort
	idempotency IdempotencyPort
	logger      *slog.Logger
	allowNeg    bool
	now         func() time.Time
	reads       singleflight.Group
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalog CatalogPort, audit AuditPort, idem IdempotencyPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, audit: audit, idempotency: idem, logger: logger, allowNeg: cfg.AllowNegativeStock, now: time.Now}
}

// MovementInput describes a movement to record.
type MovementInput struct {
	ItemID       int64
	Quantity     float64
	Kind         MovementKind
	Source       MovementSource
	UnitCost     float64
	ProductionID int64
	SaleID       int64
	RefID        string
	ActorID      int64
	// Reason explains manual adjustments in the audit trail.
	Reason string
}

// RecordMovement appends a movement and updates the item balance in one
// transaction. Balance rules:
//
//	IN:     qty += quantity; avg = (oldQty*oldAvg + quantity*unitCost) / newQty
//	OUT:    qty -= quantity; avg unchanged (outflows consume at average cost)
//	ADJUST: qty = quantity (absolute); avg unchanged
//
// Returns the updated balance.
func (s *Service) RecordMovement(ctx context.Context, input MovementInput) (Balance, error) {
	if input.ItemID == 0 {
		return Balance{}, fmt.Errorf("%w: item required", ErrUnknownItem)
	}
	switch input.Kind {
	case MovementIn:
		if input.Quantity <= 0 {
			return Balance{}, ErrInvalidQuantity
		}
		if input.UnitCost <= 0 {
			return Balance{}, ErrMissingUnitCost
		}
	case MovementOut:
		if input.Quantity <= 0 {
			return Balance{}, ErrInvalidQuantity
		}
	case MovementAdjust:
		// An adjust sets the absolute count, so zero is a valid target.
		if input.Quantity < 0 {
			return Balance{}, ErrInvalidQuantity
		}
	default:
		return Balance{}, fmt.Errorf("%w: %q", ErrInvalidKind, input.Kind)
	}
	if s.catalog != nil {
		found, err := s.catalog.Exists(ctx, input.ItemID)
		if err != nil {
			return Balance{}, fmt.Errorf("inventory: resolve item %d: %w", input.ItemID, err)
		}
		if !found {
			return Balance{}, fmt.Errorf("%w: %d", ErrUnknownItem, input.ItemID)
		}
	}

	// A movement carrying a caller-supplied ref is applied at most once;
	// replays return the current balance without touching the log.
	insertedKey := false
	if input.RefID != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.RefID, "inventory"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				priorID, lookupErr := s.idempotency.LookupResult(ctx, input.RefID)
				if lookupErr != nil && !errors.Is(lookupErr, shared.ErrResultNotFound) {
					return Balance{}, lookupErr
				}
				s.logger.Info("movement replay skipped",
					slog.String("ref", input.RefID),
					slog.Int64("movement_id", priorID))
				return s.GetBalance(ctx, input.ItemID)
			}
			return Balance{}, err
		}
		insertedKey = true
	}

	now := s.now().UTC()
	var updated Balance
	var movementID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		balance, err := tx.GetBalanceForUpdate(ctx, input.ItemID)
		if err != nil && !errors.Is(err, ErrBalanceNotFound) {
			return err
		}
		if errors.Is(err, ErrBalanceNotFound) {
			balance = Balance{ItemID: input.ItemID}
		}

		switch input.Kind {
		case MovementIn:
			newQty := balance.QuantityOnHand + input.Quantity
			totalCost := balance.QuantityOnHand*balance.AvgUnitCost + input.Quantity*input.UnitCost
			if newQty > 0 {
				balance.AvgUnitCost = totalCost / newQty
			}
			balance.QuantityOnHand = newQty
		case MovementOut:
			newQty := balance.QuantityOnHand - input.Quantity
			if newQty < 0 && !s.allowNeg {
				return fmt.Errorf("%w: item %d has %.3f on hand, requested %.3f",
					ErrInsufficientStock, input.ItemID, balance.QuantityOnHand, input.Quantity)
			}
			if newQty < 0 {
				s.logger.Warn("stock driven negative",
					slog.Int64("item_id", input.ItemID),
					slog.Float64("on_hand", newQty),
					slog.String("source", string(input.Source)))
			}
			balance.QuantityOnHand = newQty
		case MovementAdjust:
			balance.QuantityOnHand = input.Quantity
		}
		balance.LastMovementAt = now

		movement := Movement{
			ItemID:       input.ItemID,
			Quantity:     input.Quantity,
			Kind:         input.Kind,
			Source:       input.Source,
			UnitCost:     movementUnitCost(input, balance),
			ProductionID: input.ProductionID,
			SaleID:       input.SaleID,
			RefID:        input.RefID,
			ActorID:      input.ActorID,
			OccurredAt:   now,
		}
		id, err := tx.InsertMovement(ctx, movement)
		if err != nil {
			return err
		}
		movementID = id
		if err := tx.UpsertBalance(ctx, balance); err != nil {
			return err
		}
		updated = balance
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.RefID)
		}
		return Balance{}, err
	}
	if insertedKey {
		if err := s.idempotency.RecordResult(ctx, input.RefID, movementID); err != nil {
			s.logger.Warn("record idempotency result",
				slog.String("ref", input.RefID),
				slog.Any("error", err))
		}
	}

	if s.audit != nil {
		meta := map[string]any{
			"item_id": input.ItemID,
			"qty":     input.Quantity,
			"source":  input.Source,
		}
		if input.Reason != "" {
			meta["reason"] = input.Reason
		}
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   fmt.Sprintf("inventory:%s", input.Kind),
			Entity:   "inventory_movement",
			EntityID: fmt.Sprintf("%s:%d", input.Kind, input.ItemID),
			Meta:     meta,
		})
	}
	return updated, nil
}

// GetBalance returns the current balance, or a zero balance when the item
// has never moved. Concurrent reads for the same item collapse into one
// repository query.
func (s *Service) GetBalance(ctx context.Context, itemID int64) (Balance, error) {
	if itemID == 0 {
		return Balance{}, fmt.Errorf("%w: item required", ErrUnknownItem)
	}
	result := s.reads.DoChan(strconv.FormatInt(itemID, 10), func() (any, error) {
		balance, err := s.repo.GetBalance(context.WithoutCancel(ctx), itemID)
		if err != nil {
			if errors.Is(err, ErrBalanceNotFound) {
				return Balance{ItemID: itemID}, nil
			}
			return Balance{}, err
		}
		return balance, nil
	})
	select {
	case <-ctx.Done():
		return Balance{}, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return Balance{}, res.Err
		}
		return res.Val.(Balance), nil
	}
}

// ListMovements returns movements newest-first. The cursor in the filter
// makes the listing restartable for audit tooling paging through history.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return s.repo.ListMovements(ctx, filter)
}

// For outbound movements the movement row records the average cost it
// consumed at; inbound rows record their own cost; adjustments carry none.
func movementUnitCost(input MovementInput, balance Balance) float64 {
	switch input.Kind {
	case MovementIn:
		return input.UnitCost
	case MovementOut:
		return balance.AvgUnitCost
	default:
		return 0
	}
}
