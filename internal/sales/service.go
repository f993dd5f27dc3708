package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/quotes"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	Create(ctx context.Context, sale Sale) (int64, error)
	Get(ctx context.Context, id int64) (Sale, error)
	GetByProduction(ctx context.Context, productionID int64) (Sale, error)
}

// Service materializes sales from approved quotes. Pure construction plus
// inserts; no business decisions beyond copying quote data.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// CreateFromQuote builds one sale header and one line per quote line.
// Service lines are billed like product lines. If a sale already exists
// for the production it is returned unchanged.
func (s *Service) CreateFromQuote(ctx context.Context, quote quotes.Quote, productionID int64) (Sale, error) {
	if len(quote.Lines) == 0 {
		return Sale{}, ErrNoLines
	}
	sale := Sale{
		CustomerID:    quote.CustomerID,
		ProductionID:  productionID,
		QuoteID:       quote.ID,
		TotalAmount:   quote.TotalAmount,
		SaleDate:      s.now().UTC(),
		Status:        SaleStatusCompleted,
		PaymentMethod: PaymentMethodPending,
	}
	for _, line := range quote.Lines {
		sale.Lines = append(sale.Lines, SaleLine{
			ItemID:    line.ItemID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Subtotal:  line.Subtotal,
		})
	}

	id, err := s.repo.Create(ctx, sale)
	if err != nil {
		if errors.Is(err, ErrAlreadyMaterialized) {
			return s.repo.GetByProduction(ctx, productionID)
		}
		return Sale{}, fmt.Errorf("sales: create from quote %d: %w", quote.ID, err)
	}
	return s.repo.Get(ctx, id)
}

// Get returns a sale by id.
func (s *Service) Get(ctx context.Context, id int64) (Sale, error) {
	return s.repo.Get(ctx, id)
}

// GetByProduction returns the sale for a production.
func (s *Service) GetByProduction(ctx context.Context, productionID int64) (Sale, error) {
	return s.repo.GetByProduction(ctx, productionID)
}
