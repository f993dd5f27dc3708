package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/meridian-erp/meridian-erp/internal/sales"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	Insert(ctx context.Context, entry LedgerEntry) (int64, error)
	GetBySale(ctx context.Context, saleID int64) (LedgerEntry, error)
	GetByReceipt(ctx context.Context, receiptRef string) (LedgerEntry, error)
}

// Service appends revenue and expense ledger entries. Pure append
// operations with no state machine of their own; callers decide whether a
// posting failure is fatal.
type Service struct {
	repo    RepositoryPort
	printer *message.Printer
	now     func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, printer: message.NewPrinter(language.English), now: time.Now}
}

// PostRevenue appends a revenue entry for the sale. Posting twice for the
// same sale returns the original entry, making reposts from the retry
// queue harmless.
func (s *Service) PostRevenue(ctx context.Context, sale sales.Sale) (LedgerEntry, error) {
	if sale.TotalAmount <= 0 {
		return LedgerEntry{}, ErrInvalidAmount
	}
	entry := LedgerEntry{
		Kind:        EntryRevenue,
		Description: s.printer.Sprintf("Sale #%d for customer %d, total %.2f", sale.ID, sale.CustomerID, sale.TotalAmount),
		Amount:      sale.TotalAmount,
		Category:    "Sales",
		Date:        s.now().UTC(),
		Status:      EntryStatusPaid,
		SaleID:      sale.ID,
	}
	id, err := s.repo.Insert(ctx, entry)
	if err != nil {
		if errors.Is(err, ErrDuplicateEntry) {
			return s.repo.GetBySale(ctx, sale.ID)
		}
		return LedgerEntry{}, fmt.Errorf("finance: post revenue for sale %d: %w", sale.ID, err)
	}
	entry.ID = id
	return entry, nil
}

// ExpenseInput describes a goods-receipt expense to post.
type ExpenseInput struct {
	ReceiptRef string
	SupplierID int64
	ItemID     int64
	Quantity   float64
	UnitCost   float64
}

// PostExpense appends an expense entry for a goods receipt.
func (s *Service) PostExpense(ctx context.Context, input ExpenseInput) (LedgerEntry, error) {
	amount := input.Quantity * input.UnitCost
	if amount <= 0 {
		return LedgerEntry{}, ErrInvalidAmount
	}
	entry := LedgerEntry{
		Kind:        EntryExpense,
		Description: s.printer.Sprintf("Goods receipt %s: %.3f x item %d at %.2f from supplier %d", input.ReceiptRef, input.Quantity, input.ItemID, input.UnitCost, input.SupplierID),
		Amount:      amount,
		Category:    "Purchases",
		Date:        s.now().UTC(),
		Status:      EntryStatusPaid,
		ReceiptRef:  input.ReceiptRef,
	}
	id, err := s.repo.Insert(ctx, entry)
	if err != nil {
		if errors.Is(err, ErrDuplicateEntry) {
			return s.repo.GetByReceipt(ctx, input.ReceiptRef)
		}
		return LedgerEntry{}, fmt.Errorf("finance: post expense for receipt %s: %w", input.ReceiptRef, err)
	}
	entry.ID = id
	return entry, nil
}
