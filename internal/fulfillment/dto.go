package fulfillment

import (
	"time"

	"github.com/meridian-erp/meridian-erp/internal/catalog"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/production"
	"github.com/meridian-erp/meridian-erp/internal/quotes"
	"github.com/meridian-erp/meridian-erp/internal/sales"
)

type quoteLineRequest struct {
	ItemID    int64   `json:"item_id" validate:"required,gt=0"`
	Kind      string  `json:"kind" validate:"required,oneof=PRODUCT SERVICE"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"required,gt=0"`
}

type createQuoteRequest struct {
	CustomerID int64              `json:"customer_id" validate:"required,gt=0"`
	ValidUntil time.Time          `json:"valid_until"`
	DeliveryBy time.Time          `json:"delivery_by"`
	Lines      []quoteLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type quoteLineResponse struct {
	ID        int64   `json:"id"`
	ItemID    int64   `json:"item_id"`
	Kind      string  `json:"kind"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Subtotal  float64 `json:"subtotal"`
}

type quoteResponse struct {
	ID          int64               `json:"id"`
	CustomerID  int64               `json:"customer_id"`
	Status      string              `json:"status"`
	TotalAmount float64             `json:"total_amount"`
	ValidUntil  time.Time           `json:"valid_until"`
	DeliveryBy  *time.Time          `json:"delivery_by,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	Lines       []quoteLineResponse `json:"lines"`
}

func toQuoteResponse(q quotes.Quote) quoteResponse {
	resp := quoteResponse{
		ID:          q.ID,
		CustomerID:  q.CustomerID,
		Status:      string(q.Status),
		TotalAmount: q.TotalAmount,
		ValidUntil:  q.ValidUntil,
		CreatedAt:   q.CreatedAt,
		Lines:       make([]quoteLineResponse, 0, len(q.Lines)),
	}
	if !q.DeliveryBy.IsZero() {
		deliveryBy := q.DeliveryBy
		resp.DeliveryBy = &deliveryBy
	}
	for _, line := range q.Lines {
		resp.Lines = append(resp.Lines, quoteLineResponse{
			ID:        line.ID,
			ItemID:    line.ItemID,
			Kind:      string(line.Kind),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Subtotal:  line.Subtotal,
		})
	}
	return resp
}

type productionResponse struct {
	ID          int64      `json:"id"`
	QuoteID     int64      `json:"quote_id"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func toProductionResponse(p production.Production) productionResponse {
	resp := productionResponse{
		ID:        p.ID,
		QuoteID:   p.QuoteID,
		Status:    string(p.Status),
		StartedAt: p.StartedAt,
	}
	if !p.CompletedAt.IsZero() {
		completedAt := p.CompletedAt
		resp.CompletedAt = &completedAt
	}
	return resp
}

type approveQuoteResponse struct {
	Quote      quoteResponse      `json:"quote"`
	Production productionResponse `json:"production"`
	Reused     bool               `json:"reused"`
}

type completeProductionRequest struct {
	QuoteID int64 `json:"quote_id" validate:"required,gt=0"`
}

type saleLineResponse struct {
	ID        int64   `json:"id"`
	ItemID    int64   `json:"item_id"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Subtotal  float64 `json:"subtotal"`
}

type saleResponse struct {
	ID            int64              `json:"id"`
	CustomerID    int64              `json:"customer_id"`
	ProductionID  int64              `json:"production_id"`
	QuoteID       int64              `json:"quote_id"`
	TotalAmount   float64            `json:"total_amount"`
	SaleDate      time.Time          `json:"sale_date"`
	Status        string             `json:"status"`
	PaymentMethod string             `json:"payment_method"`
	Lines         []saleLineResponse `json:"lines"`
}

func toSaleResponse(s sales.Sale) saleResponse {
	resp := saleResponse{
		ID:            s.ID,
		CustomerID:    s.CustomerID,
		ProductionID:  s.ProductionID,
		QuoteID:       s.QuoteID,
		TotalAmount:   s.TotalAmount,
		SaleDate:      s.SaleDate,
		Status:        string(s.Status),
		PaymentMethod: s.PaymentMethod,
		Lines:         make([]saleLineResponse, 0, len(s.Lines)),
	}
	for _, line := range s.Lines {
		resp.Lines = append(resp.Lines, saleLineResponse{
			ID:        line.ID,
			ItemID:    line.ItemID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Subtotal:  line.Subtotal,
		})
	}
	return resp
}

type goodsReceiptRequest struct {
	Ref        string  `json:"ref"`
	SupplierID int64   `json:"supplier_id" validate:"required,gt=0"`
	ItemID     int64   `json:"item_id" validate:"required,gt=0"`
	Quantity   float64 `json:"quantity" validate:"required,gt=0"`
	UnitCost   float64 `json:"unit_cost" validate:"required,gt=0"`
}

type balanceResponse struct {
	ItemID         int64      `json:"item_id"`
	QuantityOnHand float64    `json:"quantity_on_hand"`
	AvgUnitCost    float64    `json:"avg_unit_cost"`
	LastMovementAt *time.Time `json:"last_movement_at,omitempty"`
}

func toBalanceResponse(b inventory.Balance) balanceResponse {
	resp := balanceResponse{
		ItemID:         b.ItemID,
		QuantityOnHand: b.QuantityOnHand,
		AvgUnitCost:    b.AvgUnitCost,
	}
	if !b.LastMovementAt.IsZero() {
		lastMovementAt := b.LastMovementAt
		resp.LastMovementAt = &lastMovementAt
	}
	return resp
}

type movementResponse struct {
	ID           int64     `json:"id"`
	ItemID       int64     `json:"item_id"`
	Quantity     float64   `json:"quantity"`
	Kind         string    `json:"kind"`
	Source       string    `json:"source"`
	UnitCost     float64   `json:"unit_cost"`
	ProductionID int64     `json:"production_id,omitempty"`
	SaleID       int64     `json:"sale_id,omitempty"`
	RefID        string    `json:"ref_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func toMovementResponses(movements []inventory.Movement) []movementResponse {
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, movementResponse{
			ID:           m.ID,
			ItemID:       m.ItemID,
			Quantity:     m.Quantity,
			Kind:         string(m.Kind),
			Source:       string(m.Source),
			UnitCost:     m.UnitCost,
			ProductionID: m.ProductionID,
			SaleID:       m.SaleID,
			RefID:        m.RefID,
			OccurredAt:   m.OccurredAt,
		})
	}
	return out
}

type itemResponse struct {
	ID        int64   `json:"id"`
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	UnitPrice float64 `json:"unit_price"`
	Active    bool    `json:"active"`
}

func toItemResponse(item catalog.Item) itemResponse {
	return itemResponse{
		ID:        item.ID,
		SKU:       item.SKU,
		Name:      item.Name,
		Kind:      string(item.Kind),
		UnitPrice: item.UnitPrice,
		Active:    item.Active,
	}
}

type adjustStockRequest struct {
	Quantity float64 `json:"quantity" validate:"gte=0"`
	Reason   string  `json:"reason" validate:"required"`
}
