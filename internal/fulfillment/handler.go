package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/catalog"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/production"
	"github.com/meridian-erp/meridian-erp/internal/quotes"
	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// InventoryService is the slice of the inventory ledger the HTTP layer
// exposes directly, outside the orchestrated flows.
type InventoryService interface {
	RecordMovement(ctx context.Context, input inventory.MovementInput) (inventory.Balance, error)
	GetBalance(ctx context.Context, itemID int64) (inventory.Balance, error)
	ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error)
}

// CatalogReader resolves catalog items for the read endpoints.
type CatalogReader interface {
	Get(ctx context.Context, id int64) (catalog.Item, error)
}

// Handler exposes the fulfillment workflow over HTTP.
type Handler struct {
	logger        *slog.Logger
	service       *Service
	quotes        *quotes.Service
	inventory     InventoryService
	catalog       CatalogReader
	validate      *validator.Validate
	quoteValidity time.Duration
}

// NewHandler builds Handler. quoteValidity fills valid_until when the
// caller leaves it unset.
func NewHandler(logger *slog.Logger, service *Service, quoteSvc *quotes.Service, inventorySvc InventoryService, catalogRepo CatalogReader, quoteValidity time.Duration) *Handler {
	if quoteValidity <= 0 {
		quoteValidity = 30 * 24 * time.Hour
	}
	return &Handler{
		logger:        logger,
		service:       service,
		quotes:        quoteSvc,
		inventory:     inventorySvc,
		catalog:       catalogRepo,
		validate:      validator.New(),
		quoteValidity: quoteValidity,
	}
}

// MountRoutes registers fulfillment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/quotes", func(r chi.Router) {
		r.Post("/", h.createQuote)
		r.Get("/{id}", h.getQuote)
		r.Post("/{id}/approve", h.approveQuote)
		r.Post("/{id}/reject", h.rejectQuote)
	})
	r.Route("/productions", func(r chi.Router) {
		r.Get("/{id}", h.getProduction)
		r.Post("/{id}/complete", h.completeProduction)
		r.Post("/{id}/cancel", h.cancelProduction)
	})
	r.Route("/inventory", func(r chi.Router) {
		r.Post("/receipts", h.recordGoodsReceipt)
		r.Get("/items/{id}/balance", h.getBalance)
		r.Post("/items/{id}/adjust", h.adjustStock)
		r.Get("/movements", h.listMovements)
	})
	r.Get("/sales/{id}", h.getSale)
	r.Get("/catalog/items/{id}", h.getCatalogItem)
}

func (h *Handler) getCatalogItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	item, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) createQuote(w http.ResponseWriter, r *http.Request) {
	var req createQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	validUntil := req.ValidUntil
	if validUntil.IsZero() {
		validUntil = time.Now().Add(h.quoteValidity)
	}
	input := quotes.SubmitInput{
		CustomerID: req.CustomerID,
		ValidUntil: validUntil,
		DeliveryBy: req.DeliveryBy,
		ActorID:    actorID(r),
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, quotes.LineInput{
			ItemID:    line.ItemID,
			Kind:      quotes.LineKind(line.Kind),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}

	quote, err := h.quotes.Submit(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toQuoteResponse(quote))
}

func (h *Handler) getQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	quote, err := h.quotes.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toQuoteResponse(quote))
}

func (h *Handler) approveQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.service.ApproveQuote(r.Context(), id, actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Reused {
		status = http.StatusOK
	}
	httpx.JSON(w, status, approveQuoteResponse{
		Quote:      toQuoteResponse(result.Quote),
		Production: toProductionResponse(result.Production),
		Reused:     result.Reused,
	})
}

func (h *Handler) rejectQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	quote, err := h.quotes.Reject(r.Context(), id, actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toQuoteResponse(quote))
}

func (h *Handler) getProduction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	prod, err := h.service.productions.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductionResponse(prod))
}

func (h *Handler) completeProduction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req completeProductionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sale, err := h.service.CompleteProduction(r.Context(), id, req.QuoteID, actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSaleResponse(sale))
}

func (h *Handler) cancelProduction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req completeProductionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.CancelProduction(r.Context(), id, req.QuoteID, actorID(r)); err != nil {
		h.respondError(w, r, err)
		return
	}
	prod, err := h.service.productions.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductionResponse(prod))
}

func (h *Handler) recordGoodsReceipt(w http.ResponseWriter, r *http.Request) {
	var req goodsReceiptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	balance, err := h.service.RecordGoodsReceipt(r.Context(), ReceiptInput{
		Ref:        req.Ref,
		SupplierID: req.SupplierID,
		ItemID:     req.ItemID,
		Quantity:   req.Quantity,
		UnitCost:   req.UnitCost,
		ActorID:    actorID(r),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBalanceResponse(balance))
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	balance, err := h.inventory.GetBalance(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBalanceResponse(balance))
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req adjustStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	balance, err := h.inventory.RecordMovement(r.Context(), inventory.MovementInput{
		ItemID:   id,
		Quantity: req.Quantity,
		Kind:     inventory.MovementAdjust,
		Source:   inventory.SourceManualAdjust,
		ActorID:  actorID(r),
		Reason:   req.Reason,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBalanceResponse(balance))
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	filter := inventory.MovementFilter{
		ItemID:   queryInt64(r, "item_id"),
		BeforeID: queryInt64(r, "before_id"),
		Limit:    int(queryInt64(r, "limit")),
	}
	movements, err := h.inventory.ListMovements(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": toMovementResponses(movements)})
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sale, err := h.service.sales.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSaleResponse(sale))
}

// respondError translates domain sentinels into the transport vocabulary.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, quotes.ErrNotFound),
		errors.Is(err, production.ErrNotFound),
		errors.Is(err, sales.ErrNotFound),
		errors.Is(err, catalog.ErrItemNotFound),
		errors.Is(err, inventory.ErrUnknownItem):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
	case errors.Is(err, quotes.ErrNoLines),
		errors.Is(err, quotes.ErrInvalidLine),
		errors.Is(err, sales.ErrNoLines),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrMissingUnitCost),
		errors.Is(err, inventory.ErrInvalidKind),
		errors.Is(err, ErrSupplierRequired):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
	case errors.Is(err, quotes.ErrInvalidStatus),
		errors.Is(err, quotes.ErrExpired),
		errors.Is(err, ErrQuoteMismatch),
		errors.Is(err, ErrProductionCancelled),
		errors.Is(err, production.ErrInvalidState),
		errors.Is(err, inventory.ErrInsufficientStock):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrPreconditionFailed, err))
	case errors.Is(err, shared.ErrIdempotencyConflict),
		errors.Is(err, shared.ErrLockHeld):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, err))
	default:
		h.logger.Error("unhandled request error",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}

func queryInt64(r *http.Request, key string) int64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0
	}
	v, _ := strconv.ParseInt(raw, 10, 64)
	return v
}

// actorID reads the authenticated actor from the X-Actor-ID header set by
// the fronting gateway. Zero means anonymous.
func actorID(r *http.Request) int64 {
	v, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return v
}
