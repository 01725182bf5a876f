package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_cart/bookstore/internal/catalog"
	"github.com/fjod/go_cart/bookstore/internal/domain"
	"github.com/fjod/go_cart/bookstore/internal/inventory/store"
	"go.uber.org/zap"
)

// InventoryHandler serves the admin stock endpoints. Routes are mounted
// behind RequireAdmin.
type InventoryHandler struct {
	stock   store.Ledger
	catalog catalog.Lookup
	timeout time.Duration
	log     *zap.Logger
}

func NewInventoryHandler(stock store.Ledger, lookup catalog.Lookup, timeout time.Duration, log *zap.Logger) *InventoryHandler {
	return &InventoryHandler{
		stock:   stock,
		catalog: lookup,
		timeout: timeout,
		log:     log.Named("inventory-http"),
	}
}

type StockResponse struct {
	BookID    int64     `json:"book_id"`
	Stock     int32     `json:"stock"`
	Available bool      `json:"available"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SetStockRequestDTO struct {
	Stock *int32 `json:"stock"`
}

type ReplenishRequestDTO struct {
	Quantity int32 `json:"quantity"`
}

func convertStock(rec domain.InventoryRecord) StockResponse {
	return StockResponse{
		BookID:    rec.BookID,
		Stock:     rec.Stock,
		Available: rec.Available(),
		UpdatedAt: rec.UpdatedAt,
	}
}

// respondStock re-reads the record after a mutation.
func (h *InventoryHandler) respondStock(ctx context.Context, w http.ResponseWriter, bookID int64) {
	rec, err := h.stock.GetStock(ctx, bookID)
	if err != nil {
		handleDomainError(ctx, h.log, w, err)
		return
	}
	respondJSON(w, http.StatusOK, convertStock(*rec))
}

// GET /api/v1/inventory
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	records, err := h.stock.ListStock(ctx)
	if err != nil {
		handleDomainError(ctx, h.log, w, err)
		return
	}

	res := make([]StockResponse, len(records))
	for i, rec := range records {
		res[i] = convertStock(rec)
	}
	respondJSON(w, http.StatusOK, res)
}

// GET /api/v1/inventory/{book_id}
func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := bookIDParam(w, r)
	if !ok {
		return
	}
	h.respondStock(ctx, w, id)
}

// PUT /api/v1/inventory/{book_id}
func (h *InventoryHandler) Set(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := bookIDParam(w, r)
	if !ok {
		return
	}

	var req SetStockRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Stock == nil {
		v := domain.NewValidationError()
		v.Add("stock", "is required")
		handleDomainError(ctx, h.log, w, v)
		return
	}

	// stock is only kept for books the catalog knows
	if _, err := h.catalog.GetBook(ctx, id); err != nil {
		handleDomainError(ctx, h.log, w, err)
		return
	}

	if err := h.stock.SetStock(ctx, id, *req.Stock); err != nil {
		handleDomainError(ctx, h.log, w, err)
		return
	}

	h.log.Info("stock set", zap.Int64("book_id", id), zap.Int32("stock", *req.Stock),
		zap.String("by", getPrincipal(ctx).UserID))
	h.respondStock(ctx, w, id)
}

// POST /api/v1/inventory/{book_id}/replenish
func (h *InventoryHandler) Replenish(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := bookIDParam(w, r)
	if !ok {
		return
	}

	var req ReplenishRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := h.stock.Increment(ctx, id, req.Quantity); err != nil {
		handleDomainError(ctx, h.log, w, err)
		return
	}

	h.log.Info("stock replenished", zap.Int64("book_id", id), zap.Int32("quantity", req.Quantity),
		zap.String("by", getPrincipal(ctx).UserID))
	h.respondStock(ctx, w, id)
}

// DELETE /api/v1/inventory/{book_id}
func (h *InventoryHandler) Retire(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := bookIDParam(w, r)
	if !ok {
		return
	}

	if err := h.stock.Retire(ctx, id); err != nil {
		handleDomainError(ctx, h.log, w, err)
		return
	}

	respondJSON(w, http.StatusOK, Ack{Data: true})
}
