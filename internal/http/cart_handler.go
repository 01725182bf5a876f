package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_cart/bookstore/internal/catalog"
	"github.com/fjod/go_cart/bookstore/internal/domain"
	"github.com/fjod/go_cart/bookstore/internal/identity"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CartService interface {
	AddOrUpdateLine(ctx context.Context, customerID string, bookID int64, quantity int32) (*domain.CartLine, error)
	SetLineQuantity(ctx context.Context, customerID, lineID string, quantity int32) (*domain.CartLine, bool, error)
	ListLines(ctx context.Context, customerID string) (*domain.CartSummary, error)
	DeleteLine(ctx context.Context, customerID, lineID string) error
}

type CartHandler struct {
	cart    CartService
	enrich  enricher
	timeout time.Duration
	log     *zap.Logger
}

func NewCartHandler(cart CartService, lookup catalog.Lookup, directory identity.Directory, timeout time.Duration, log *zap.Logger) *CartHandler {
	log = log.Named("cart-http")
	return &CartHandler{
		cart:    cart,
		enrich:  enricher{catalog: lookup, directory: directory, log: log},
		timeout: timeout,
		log:     log,
	}
}

type AddLineRequestDTO struct {
	BookID   int64 `json:"book_id"`
	Quantity int32 `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int32 `json:"quantity"`
}

type CartLineDTO struct {
	ID        string    `json:"id"`
	BookID    int64     `json:"book_id"`
	Title     string    `json:"title"`
	Quantity  int32     `json:"quantity"`
	Subtotal  int64     `json:"subtotal"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CartResponseDTO struct {
	Customer identity.Customer `json:"customer"`
	Lines    []CartLineDTO     `json:"lines"`
	Items    int               `json:"items"`
	Total    int64             `json:"total"`
}

func convertCartLine(line domain.CartLine, title string) CartLineDTO {
	return CartLineDTO{
		ID:        line.ID,
		BookID:    line.BookID,
		Title:     title,
		Quantity:  line.Quantity,
		Subtotal:  line.Subtotal,
		CreatedAt: line.CreatedAt,
		UpdatedAt: line.UpdatedAt,
	}
}

// customerID returns the caller's id, or writes the error and returns false.
func (h *CartHandler) customerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := getPrincipal(r.Context())
	if p.UserID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return "", false
	}
	if !p.IsCustomer() {
		respondError(w, http.StatusForbidden, "forbidden", "customer role required")
		return "", false
	}
	return p.UserID, true
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	customerID, ok := h.customerID(w, r)
	if !ok {
		return
	}

	summary, err := h.cart.ListLines(ctx, customerID)
	if err != nil {
		handleDomainError(ctx, h.log, w, err)
		return
	}

	bookIDs := make([]int64, len(summary.Lines))
	for i, line := range summary.Lines {
		bookIDs[i] = line.BookID
	}
	titles := h.enrich.titles(ctx, bookIDs)

	lines := make([]CartLineDTO, 0, len(summary.Lines))
	for _, line := range summary.Lines {
		lines = append(lines, convertCartLine(line, titles[line.BookID]))
	}

	respondJSON(w, http.StatusOK, CartResponseDTO{
		Customer: h.enrich.customer(ctx, customerID),
		Lines:    lines,
		Items:    summary.Count,
		Total:    summary.Total,
	})
}

// POST /api/v1/cart
func (h *CartHandler) AddLine(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	customerID, ok := h.customerID(w, r)
	if !ok {
		return
	}

	var req AddLineRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	line, err := h.cart.AddOrUpdateLine(ctx, customerID, req.BookID, req.Quantity)
	if err != nil {
		handleDomainError(ctx, h.log, w, err)
		return
	}

	titles := h.enrich.titles(ctx, []int64{line.BookID})
	respondJSON(w, http.StatusCreated, convertCartLine(*line, titles[line.BookID]))
}

// PUT /api/v1/cart/{line_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	customerID, ok := h.customerID(w, r)
	if !ok {
		return
	}

	lineID := chi.URLParam(r, "line_id")
	if lineID == "" {
		respondError(w, http.StatusBadRequest, "missing_line_id", "line_id is required")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	line, deleted, err := h.cart.SetLineQuantity(ctx, customerID, lineID, req.Quantity)
	if err != nil {
		handleDomainError(ctx, h.log, w, err)
		return
	}
	if deleted {
		respondJSON(w, http.StatusOK, Ack{Data: true})
		return
	}

	titles := h.enrich.titles(ctx, []int64{line.BookID})
	respondJSON(w, http.StatusCreated, convertCartLine(*line, titles[line.BookID]))
}

// DELETE /api/v1/cart/{line_id}
func (h *CartHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	customerID, ok := h.customerID(w, r)
	if !ok {
		return
	}

	if err := h.cart.DeleteLine(ctx, customerID, chi.URLParam(r, "line_id")); err != nil {
		handleDomainError(ctx, h.log, w, err)
		return
	}

	respondJSON(w, http.StatusOK, Ack{Data: true})
}
