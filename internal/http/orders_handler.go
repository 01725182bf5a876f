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
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderWorkflow interface {
	Create(ctx context.Context, p identity.Principal, bookIDs []int64) (*domain.Order, error)
	Get(ctx context.Context, p identity.Principal, id uuid.UUID) (*domain.Order, error)
	ListMine(ctx context.Context, p identity.Principal) ([]*domain.Order, error)
	SubmitPayment(ctx context.Context, p identity.Principal, id uuid.UUID, details domain.PaymentDetails) (*domain.Order, error)
	VerifyPayment(ctx context.Context, p identity.Principal, id uuid.UUID, proof string) (*domain.Order, error)
	Complete(ctx context.Context, p identity.Principal, id uuid.UUID) (*domain.Order, error)
	Retire(ctx context.Context, p identity.Principal, id uuid.UUID) error
}

type OrdersHandler struct {
	orders  OrderWorkflow
	enrich  enricher
	timeout time.Duration
	log     *zap.Logger
}

func NewOrdersHandler(orders OrderWorkflow, lookup catalog.Lookup, directory identity.Directory, timeout time.Duration, log *zap.Logger) *OrdersHandler {
	log = log.Named("orders-http")
	return &OrdersHandler{
		orders:  orders,
		enrich:  enricher{catalog: lookup, directory: directory, log: log},
		timeout: timeout,
		log:     log,
	}
}

type CreateOrderRequestDTO struct {
	BookIDs []int64 `json:"book_ids"`
}

type SubmitPaymentRequestDTO struct {
	PaymentMethod   string `json:"payment_method"`
	Address         string `json:"address"`
	DeliveryService string `json:"delivery_service"`
	Recipient       string `json:"recipient"`
}

type VerifyPaymentRequestDTO struct {
	PaymentProof string `json:"payment_proof"`
}

type OrderItemDTO struct {
	BookID   int64  `json:"book_id"`
	Title    string `json:"title"`
	Quantity int32  `json:"quantity"`
	Subtotal int64  `json:"subtotal"`
}

type OrderResponseDTO struct {
	ID              string            `json:"id"`
	Code            string            `json:"code,omitempty"`
	Customer        identity.Customer `json:"customer"`
	Items           []OrderItemDTO    `json:"items"`
	Total           int64             `json:"total"`
	PaymentMethod   string            `json:"payment_method,omitempty"`
	Recipient       string            `json:"recipient,omitempty"`
	Address         string            `json:"address,omitempty"`
	DeliveryService string            `json:"delivery_service,omitempty"`
	IsPaid          bool              `json:"is_paid"`
	PaymentProof    string            `json:"payment_proof,omitempty"`
	Status          string            `json:"status"`
	IsCompleted     bool              `json:"is_completed"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (h *OrdersHandler) convertOrder(ctx context.Context, o *domain.Order) OrderResponseDTO {
	titles := h.enrich.titles(ctx, o.Items.BookIDs())
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemDTO{
			BookID:   item.BookID,
			Title:    titles[item.BookID],
			Quantity: item.Quantity,
			Subtotal: item.Subtotal,
		})
	}

	return OrderResponseDTO{
		ID:              o.ID.String(),
		Code:            o.Code,
		Customer:        h.enrich.customer(ctx, o.CustomerID),
		Items:           items,
		Total:           o.Total,
		PaymentMethod:   o.PaymentMethod,
		Recipient:       o.Recipient,
		Address:         o.Address,
		DeliveryService: o.DeliveryService,
		IsPaid:          o.IsPaid,
		PaymentProof:    o.PaymentProof,
		Status:          o.Status.String(),
		IsCompleted:     o.IsCompleted,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// POST /api/v1/orders
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateOrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, err := h.orders.Create(ctx, getPrincipal(ctx), req.BookIDs)
	if err != nil {
		handleDomainError(ctx, h.log, w, err)
		return
	}

	respondJSON(w, http.StatusCreated, h.convertOrder(ctx, order))
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListMine(ctx, getPrincipal(ctx))
	if err != nil {
		handleDomainError(ctx, h.log, w, err)
		return
	}

	dtos := make([]OrderResponseDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, h.convertOrder(ctx, o))
	}

	respondJSON(w, http.StatusOK, dtos)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.orders.Get(ctx, getPrincipal(ctx), id)
	if err != nil {
		handleDomainError(ctx, h.log, w, err)
		return
	}

	respondJSON(w, http.StatusOK, h.convertOrder(ctx, order))
}

// PUT /api/v1/orders/{order_id}/payment
func (h *OrdersHandler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req SubmitPaymentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, err := h.orders.SubmitPayment(ctx, getPrincipal(ctx), id, domain.PaymentDetails{
		PaymentMethod:   req.PaymentMethod,
		Address:         req.Address,
		DeliveryService: req.DeliveryService,
		Recipient:       req.Recipient,
	})
	if err != nil {
		handleDomainError(ctx, h.log, w, err)
		return
	}

	respondJSON(w, http.StatusCreated, h.convertOrder(ctx, order))
}

// PUT /api/v1/orders/{order_id}/payment-verify
func (h *OrdersHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req VerifyPaymentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, err := h.orders.VerifyPayment(ctx, getPrincipal(ctx), id, req.PaymentProof)
	if err != nil {
		handleDomainError(ctx, h.log, w, err)
		return
	}

	respondJSON(w, http.StatusCreated, h.convertOrder(ctx, order))
}

// PUT /api/v1/orders/{order_id}/complete
func (h *OrdersHandler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.orders.Complete(ctx, getPrincipal(ctx), id)
	if err != nil {
		handleDomainError(ctx, h.log, w, err)
		return
	}

	respondJSON(w, http.StatusCreated, h.convertOrder(ctx, order))
}

// DELETE /api/v1/orders/{order_id}
func (h *OrdersHandler) RetireOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	if err := h.orders.Retire(ctx, getPrincipal(ctx), id); err != nil {
		handleDomainError(ctx, h.log, w, err)
		return
	}

	respondJSON(w, http.StatusOK, Ack{Data: true})
}
