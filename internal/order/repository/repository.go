package repository

import (
	"context"

	"github.com/fjod/go_cart/bookstore/internal/domain"
	"github.com/fjod/go_cart/bookstore/internal/inventory/store"
	"github.com/google/uuid"
)

// ApplyFunc mutates a copy of the order inside a transition's unit of work.
// The ledger it receives takes part in the same unit of work. Returning an
// error aborts the transition and leaves the stored order untouched.
type ApplyFunc func(ctx context.Context, order *domain.Order, ledger store.Ledger) error

// Repository persists orders and their outbox events. Retired orders are
// invisible to every method except Retire's own guard.
type Repository interface {
	// CreateOrder stores a new order and its order.created event.
	CreateOrder(ctx context.Context, order *domain.Order) error

	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)

	// ListOrdersByCustomer returns the customer's orders, newest first.
	ListOrdersByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error)

	OrderCodeExists(ctx context.Context, code string) (bool, error)

	// Transition moves an order from one status to the next as a guarded
	// compare-and-swap. Only one concurrent caller can observe `from`; the
	// others fail with domain.ErrInvalidStateTransition. The event for the
	// new status is appended to the outbox in the same unit of work.
	Transition(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, apply ApplyFunc) (*domain.Order, error)

	Retire(ctx context.Context, id uuid.UUID) error

	GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

func checkTransition(current, from, to domain.OrderStatus) error {
	if current != from || !domain.CanTransitionTo(from, to) {
		return domain.ErrInvalidStateTransition
	}
	return nil
}
