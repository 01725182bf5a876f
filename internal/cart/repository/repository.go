package repository

import (
	"context"

	"github.com/fjod/go_cart/bookstore/internal/domain"
)

// CartRepository stores cart lines, unique per (customer, book).
// Lines are returned in insertion order.
type CartRepository interface {
	// AddQuantity merges qty into the customer's line for bookID, creating it
	// if needed, and sets subtotal = quantity * price in the same atomic step.
	// A merge past domain.MaxLineQuantity fails validation and changes nothing.
	AddQuantity(ctx context.Context, customerID string, bookID int64, qty int32, price int64) (*domain.CartLine, error)

	// SetQuantity replaces the quantity of an existing line and recomputes its subtotal.
	SetQuantity(ctx context.Context, customerID, lineID string, qty int32, price int64) (*domain.CartLine, error)

	GetLine(ctx context.Context, customerID, lineID string) (*domain.CartLine, error)
	ListLines(ctx context.Context, customerID string) ([]domain.CartLine, error)

	// DeleteLine returns domain.ErrCartLineNotFound when nothing was deleted.
	DeleteLine(ctx context.Context, customerID, lineID string) error

	// RemoveBooks deletes the customer's lines for bookIDs; missing lines are skipped.
	RemoveBooks(ctx context.Context, customerID string, bookIDs []int64) (int64, error)
}
