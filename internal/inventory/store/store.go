package store

import (
	"context"
	"fmt"
	"math"

	"github.com/fjod/go_cart/bookstore/internal/domain"
)

// Ledger keeps the stock count of every sellable book.
type Ledger interface {
	// GetStock returns domain.ErrStockNotFound for unknown or retired records.
	GetStock(ctx context.Context, bookID int64) (*domain.InventoryRecord, error)

	// ListStock returns active records ordered by book id.
	ListStock(ctx context.Context) ([]domain.InventoryRecord, error)

	// Decrement removes qty units in a single conditional step. It fails with
	// domain.ErrInsufficientStock and leaves the record unchanged when stock < qty.
	Decrement(ctx context.Context, bookID int64, qty int32) error

	// Increment adds qty units. Used for replenishment and for compensation.
	// A result above MaxStock fails validation and leaves the record unchanged.
	Increment(ctx context.Context, bookID int64, qty int32) error

	// SetStock creates or overwrites a record, reviving it if retired.
	SetStock(ctx context.Context, bookID int64, stock int32) error

	// Seed creates a record only when the book has none, retired ones included.
	// It reports whether a record was created.
	Seed(ctx context.Context, bookID int64, stock int32) (bool, error)

	// Retire hides a record from every other operation.
	Retire(ctx context.Context, bookID int64) error
}

// MaxStock is the largest stock a record can hold.
const MaxStock int32 = math.MaxInt32

func stockLimitError() error {
	v := domain.NewValidationError()
	v.Add("quantity", fmt.Sprintf("stock must stay at most %d", MaxStock))
	return v
}

func validateQuantity(qty int32) error {
	if qty <= 0 {
		v := domain.NewValidationError()
		v.Add("quantity", "must be greater than zero")
		return v
	}
	return nil
}

func validateStock(stock int32) error {
	if stock < 0 {
		v := domain.NewValidationError()
		v.Add("stock", "must not be negative")
		return v
	}
	return nil
}
