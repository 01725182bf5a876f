package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/bookstore/internal/domain"
)

// CartCache holds rendered cart summaries keyed by customer.
type CartCache interface {
	Get(ctx context.Context, customerID string) (*domain.CartSummary, error)
	Set(ctx context.Context, customerID string, summary *domain.CartSummary) error
	Delete(ctx context.Context, customerID string) error
}

var ErrCacheMiss = errors.New("cache miss")

// Noop is used when no Redis address is configured; every read misses.
type Noop struct{}

func (Noop) Get(context.Context, string) (*domain.CartSummary, error) { return nil, ErrCacheMiss }

func (Noop) Set(context.Context, string, *domain.CartSummary) error { return nil }

func (Noop) Delete(context.Context, string) error { return nil }
