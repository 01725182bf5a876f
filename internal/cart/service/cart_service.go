package service

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/bookstore/internal/cart/cache"
	"github.com/fjod/go_cart/bookstore/internal/cart/repository"
	"github.com/fjod/go_cart/bookstore/internal/catalog"
	"github.com/fjod/go_cart/bookstore/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type CartService struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	catalog catalog.Lookup
	log     *zap.Logger
	sfg     singleflight.Group // Prevents cache stampede
}

func NewCartService(repo repository.CartRepository, c cache.CartCache, lookup catalog.Lookup, log *zap.Logger) *CartService {
	if c == nil {
		c = cache.Noop{}
	}
	return &CartService{
		repo:    repo,
		cache:   c,
		catalog: lookup,
		log:     log.Named("cart"),
	}
}

// AddOrUpdateLine adds quantity to the customer's line for the book, creating
// the line on first add. The subtotal always reflects the current catalog price.
func (s *CartService) AddOrUpdateLine(ctx context.Context, customerID string, bookID int64, quantity int32) (*domain.CartLine, error) {
	v := domain.NewValidationError()
	if bookID <= 0 {
		v.Add("book_id", "must be a positive id")
	}
	if quantity <= 0 {
		v.Add("quantity", "must be greater than zero")
	} else if quantity > domain.MaxLineQuantity {
		return nil, domain.LineQuantityLimitError()
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	book, err := s.catalog.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	line, err := s.repo.AddQuantity(ctx, customerID, bookID, quantity, book.Price)
	if err != nil {
		s.log.Error("repo add line failed", zap.String("customer_id", customerID), zap.Int64("book_id", bookID), zap.Error(err))
		return nil, err
	}

	s.invalidateCache(customerID)
	return line, nil
}

// SetLineQuantity replaces the quantity of a line. A quantity below one
// deletes the line; deleted is then true and the returned line is nil.
func (s *CartService) SetLineQuantity(ctx context.Context, customerID, lineID string, quantity int32) (line *domain.CartLine, deleted bool, err error) {
	if quantity < 1 {
		if err := s.repo.DeleteLine(ctx, customerID, lineID); err != nil {
			return nil, false, err
		}
		s.invalidateCache(customerID)
		return nil, true, nil
	}
	if quantity > domain.MaxLineQuantity {
		return nil, false, domain.LineQuantityLimitError()
	}

	existing, err := s.repo.GetLine(ctx, customerID, lineID)
	if err != nil {
		return nil, false, err
	}

	book, err := s.catalog.GetBook(ctx, existing.BookID)
	if err != nil {
		return nil, false, err
	}

	line, err = s.repo.SetQuantity(ctx, customerID, lineID, quantity, book.Price)
	if err != nil {
		s.log.Error("repo set quantity failed", zap.String("customer_id", customerID), zap.String("line_id", lineID), zap.Error(err))
		return nil, false, err
	}

	s.invalidateCache(customerID)
	return line, false, nil
}

// ListLines returns the customer's cart, served from the cache when possible.
func (s *CartService) ListLines(ctx context.Context, customerID string) (*domain.CartSummary, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(customerID, func() (interface{}, error) {
		summary, err := s.cache.Get(ctx, customerID)
		if err == nil {
			return summary, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("cache get failed", zap.String("customer_id", customerID), zap.Error(err))
		}

		lines, err := s.repo.ListLines(ctx, customerID)
		if err != nil {
			return nil, err
		}
		summary = domain.NewCartSummary(customerID, lines)

		if err := s.cache.Set(ctx, customerID, summary); err != nil {
			s.log.Warn("cache set failed", zap.String("customer_id", customerID), zap.Error(err))
		}
		return summary, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.CartSummary), nil
}

// CurrentLines reads the customer's cart straight from the store, skipping the
// cache. Order creation snapshots from here.
func (s *CartService) CurrentLines(ctx context.Context, customerID string) (*domain.CartSummary, error) {
	lines, err := s.repo.ListLines(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return domain.NewCartSummary(customerID, lines), nil
}

// RemoveLines deletes the customer's lines for the given books. Books without
// a line are skipped.
func (s *CartService) RemoveLines(ctx context.Context, customerID string, bookIDs []int64) error {
	removed, err := s.repo.RemoveBooks(ctx, customerID, bookIDs)
	if err != nil {
		s.log.Error("repo remove lines failed", zap.String("customer_id", customerID), zap.Int64s("book_ids", bookIDs), zap.Error(err))
		return err
	}
	if removed > 0 {
		s.invalidateCache(customerID)
	}
	return nil
}

// DeleteLine removes a single line. Deleting a line that is already gone succeeds.
func (s *CartService) DeleteLine(ctx context.Context, customerID, lineID string) error {
	err := s.repo.DeleteLine(ctx, customerID, lineID)
	if err != nil && !errors.Is(err, domain.ErrCartLineNotFound) {
		return err
	}
	s.invalidateCache(customerID)
	return nil
}

func (s *CartService) invalidateCache(customerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, customerID); err != nil {
		s.log.Warn("cache invalidate failed", zap.String("customer_id", customerID), zap.Error(err))
	}
}
