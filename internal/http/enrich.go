package http

import (
	"context"

	"github.com/fjod/go_cart/bookstore/internal/catalog"
	"github.com/fjod/go_cart/bookstore/internal/identity"
	"go.uber.org/zap"
)

// enricher resolves the customer summaries and book titles embedded in
// responses. Lookups that fail degrade to the bare id.
type enricher struct {
	catalog   catalog.Lookup
	directory identity.Directory
	log       *zap.Logger
}

func (e enricher) customer(ctx context.Context, id string) identity.Customer {
	c, err := e.directory.GetCustomer(ctx, id)
	if err != nil {
		e.log.Debug("customer lookup failed", zap.String("customer_id", id), zap.Error(err))
		return identity.Customer{ID: id}
	}
	return *c
}

// titles resolves each book once per response.
func (e enricher) titles(ctx context.Context, bookIDs []int64) map[int64]string {
	titles := make(map[int64]string, len(bookIDs))
	for _, id := range bookIDs {
		if _, seen := titles[id]; seen {
			continue
		}
		book, err := e.catalog.GetBook(ctx, id)
		if err != nil {
			e.log.Debug("book lookup failed", zap.Int64("book_id", id), zap.Error(err))
			titles[id] = ""
			continue
		}
		titles[id] = book.Title
	}
	return titles
}
