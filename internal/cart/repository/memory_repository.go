package repository

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_cart/bookstore/internal/domain"
	"github.com/google/uuid"
)

// MemoryRepository keeps cart lines per customer in insertion order.
type MemoryRepository struct {
	mu    sync.Mutex
	lines map[string][]*domain.CartLine // customerID -> lines
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		lines: make(map[string][]*domain.CartLine),
		now:   time.Now,
	}
}

// find must be called with r.mu held
func (r *MemoryRepository) find(customerID string, match func(*domain.CartLine) bool) (int, *domain.CartLine) {
	for i, line := range r.lines[customerID] {
		if match(line) {
			return i, line
		}
	}
	return -1, nil
}

func (r *MemoryRepository) AddQuantity(_ context.Context, customerID string, bookID int64, qty int32, price int64) (*domain.CartLine, error) {
	if qty > domain.MaxLineQuantity {
		return nil, domain.LineQuantityLimitError()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	_, line := r.find(customerID, func(l *domain.CartLine) bool { return l.BookID == bookID })
	if line != nil && line.Quantity > domain.MaxLineQuantity-qty {
		return nil, domain.LineQuantityLimitError()
	}
	if line == nil {
		line = &domain.CartLine{
			ID:         uuid.NewString(),
			CustomerID: customerID,
			BookID:     bookID,
			CreatedAt:  now,
		}
		r.lines[customerID] = append(r.lines[customerID], line)
	}

	line.Quantity += qty
	line.Subtotal = int64(line.Quantity) * price
	line.UpdatedAt = now

	out := *line
	return &out, nil
}

func (r *MemoryRepository) SetQuantity(_ context.Context, customerID, lineID string, qty int32, price int64) (*domain.CartLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, line := r.find(customerID, func(l *domain.CartLine) bool { return l.ID == lineID })
	if line == nil {
		return nil, domain.ErrCartLineNotFound
	}

	line.Quantity = qty
	line.Subtotal = int64(qty) * price
	line.UpdatedAt = r.now()

	out := *line
	return &out, nil
}

func (r *MemoryRepository) GetLine(_ context.Context, customerID, lineID string) (*domain.CartLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, line := r.find(customerID, func(l *domain.CartLine) bool { return l.ID == lineID })
	if line == nil {
		return nil, domain.ErrCartLineNotFound
	}
	out := *line
	return &out, nil
}

func (r *MemoryRepository) ListLines(_ context.Context, customerID string) ([]domain.CartLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lines := make([]domain.CartLine, 0, len(r.lines[customerID]))
	for _, line := range r.lines[customerID] {
		lines = append(lines, *line)
	}
	return lines, nil
}

func (r *MemoryRepository) DeleteLine(_ context.Context, customerID, lineID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, line := r.find(customerID, func(l *domain.CartLine) bool { return l.ID == lineID })
	if line == nil {
		return domain.ErrCartLineNotFound
	}

	lines := r.lines[customerID]
	r.lines[customerID] = append(lines[:i:i], lines[i+1:]...)
	return nil
}

func (r *MemoryRepository) RemoveBooks(_ context.Context, customerID string, bookIDs []int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	remove := make(map[int64]struct{}, len(bookIDs))
	for _, id := range bookIDs {
		remove[id] = struct{}{}
	}

	var (
		kept    = make([]*domain.CartLine, 0, len(r.lines[customerID]))
		removed int64
	)
	for _, line := range r.lines[customerID] {
		if _, ok := remove[line.BookID]; ok {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	r.lines[customerID] = kept
	return removed, nil
}
