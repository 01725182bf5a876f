package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_cart/bookstore/internal/domain"
)

type memoryRecord struct {
	domain.InventoryRecord
	retired bool
}

// MemoryStore implements Ledger with in-memory storage
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int64]*memoryRecord // bookID -> record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[int64]*memoryRecord),
		now:     time.Now,
	}
}

// active must be called with s.mu held
func (s *MemoryStore) active(bookID int64) (*memoryRecord, error) {
	rec, exists := s.records[bookID]
	if !exists || rec.retired {
		return nil, domain.ErrStockNotFound
	}
	return rec, nil
}

func (s *MemoryStore) GetStock(_ context.Context, bookID int64) (*domain.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.active(bookID)
	if err != nil {
		return nil, err
	}
	out := rec.InventoryRecord
	return &out, nil
}

func (s *MemoryStore) ListStock(_ context.Context) ([]domain.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InventoryRecord, 0, len(s.records))
	for _, rec := range s.records {
		if !rec.retired {
			result = append(result, rec.InventoryRecord)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].BookID < result[j].BookID })
	return result, nil
}

func (s *MemoryStore) Decrement(_ context.Context, bookID int64, qty int32) error {
	if err := validateQuantity(qty); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.active(bookID)
	if err != nil {
		return err
	}
	if rec.Stock < qty {
		return domain.ErrInsufficientStock
	}
	rec.Stock -= qty
	rec.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) Increment(_ context.Context, bookID int64, qty int32) error {
	if err := validateQuantity(qty); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.active(bookID)
	if err != nil {
		return err
	}
	if rec.Stock > MaxStock-qty {
		return stockLimitError()
	}
	rec.Stock += qty
	rec.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) SetStock(_ context.Context, bookID int64, stock int32) error {
	if err := validateStock(stock); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[bookID] = &memoryRecord{
		InventoryRecord: domain.InventoryRecord{
			BookID:    bookID,
			Stock:     stock,
			UpdatedAt: s.now(),
		},
	}
	return nil
}

func (s *MemoryStore) Seed(_ context.Context, bookID int64, stock int32) (bool, error) {
	if err := validateStock(stock); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[bookID]; exists {
		return false, nil
	}
	s.records[bookID] = &memoryRecord{
		InventoryRecord: domain.InventoryRecord{
			BookID:    bookID,
			Stock:     stock,
			UpdatedAt: s.now(),
		},
	}
	return true, nil
}

func (s *MemoryStore) Retire(_ context.Context, bookID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.active(bookID)
	if err != nil {
		return err
	}
	rec.retired = true
	rec.UpdatedAt = s.now()
	return nil
}
