package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_cart/bookstore/internal/domain"
	"github.com/fjod/go_cart/bookstore/internal/inventory/store"
	"github.com/google/uuid"
)

// MemoryRepository keeps orders in a map guarded by one mutex. Transitions
// run apply on a clone and swap it in only on success.
type MemoryRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*domain.Order
	events []*domain.OutboxEvent
	nextID int64
	ledger store.Ledger
	now    func() time.Time
}

func NewMemoryRepository(ledger store.Ledger) *MemoryRepository {
	return &MemoryRepository{
		orders: make(map[uuid.UUID]*domain.Order),
		ledger: ledger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// active must be called with r.mu held
func (r *MemoryRepository) active(id uuid.UUID) (*domain.Order, error) {
	o, ok := r.orders[id]
	if !ok || o.IsRetired() {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

// appendEvent must be called with r.mu held
func (r *MemoryRepository) appendEvent(o *domain.Order, at time.Time) error {
	payload, err := json.Marshal(domain.NewOrderEvent(o, at))
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	r.nextID++
	r.events = append(r.events, &domain.OutboxEvent{
		ID:          r.nextID,
		AggregateID: o.ID,
		EventType:   domain.EventTypeFor(o.Status),
		Payload:     payload,
		CreatedAt:   at,
	})
	return nil
}

func (r *MemoryRepository) CreateOrder(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return domain.Persistence("insert order", fmt.Errorf("duplicate order id %s", order.ID))
	}
	stored := order.Clone()
	if err := r.appendEvent(stored, stored.CreatedAt); err != nil {
		return err
	}
	r.orders[order.ID] = stored
	return nil
}

func (r *MemoryRepository) GetOrder(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, err := r.active(id)
	if err != nil {
		return nil, err
	}
	return o.Clone(), nil
}

func (r *MemoryRepository) ListOrdersByCustomer(_ context.Context, customerID string) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	orders := make([]*domain.Order, 0)
	for _, o := range r.orders {
		if o.CustomerID == customerID && !o.IsRetired() {
			orders = append(orders, o.Clone())
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (r *MemoryRepository) OrderCodeExists(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range r.orders {
		if o.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) Transition(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, apply ApplyFunc) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.active(id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(current.Status, from, to); err != nil {
		return nil, err
	}

	next := current.Clone()
	next.Status = to
	next.UpdatedAt = r.now()
	if apply != nil {
		if err := apply(ctx, next, r.ledger); err != nil {
			return nil, err
		}
	}

	if next.Code != "" && next.Code != current.Code {
		for otherID, o := range r.orders {
			if otherID != id && o.Code == next.Code {
				return nil, domain.ErrDuplicateCode
			}
		}
	}

	if err := r.appendEvent(next, next.UpdatedAt); err != nil {
		return nil, err
	}
	r.orders[id] = next
	return next.Clone(), nil
}

func (r *MemoryRepository) Retire(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, err := r.active(id)
	if err != nil {
		return err
	}
	now := r.now()
	o.Lifecycle = domain.LifecycleRetired
	o.RetiredAt = &now
	o.UpdatedAt = now
	return nil
}

func (r *MemoryRepository) GetUnprocessedEvents(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := make([]*domain.OutboxEvent, 0, limit)
	for _, e := range r.events {
		if len(events) == limit {
			break
		}
		if e.ProcessedAt == nil {
			c := *e
			events = append(events, &c)
		}
	}
	return events, nil
}

func (r *MemoryRepository) MarkEventAsProcessed(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.events {
		if e.ID == id {
			now := r.now()
			e.ProcessedAt = &now
			return nil
		}
	}
	return nil
}
