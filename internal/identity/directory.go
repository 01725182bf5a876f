package identity

import (
	"context"
	"sync"

	"github.com/fjod/go_cart/bookstore/internal/domain"
)

// Customer is the public summary of a user embedded in cart and order responses.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type Directory interface {
	GetCustomer(ctx context.Context, id string) (*Customer, error)
}

// StaticDirectory serves customer summaries from a fixed set loaded at startup.
type StaticDirectory struct {
	mu        sync.RWMutex
	customers map[string]Customer
}

func NewStaticDirectory(customers ...Customer) *StaticDirectory {
	d := &StaticDirectory{customers: make(map[string]Customer, len(customers))}
	for _, c := range customers {
		d.customers[c.ID] = c
	}
	return d
}

func (d *StaticDirectory) GetCustomer(_ context.Context, id string) (*Customer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.customers[id]
	if !ok {
		return nil, domain.ErrCustomerNotFound
	}
	return &c, nil
}

func (d *StaticDirectory) Put(c Customer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.customers[c.ID] = c
}
