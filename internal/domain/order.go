package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrderItem is one snapshot line copied from the cart at order creation.
type OrderItem struct {
	BookID   int64 `json:"book_id"`
	Quantity int32 `json:"quantity"`
	Subtotal int64 `json:"subtotal"`
}

// OrderItems is the immutable item snapshot of an order. It is persisted as a
// JSON array through Value and read back through Scan.
type OrderItems []OrderItem

func (items OrderItems) Total() int64 {
	var total int64
	for _, item := range items {
		total += item.Subtotal
	}
	return total
}

func (items OrderItems) BookIDs() []int64 {
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.BookID
	}
	return ids
}

func (items OrderItems) Value() (driver.Value, error) {
	if items == nil {
		items = OrderItems{}
	}
	b, err := json.Marshal([]OrderItem(items))
	if err != nil {
		return nil, fmt.Errorf("marshal order items: %w", err)
	}
	return b, nil
}

func (items *OrderItems) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case nil:
		*items = OrderItems{}
		return nil
	default:
		return fmt.Errorf("unsupported order items type %T", src)
	}

	var decoded []OrderItem
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("unmarshal order items: %w", err)
	}
	*items = decoded
	return nil
}

func SnapshotItems(lines []CartLine) OrderItems {
	items := make(OrderItems, len(lines))
	for i, line := range lines {
		items[i] = OrderItem{
			BookID:   line.BookID,
			Quantity: line.Quantity,
			Subtotal: line.Subtotal,
		}
	}
	return items
}

type Order struct {
	ID              uuid.UUID
	Code            string
	CustomerID      string
	Items           OrderItems
	Total           int64
	PaymentMethod   string
	Recipient       string
	Address         string
	DeliveryService string
	IsPaid          bool
	PaymentProof    string
	Status          OrderStatus
	IsCompleted     bool
	Lifecycle       Lifecycle
	CreatedAt       time.Time
	UpdatedAt       time.Time
	RetiredAt       *time.Time
}

// PaymentDetails are the fields supplied at payment submission.
type PaymentDetails struct {
	PaymentMethod   string
	Address         string
	DeliveryService string
	Recipient       string
}

func (o *Order) IsRetired() bool {
	return o.Lifecycle == LifecycleRetired
}

// Clone returns a deep copy so that in-memory stores never share snapshots.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append(OrderItems(nil), o.Items...)
	if o.RetiredAt != nil {
		t := *o.RetiredAt
		c.RetiredAt = &t
	}
	return &c
}
