package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated          = "order.created"
	EventOrderPaymentSubmitted = "order.payment_submitted"
	EventOrderPaymentVerified  = "order.payment_verified"
	EventOrderCompleted        = "order.completed"
)

// EventTypeFor names the outbox event emitted when an order enters status.
func EventTypeFor(status OrderStatus) string {
	switch status {
	case OrderStatusPaymentSubmitted:
		return EventOrderPaymentSubmitted
	case OrderStatusPaymentVerified:
		return EventOrderPaymentVerified
	case OrderStatusCompleted:
		return EventOrderCompleted
	default:
		return EventOrderCreated
	}
}

type OutboxEvent struct {
	ID          int64
	AggregateID uuid.UUID
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// OrderEvent is the JSON payload of every order outbox event.
type OrderEvent struct {
	OrderID    string     `json:"order_id"`
	OrderCode  string     `json:"order_code,omitempty"`
	CustomerID string     `json:"customer_id"`
	Status     string     `json:"status"`
	Items      OrderItems `json:"items"`
	Total      int64      `json:"total"`
	OccurredAt time.Time  `json:"occurred_at"`
}

func NewOrderEvent(o *Order, at time.Time) OrderEvent {
	return OrderEvent{
		OrderID:    o.ID.String(),
		OrderCode:  o.Code,
		CustomerID: o.CustomerID,
		Status:     o.Status.String(),
		Items:      o.Items,
		Total:      o.Total,
		OccurredAt: at,
	}
}
