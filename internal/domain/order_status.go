package domain

type OrderStatus string

const (
	OrderStatusCreated          OrderStatus = "CREATED"
	OrderStatusPaymentSubmitted OrderStatus = "PAYMENT_SUBMITTED"
	OrderStatusPaymentVerified  OrderStatus = "PAYMENT_VERIFIED"
	OrderStatusCompleted        OrderStatus = "COMPLETED"
)

// next holds the only permitted forward step for each status.
var next = map[OrderStatus]OrderStatus{
	OrderStatusCreated:          OrderStatusPaymentSubmitted,
	OrderStatusPaymentSubmitted: OrderStatusPaymentVerified,
	OrderStatusPaymentVerified:  OrderStatusCompleted,
}

func CanTransitionTo(from, to OrderStatus) bool {
	n, ok := next[from]
	return ok && n == to
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusPaymentSubmitted, OrderStatusPaymentVerified, OrderStatusCompleted:
		return true
	}
	return false
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}

// Lifecycle replaces the soft-delete flag: retired records are hidden by repositories.
type Lifecycle string

const (
	LifecycleActive  Lifecycle = "active"
	LifecycleRetired Lifecycle = "retired"
)
