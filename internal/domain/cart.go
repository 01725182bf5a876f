package domain

import (
	"fmt"
	"time"
)

// MaxLineQuantity caps the quantity of a single cart line.
const MaxLineQuantity int32 = 10000

// LineQuantityLimitError reports a line quantity above MaxLineQuantity.
func LineQuantityLimitError() error {
	v := NewValidationError()
	v.Add("quantity", fmt.Sprintf("must be at most %d per line", MaxLineQuantity))
	return v
}

type CartLine struct {
	ID         string    `bson:"line_id" json:"id"`
	CustomerID string    `bson:"customer_id" json:"customer_id"`
	BookID     int64     `bson:"book_id" json:"book_id"`
	Quantity   int32     `bson:"quantity" json:"quantity"`
	Subtotal   int64     `bson:"subtotal" json:"subtotal"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}

// CartSummary is a customer's lines in insertion order with aggregates.
type CartSummary struct {
	CustomerID string     `json:"customer_id"`
	Lines      []CartLine `json:"lines"`
	Count      int        `json:"count"`
	Total      int64      `json:"total"`
}

func NewCartSummary(customerID string, lines []CartLine) *CartSummary {
	summary := &CartSummary{
		CustomerID: customerID,
		Lines:      lines,
		Count:      len(lines),
	}
	if summary.Lines == nil {
		summary.Lines = []CartLine{}
	}
	for _, line := range lines {
		summary.Total += line.Subtotal
	}
	return summary
}

// Select returns the lines whose book is in bookIDs, keeping cart order.
func (c *CartSummary) Select(bookIDs []int64) []CartLine {
	wanted := make(map[int64]struct{}, len(bookIDs))
	for _, id := range bookIDs {
		wanted[id] = struct{}{}
	}

	selected := make([]CartLine, 0, len(bookIDs))
	for _, line := range c.Lines {
		if _, ok := wanted[line.BookID]; ok {
			selected = append(selected, line)
		}
	}
	return selected
}
