package domain

import "time"

// InventoryRecord holds the stock count of one book.
type InventoryRecord struct {
	BookID    int64
	Stock     int32
	UpdatedAt time.Time
}

// Available is derived from stock and never stored.
func (r InventoryRecord) Available() bool {
	return r.Stock > 0
}

type Book struct {
	ID           int64
	Title        string
	Author       string
	Publisher    string
	YearReleased int
	Genre        string
	Price        int64
	CreatedAt    time.Time
}

// BookFilter narrows catalog listings with case-insensitive substring matches.
type BookFilter struct {
	Title        string
	Author       string
	Publisher    string
	YearReleased string
	Genre        string
}
