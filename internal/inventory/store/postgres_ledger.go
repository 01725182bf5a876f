package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fjod/go_cart/bookstore/internal/domain"
)

// Querier is satisfied by both *sql.DB and *sql.Tx, so the ledger can join
// the order workflow's transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresLedger struct {
	q Querier
}

func NewPostgresLedger(q Querier) *PostgresLedger {
	return &PostgresLedger{q: q}
}

func (l *PostgresLedger) GetStock(ctx context.Context, bookID int64) (*domain.InventoryRecord, error) {
	query := `SELECT book_id, stock, updated_at FROM inventory WHERE book_id = $1 AND lifecycle = 'active'`

	rec := &domain.InventoryRecord{}
	err := l.q.QueryRowContext(ctx, query, bookID).Scan(&rec.BookID, &rec.Stock, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrStockNotFound
	}
	if err != nil {
		return nil, domain.Persistence("query stock", err)
	}
	return rec, nil
}

func (l *PostgresLedger) ListStock(ctx context.Context) ([]domain.InventoryRecord, error) {
	query := `SELECT book_id, stock, updated_at FROM inventory WHERE lifecycle = 'active' ORDER BY book_id`

	rows, err := l.q.QueryContext(ctx, query)
	if err != nil {
		return nil, domain.Persistence("list stock", err)
	}
	defer rows.Close()

	records := make([]domain.InventoryRecord, 0)
	for rows.Next() {
		var rec domain.InventoryRecord
		if err := rows.Scan(&rec.BookID, &rec.Stock, &rec.UpdatedAt); err != nil {
			return nil, domain.Persistence("scan stock", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("iterate stock", err)
	}
	return records, nil
}

func (l *PostgresLedger) Decrement(ctx context.Context, bookID int64, qty int32) error {
	if err := validateQuantity(qty); err != nil {
		return err
	}

	query := `UPDATE inventory SET stock = stock - $1, updated_at = NOW()
              WHERE book_id = $2 AND stock >= $1 AND lifecycle = 'active'`

	res, err := l.q.ExecContext(ctx, query, qty, bookID)
	if err != nil {
		return domain.Persistence("decrement stock", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Persistence("decrement stock", err)
	}
	if n == 1 {
		return nil
	}

	// nothing updated: tell a missing record apart from a short one
	if _, err := l.GetStock(ctx, bookID); err != nil {
		return err
	}
	return domain.ErrInsufficientStock
}

func (l *PostgresLedger) Increment(ctx context.Context, bookID int64, qty int32) error {
	if err := validateQuantity(qty); err != nil {
		return err
	}

	query := `UPDATE inventory SET stock = stock + $1, updated_at = NOW()
              WHERE book_id = $2 AND lifecycle = 'active' AND stock <= $3`

	res, err := l.q.ExecContext(ctx, query, qty, bookID, MaxStock-qty)
	if err != nil {
		return domain.Persistence("increment stock", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Persistence("increment stock", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := l.GetStock(ctx, bookID); err != nil {
		return err
	}
	return stockLimitError()
}

func (l *PostgresLedger) SetStock(ctx context.Context, bookID int64, stock int32) error {
	if err := validateStock(stock); err != nil {
		return err
	}

	query := `INSERT INTO inventory (book_id, stock, lifecycle, updated_at)
              VALUES ($1, $2, 'active', NOW())
              ON CONFLICT (book_id) DO UPDATE
              SET stock = EXCLUDED.stock, lifecycle = 'active', retired_at = NULL, updated_at = NOW()`

	if _, err := l.q.ExecContext(ctx, query, bookID, stock); err != nil {
		return domain.Persistence("set stock", err)
	}
	return nil
}

func (l *PostgresLedger) Seed(ctx context.Context, bookID int64, stock int32) (bool, error) {
	if err := validateStock(stock); err != nil {
		return false, err
	}

	query := `INSERT INTO inventory (book_id, stock, lifecycle, updated_at)
              VALUES ($1, $2, 'active', NOW())
              ON CONFLICT (book_id) DO NOTHING`

	res, err := l.q.ExecContext(ctx, query, bookID, stock)
	if err != nil {
		return false, domain.Persistence("seed stock", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.Persistence("seed stock", err)
	}
	return n == 1, nil
}

func (l *PostgresLedger) Retire(ctx context.Context, bookID int64) error {
	query := `UPDATE inventory SET lifecycle = 'retired', retired_at = NOW(), updated_at = NOW()
              WHERE book_id = $1 AND lifecycle = 'active'`

	return l.expectOne(ctx, "retire stock", query, bookID)
}

func (l *PostgresLedger) expectOne(ctx context.Context, op, query string, args ...any) error {
	res, err := l.q.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Persistence(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Persistence(op, err)
	}
	if n == 0 {
		return domain.ErrStockNotFound
	}
	return nil
}
