package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/bookstore/internal/domain"
	"github.com/fjod/go_cart/bookstore/internal/inventory/store"
	"github.com/fjod/go_cart/bookstore/internal/platform/postgres"
	"github.com/google/uuid"
)

const orderCodeIndex = "idx_orders_code"

const orderColumns = `id, COALESCE(code, ''), customer_id, items, total, payment_method, recipient, address,
	delivery_service, is_paid, payment_proof, status, is_completed, lifecycle, created_at, updated_at, retired_at`

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID,
		&o.Code,
		&o.CustomerID,
		&o.Items,
		&o.Total,
		&o.PaymentMethod,
		&o.Recipient,
		&o.Address,
		&o.DeliveryService,
		&o.IsPaid,
		&o.PaymentProof,
		&o.Status,
		&o.IsCompleted,
		&o.Lifecycle,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.RetiredAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PostgresRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Persistence("begin create order", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO orders (id, code, customer_id, items, total, status, lifecycle, created_at, updated_at)
	          VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $8)`

	_, err = tx.ExecContext(ctx, query,
		order.ID,
		order.Code,
		order.CustomerID,
		order.Items,
		order.Total,
		order.Status,
		order.Lifecycle,
		order.CreatedAt)
	if err != nil {
		return domain.Persistence("insert order", err)
	}

	if err := insertEvent(ctx, tx, order, order.CreatedAt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return domain.Persistence("commit create order", err)
	}
	return nil
}

func (r *PostgresRepository) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND lifecycle = 'active'`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, domain.Persistence("query order", err)
	}
	return order, nil
}

func (r *PostgresRepository) ListOrdersByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
	          WHERE customer_id = $1 AND lifecycle = 'active' ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, domain.Persistence("query orders by customer", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, domain.Persistence("scan order row", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("iterate orders", err)
	}
	return orders, nil
}

func (r *PostgresRepository) OrderCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, domain.Persistence("check order code", err)
	}
	return exists, nil
}

func (r *PostgresRepository) Transition(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, apply ApplyFunc) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.Persistence("begin transition", err)
	}
	defer tx.Rollback()

	// the row lock serialises concurrent transitions of the same order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND lifecycle = 'active' FOR UPDATE`
	order, err := scanOrder(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, domain.Persistence("lock order", err)
	}

	if err := checkTransition(order.Status, from, to); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order.Status = to
	order.UpdatedAt = now
	if apply != nil {
		if err := apply(ctx, order, store.NewPostgresLedger(tx)); err != nil {
			return nil, err
		}
	}

	update := `UPDATE orders SET code = NULLIF($2, ''), payment_method = $3, recipient = $4, address = $5,
	               delivery_service = $6, is_paid = $7, payment_proof = $8, status = $9, is_completed = $10,
	               updated_at = $11
	           WHERE id = $1`
	_, err = tx.ExecContext(ctx, update,
		order.ID,
		order.Code,
		order.PaymentMethod,
		order.Recipient,
		order.Address,
		order.DeliveryService,
		order.IsPaid,
		order.PaymentProof,
		order.Status,
		order.IsCompleted,
		order.UpdatedAt)
	if postgres.IsUniqueViolation(err, orderCodeIndex) {
		return nil, domain.ErrDuplicateCode
	}
	if err != nil {
		return nil, domain.Persistence("update order", err)
	}

	if err := insertEvent(ctx, tx, order, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.Persistence("commit transition", err)
	}
	return order, nil
}

func (r *PostgresRepository) Retire(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE orders SET lifecycle = 'retired', retired_at = NOW(), updated_at = NOW()
	          WHERE id = $1 AND lifecycle = 'active'`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return domain.Persistence("retire order", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Persistence("retire order", err)
	}
	if n == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, order *domain.Order, at time.Time) error {
	payload, err := json.Marshal(domain.NewOrderEvent(order, at))
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	query := `INSERT INTO order_outbox (aggregate_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := tx.ExecContext(ctx, query, order.ID, domain.EventTypeFor(order.Status), payload, at); err != nil {
		return domain.Persistence("insert outbox event", err)
	}
	return nil
}

func (r *PostgresRepository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at, processed_at
	          FROM order_outbox WHERE processed_at IS NULL ORDER BY id LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, domain.Persistence("query outbox", err)
	}
	defer rows.Close()

	events := make([]*domain.OutboxEvent, 0)
	for rows.Next() {
		var e domain.OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt, &e.ProcessedAt); err != nil {
			return nil, domain.Persistence("scan outbox event", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("iterate outbox", err)
	}
	return events, nil
}

func (r *PostgresRepository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE order_outbox SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return domain.Persistence("mark outbox event", err)
	}
	return nil
}
