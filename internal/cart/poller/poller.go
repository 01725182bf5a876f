package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/go_cart/bookstore/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const eventTypeHeader = "event_type"

const (
	minBackoff = 200 * time.Millisecond
	maxBackoff = 10 * time.Second
)

// LineRemover clears fulfilled cart lines.
type LineRemover interface {
	RemoveLines(ctx context.Context, customerID string, bookIDs []int64) error
}

// MessageReader fetches without committing; offsets move only through CommitMessages.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Poller consumes order events and removes the cart lines of verified orders.
// The workflow already clears them after commit; the poller catches the cases
// where that call failed. A message is committed once its lines are gone or it
// turns out to need no work, so a failed removal is retried.
type Poller struct {
	remover    LineRemover
	reader     MessageReader
	log        *zap.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewPoller(remover LineRemover, cfg Config, log *zap.Logger) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return newPoller(remover, reader, log)
}

func newPoller(remover LineRemover, reader MessageReader, log *zap.Logger) *Poller {
	return &Poller{
		remover:    remover,
		reader:     reader,
		log:        log.Named("cart-poller"),
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
	}
}

func (p *Poller) Run(ctx context.Context) {
	backoff := p.minBackoff
	for ctx.Err() == nil {
		err := p.consumeOne(ctx)
		if err == nil {
			backoff = p.minBackoff
			continue
		}
		if ctx.Err() != nil {
			return
		}

		p.log.Warn("error consuming message", zap.Error(err), zap.Duration("backoff", backoff))
		if !sleep(ctx, backoff) {
			return
		}
		backoff = p.next(backoff)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Warn("error closing reader", zap.Error(err))
	}
}

func (p *Poller) consumeOne(ctx context.Context) error {
	m, err := p.reader.FetchMessage(ctx)
	if err != nil {
		return fmt.Errorf("fetch message: %w", err)
	}

	backoff := p.minBackoff
	for {
		err := p.handle(ctx, m)
		if err == nil {
			break
		}
		p.log.Error("failed to remove cart lines, will retry",
			zap.Int64("offset", m.Offset),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if !sleep(ctx, backoff) {
			return ctx.Err()
		}
		backoff = p.next(backoff)
	}

	if err := p.reader.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("commit offset %d: %w", m.Offset, err)
	}
	return nil
}

// handle returns an error only when the message should be tried again.
// Messages that can never succeed are logged and skipped.
func (p *Poller) handle(ctx context.Context, m kafka.Message) error {
	if eventType(m) != domain.EventOrderPaymentVerified {
		return nil
	}

	var event domain.OrderEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		p.log.Warn("error parsing message", zap.Error(err), zap.Int64("offset", m.Offset))
		return nil
	}
	if event.CustomerID == "" {
		p.log.Warn("missing customer_id", zap.String("order_id", event.OrderID))
		return nil
	}

	if err := p.remover.RemoveLines(ctx, event.CustomerID, event.Items.BookIDs()); err != nil {
		return fmt.Errorf("order %s: %w", event.OrderID, err)
	}
	return nil
}

func (p *Poller) next(backoff time.Duration) time.Duration {
	return min(backoff*2, p.maxBackoff)
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// eventType prefers the header and falls back to the status in the payload.
func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == eventTypeHeader {
			return string(h.Value)
		}
	}

	var event struct {
		Status domain.OrderStatus `json:"status"`
	}
	if err := json.Unmarshal(m.Value, &event); err != nil || !event.Status.IsValid() {
		return ""
	}
	return domain.EventTypeFor(event.Status)
}
