package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/bookstore/internal/cart/cache"
	"github.com/fjod/go_cart/bookstore/internal/cart/repository"
	"github.com/fjod/go_cart/bookstore/internal/cart/service"
	"github.com/fjod/go_cart/bookstore/internal/domain"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap"
	"gotest.tools/v3/assert"
)

type removal struct {
	customerID string
	bookIDs    []int64
}

type mockRemover struct {
	mu    sync.Mutex
	calls []removal
	err   error
	fails int // calls that fail before the remover recovers
}

func (m *mockRemover) RemoveLines(_ context.Context, customerID string, bookIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, removal{customerID, bookIDs})
	if m.fails > 0 {
		m.fails--
		return errors.New("mongo down")
	}
	return m.err
}

// chanReader hands out queued messages and blocks until ctx ends when empty.
// With fetchErr set every fetch fails immediately.
type chanReader struct {
	msgs     chan kafkaGo.Message
	fetchErr error

	mu        sync.Mutex
	fetches   int
	committed []kafkaGo.Message
	closed    bool
}

func (r *chanReader) FetchMessage(ctx context.Context) (kafkaGo.Message, error) {
	r.mu.Lock()
	r.fetches++
	r.mu.Unlock()
	if r.fetchErr != nil {
		return kafkaGo.Message{}, r.fetchErr
	}

	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafkaGo.Message{}, ctx.Err()
	}
}

func (r *chanReader) CommitMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *chanReader) Close() error {
	r.closed = true
	return nil
}

func (r *chanReader) fetchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches
}

func fastPoller(remover LineRemover, reader MessageReader) *Poller {
	p := newPoller(remover, reader, zap.NewNop())
	p.minBackoff = time.Millisecond
	p.maxBackoff = 5 * time.Millisecond
	return p
}

func orderMessage(t *testing.T, eventType string, status domain.OrderStatus, withHeader bool) kafkaGo.Message {
	payload, err := json.Marshal(domain.OrderEvent{
		OrderID:    "o-1",
		CustomerID: "c-1",
		Status:     status.String(),
		Items:      domain.OrderItems{{BookID: 1, Quantity: 3, Subtotal: 360000}, {BookID: 2, Quantity: 1, Subtotal: 50000}},
		Total:      410000,
	})
	require.NoError(t, err)

	m := kafkaGo.Message{Key: []byte("o-1"), Value: payload}
	if withHeader {
		m.Headers = []kafkaGo.Header{{Key: eventTypeHeader, Value: []byte(eventType)}}
	}
	return m
}

func TestConsumeOne_PaymentVerifiedRemovesLines(t *testing.T) {
	remover := &mockRemover{}
	reader := &chanReader{msgs: make(chan kafkaGo.Message, 1)}
	p := fastPoller(remover, reader)

	reader.msgs <- orderMessage(t, domain.EventOrderPaymentVerified, domain.OrderStatusPaymentVerified, true)
	assert.NilError(t, p.consumeOne(context.Background()))

	assert.Equal(t, len(remover.calls), 1)
	assert.Equal(t, remover.calls[0].customerID, "c-1")
	assert.DeepEqual(t, remover.calls[0].bookIDs, []int64{1, 2})
	assert.Equal(t, len(reader.committed), 1)
}

func TestConsumeOne_FallsBackToPayloadStatus(t *testing.T) {
	remover := &mockRemover{}
	reader := &chanReader{msgs: make(chan kafkaGo.Message, 1)}
	p := fastPoller(remover, reader)

	reader.msgs <- orderMessage(t, "", domain.OrderStatusPaymentVerified, false)
	assert.NilError(t, p.consumeOne(context.Background()))

	assert.Equal(t, len(remover.calls), 1)
}

func TestConsumeOne_SkipsAndCommitsOtherEvents(t *testing.T) {
	remover := &mockRemover{}
	reader := &chanReader{msgs: make(chan kafkaGo.Message, 3)}
	p := fastPoller(remover, reader)

	reader.msgs <- orderMessage(t, domain.EventOrderCreated, domain.OrderStatusCreated, true)
	reader.msgs <- orderMessage(t, domain.EventOrderCompleted, domain.OrderStatusCompleted, true)
	reader.msgs <- kafkaGo.Message{Value: []byte("not json")}
	for i := 0; i < 3; i++ {
		assert.NilError(t, p.consumeOne(context.Background()))
	}

	assert.Equal(t, len(remover.calls), 0)
	assert.Equal(t, len(reader.committed), 3)
}

func TestConsumeOne_RetriesFailedRemovalBeforeCommit(t *testing.T) {
	remover := &mockRemover{fails: 2}
	reader := &chanReader{msgs: make(chan kafkaGo.Message, 1)}
	p := fastPoller(remover, reader)

	msg := orderMessage(t, domain.EventOrderPaymentVerified, domain.OrderStatusPaymentVerified, true)
	msg.Offset = 7
	reader.msgs <- msg
	assert.NilError(t, p.consumeOne(context.Background()))

	assert.Equal(t, len(remover.calls), 3)
	assert.Equal(t, reader.fetchCount(), 1)
	assert.Equal(t, len(reader.committed), 1)
	assert.Equal(t, reader.committed[0].Offset, int64(7))
}

func TestConsumeOne_UnremovedMessageStaysUncommitted(t *testing.T) {
	remover := &mockRemover{err: errors.New("mongo down")}
	reader := &chanReader{msgs: make(chan kafkaGo.Message, 1)}
	p := fastPoller(remover, reader)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	reader.msgs <- orderMessage(t, domain.EventOrderPaymentVerified, domain.OrderStatusPaymentVerified, true)
	err := p.consumeOne(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Assert(t, len(remover.calls) > 1)
	assert.Equal(t, len(reader.committed), 0)
}

func TestRun_BacksOffOnFetchErrors(t *testing.T) {
	reader := &chanReader{fetchErr: errors.New("broker unavailable")}
	p := newPoller(&mockRemover{}, reader, zap.NewNop())
	p.minBackoff = 20 * time.Millisecond
	p.maxBackoff = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	fetches := reader.fetchCount()
	assert.Assert(t, fetches >= 2, "fetches: %d", fetches)
	assert.Assert(t, fetches <= 10, "fetches: %d", fetches)
}

func TestRun_StopsOnCancel(t *testing.T) {
	reader := &chanReader{msgs: make(chan kafkaGo.Message)}
	p := newPoller(&mockRemover{}, reader, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancel")
	}

	p.Close()
	assert.Assert(t, reader.closed)
}

func setupKafka(t *testing.T) string {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	})

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")
	return brokers[0]
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

type fixedCatalog struct{}

func (fixedCatalog) GetBook(_ context.Context, id int64) (*domain.Book, error) {
	return &domain.Book{ID: id, Price: 120000}, nil
}

func TestPoller_ClearsCartFromKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka integration test in short mode")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := setupKafka(t)
	topic := "order-events"
	createTopic(t, broker, topic)

	carts := service.NewCartService(repository.NewMemoryRepository(), cache.Noop{}, fixedCatalog{}, zap.NewNop())
	_, err := carts.AddOrUpdateLine(ctx, "c-1", 1, 3)
	require.NoError(t, err)
	_, err = carts.AddOrUpdateLine(ctx, "c-1", 5, 1)
	require.NoError(t, err)

	p := NewPoller(carts, Config{Brokers: []string{broker}, Topic: topic, GroupID: "cart-cleanup-test"}, zap.NewNop())
	defer p.Close()

	w := &kafkaGo.Writer{
		Addr:                   kafkaGo.TCP(broker),
		Topic:                  topic,
		Balancer:               &kafkaGo.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	require.NoError(t, w.WriteMessages(ctx, orderMessage(t, domain.EventOrderPaymentVerified, domain.OrderStatusPaymentVerified, true)))
	w.Close()

	go p.Run(ctx)
	require.Eventually(t, func() bool {
		summary, err := carts.ListLines(ctx, "c-1")
		return err == nil && summary.Count == 1 && summary.Lines[0].BookID == 5
	}, 30*time.Second, 500*time.Millisecond)
}
