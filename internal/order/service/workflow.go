package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fjod/go_cart/bookstore/internal/domain"
	"github.com/fjod/go_cart/bookstore/internal/identity"
	"github.com/fjod/go_cart/bookstore/internal/inventory/store"
	"github.com/fjod/go_cart/bookstore/internal/order/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxProofLength  = 2048
	maxCodeAttempts = 5
)

// CartStore is the part of the cart the workflow reads from and clears.
type CartStore interface {
	// CurrentLines must read the cart store itself, never a cache.
	CurrentLines(ctx context.Context, customerID string) (*domain.CartSummary, error)
	RemoveLines(ctx context.Context, customerID string, bookIDs []int64) error
}

// CodeGenerator returns a candidate order code; uniqueness is checked by the workflow.
type CodeGenerator func() string

func RandomCode() string {
	return "BK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

type Workflow struct {
	repo      repository.Repository
	carts     CartStore
	directory identity.Directory
	codes     CodeGenerator
	log       *zap.Logger
	now       func() time.Time
}

func NewWorkflow(repo repository.Repository, carts CartStore, directory identity.Directory, log *zap.Logger) *Workflow {
	return &Workflow{
		repo:      repo,
		carts:     carts,
		directory: directory,
		codes:     RandomCode,
		log:       log.Named("orders"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithCodeGenerator replaces the order code source.
func (w *Workflow) WithCodeGenerator(gen CodeGenerator) *Workflow {
	w.codes = gen
	return w
}

func requireCustomer(p identity.Principal) error {
	if p.UserID == "" {
		return domain.ErrUnauthorized
	}
	if !p.IsCustomer() {
		return fmt.Errorf("%w: customer role required", domain.ErrForbidden)
	}
	return nil
}

func requireAdmin(p identity.Principal) error {
	if p.UserID == "" {
		return domain.ErrUnauthorized
	}
	if !p.IsAdmin() {
		return domain.ErrAdminRoleRequired
	}
	return nil
}

// Create snapshots the caller's cart lines for the selected books into a new
// order. The cart itself is left as it is.
func (w *Workflow) Create(ctx context.Context, p identity.Principal, bookIDs []int64) (*domain.Order, error) {
	if err := requireCustomer(p); err != nil {
		return nil, err
	}
	if len(bookIDs) == 0 {
		v := domain.NewValidationError()
		v.Add("book_ids", "select at least one book")
		return nil, v
	}

	summary, err := w.carts.CurrentLines(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	lines := summary.Select(bookIDs)
	if len(lines) == 0 {
		return nil, domain.ErrEmptySelection
	}

	now := w.now()
	items := domain.SnapshotItems(lines)
	order := &domain.Order{
		ID:         uuid.New(),
		CustomerID: p.UserID,
		Items:      items,
		Total:      items.Total(),
		Status:     domain.OrderStatusCreated,
		Lifecycle:  domain.LifecycleActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := w.repo.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	w.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("customer_id", order.CustomerID),
		zap.Int("items", len(order.Items)),
		zap.Int64("total", order.Total))
	return order, nil
}

// Get returns an order to its owner or to an admin. Other callers get NotFound.
func (w *Workflow) Get(ctx context.Context, p identity.Principal, id uuid.UUID) (*domain.Order, error) {
	if p.UserID == "" {
		return nil, domain.ErrUnauthorized
	}
	order, err := w.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && !p.Owns(order.CustomerID) {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (w *Workflow) ListMine(ctx context.Context, p identity.Principal) ([]*domain.Order, error) {
	if err := requireCustomer(p); err != nil {
		return nil, err
	}
	return w.repo.ListOrdersByCustomer(ctx, p.UserID)
}

func validatePayment(d domain.PaymentDetails) error {
	v := domain.NewValidationError()
	if strings.TrimSpace(d.PaymentMethod) == "" {
		v.Add("payment_method", "is required")
	}
	if strings.TrimSpace(d.Address) == "" {
		v.Add("address", "is required")
	}
	if strings.TrimSpace(d.DeliveryService) == "" {
		v.Add("delivery_service", "is required")
	}
	return v.OrNil()
}

// SubmitPayment records the payment details and assigns a unique order code.
// The total fixed at creation is not touched.
func (w *Workflow) SubmitPayment(ctx context.Context, p identity.Principal, id uuid.UUID, details domain.PaymentDetails) (*domain.Order, error) {
	if err := requireCustomer(p); err != nil {
		return nil, err
	}
	if err := validatePayment(details); err != nil {
		return nil, err
	}
	if _, err := w.Get(ctx, p, id); err != nil {
		return nil, err
	}

	recipient := strings.TrimSpace(details.Recipient)
	if recipient == "" {
		recipient = w.defaultRecipient(ctx, p.UserID)
	}

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code := w.codes()
		taken, err := w.repo.OrderCodeExists(ctx, code)
		if err != nil {
			return nil, err
		}
		if taken {
			continue
		}

		order, err := w.repo.Transition(ctx, id, domain.OrderStatusCreated, domain.OrderStatusPaymentSubmitted,
			func(_ context.Context, o *domain.Order, _ store.Ledger) error {
				o.Code = code
				o.PaymentMethod = strings.TrimSpace(details.PaymentMethod)
				o.Address = strings.TrimSpace(details.Address)
				o.DeliveryService = strings.TrimSpace(details.DeliveryService)
				o.Recipient = recipient
				return nil
			})
		if errors.Is(err, domain.ErrDuplicateCode) {
			// lost a race for the code between the check and the write
			continue
		}
		if err != nil {
			return nil, err
		}

		w.log.Info("payment submitted", zap.String("order_id", id.String()), zap.String("code", code))
		return order, nil
	}

	return nil, domain.Persistence("assign order code", fmt.Errorf("no free code after %d attempts", maxCodeAttempts))
}

func (w *Workflow) defaultRecipient(ctx context.Context, customerID string) string {
	customer, err := w.directory.GetCustomer(ctx, customerID)
	if err != nil {
		w.log.Warn("customer lookup failed, using id as recipient", zap.String("customer_id", customerID), zap.Error(err))
		return customerID
	}
	return customer.Name
}

// VerifyPayment deducts stock for every snapshot line and marks the order paid,
// all or nothing. Fulfilled cart lines are cleared after the order is stored.
func (w *Workflow) VerifyPayment(ctx context.Context, p identity.Principal, id uuid.UUID, proof string) (*domain.Order, error) {
	if p.UserID == "" {
		return nil, domain.ErrUnauthorized
	}
	proof = strings.TrimSpace(proof)
	v := domain.NewValidationError()
	if proof == "" {
		v.Add("payment_proof", "is required")
	} else if utf8.RuneCountInString(proof) > maxProofLength {
		v.Add("payment_proof", fmt.Sprintf("must be at most %d characters", maxProofLength))
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}
	if _, err := w.Get(ctx, p, id); err != nil {
		return nil, err
	}

	order, err := w.repo.Transition(ctx, id, domain.OrderStatusPaymentSubmitted, domain.OrderStatusPaymentVerified,
		func(ctx context.Context, o *domain.Order, ledger store.Ledger) error {
			if err := w.deductStock(ctx, ledger, o); err != nil {
				return err
			}
			o.PaymentProof = proof
			o.IsPaid = true
			return nil
		})
	if err != nil {
		return nil, err
	}

	w.log.Info("payment verified", zap.String("order_id", id.String()), zap.String("verified_by", p.UserID))

	if err := w.carts.RemoveLines(ctx, order.CustomerID, order.Items.BookIDs()); err != nil {
		// the cart cleanup consumer retries from the payment_verified event
		w.log.Error("failed to clear fulfilled cart lines",
			zap.String("order_id", id.String()),
			zap.String("customer_id", order.CustomerID),
			zap.Error(err))
	}
	return order, nil
}

// deductStock decrements every line and gives back what it already took when
// one line fails. Lines are taken in book id order so concurrent verifications
// lock inventory rows in the same order.
func (w *Workflow) deductStock(ctx context.Context, ledger store.Ledger, o *domain.Order) error {
	items := slices.Clone(o.Items)
	slices.SortFunc(items, func(a, b domain.OrderItem) int { return cmp.Compare(a.BookID, b.BookID) })

	for i, item := range items {
		err := ledger.Decrement(ctx, item.BookID, item.Quantity)
		if err == nil {
			continue
		}

		for _, done := range items[:i] {
			if cerr := ledger.Increment(ctx, done.BookID, done.Quantity); cerr != nil {
				w.log.Error("stock compensation failed",
					zap.String("order_id", o.ID.String()),
					zap.Int64("book_id", done.BookID),
					zap.Int32("quantity", done.Quantity),
					zap.Error(cerr))
			}
		}
		return fmt.Errorf("book %d: %w", item.BookID, err)
	}
	return nil
}

// Complete closes a verified order. Completing twice fails with an invalid transition.
func (w *Workflow) Complete(ctx context.Context, p identity.Principal, id uuid.UUID) (*domain.Order, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}

	order, err := w.repo.Transition(ctx, id, domain.OrderStatusPaymentVerified, domain.OrderStatusCompleted,
		func(_ context.Context, o *domain.Order, _ store.Ledger) error {
			o.IsCompleted = true
			return nil
		})
	if err != nil {
		return nil, err
	}

	w.log.Info("order completed", zap.String("order_id", id.String()), zap.String("completed_by", p.UserID))
	return order, nil
}

// Retire hides an order from every other operation.
func (w *Workflow) Retire(ctx context.Context, p identity.Principal, id uuid.UUID) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	if err := w.repo.Retire(ctx, id); err != nil {
		return err
	}
	w.log.Info("order retired", zap.String("order_id", id.String()), zap.String("retired_by", p.UserID))
	return nil
}
