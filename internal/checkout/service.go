// Package checkout creates orders with hosted payment sessions and confirms
// them once the payment provider reports them paid.
package checkout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/imrishuroy/song-checkout/internal/orders"
	"github.com/imrishuroy/song-checkout/internal/payments"
	"github.com/imrishuroy/song-checkout/internal/pricing"
)

var (
	// ErrMissingParams means a session id or order id was not supplied.
	ErrMissingParams = errors.New("missing parameters")
	// ErrReconciliation means the provider reports a paid session that has no local order.
	ErrReconciliation = errors.New("paid session has no matching order")
	// ErrSessionMismatch means the session was created for a different order.
	ErrSessionMismatch = errors.New("session does not belong to order")
)

// Metric names.
const (
	MetricCheckoutCreated     = "CheckoutCreated"
	MetricCheckoutFailed      = "CheckoutFailed"
	MetricOrderPaid           = "OrderPaid"
	MetricReconciliationError = "ReconciliationError"
)

// EventOrderPaid is published once per order when it first becomes paid.
const EventOrderPaid = "order.paid"

// Publisher sends domain events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}, attributes map[string]string) error
}

// Counter records one occurrence of a named metric.
type Counter interface {
	Count(ctx context.Context, name string) error
}

// Deps groups the collaborators of a Service. Publisher, Counter and Logger are optional.
type Deps struct {
	Store     orders.Store
	Gateway   payments.Gateway
	Policy    pricing.Policy
	Publisher Publisher
	Counter   Counter
	Logger    *slog.Logger
	Domain    string // base URL for success and cancel redirects
	Currency  string
}

// Service implements checkout creation, payment verification and the admin listing.
type Service struct {
	store     orders.Store
	gateway   payments.Gateway
	policy    pricing.Policy
	publisher Publisher
	counter   Counter
	logger    *slog.Logger
	domain    string
	currency  string
	nowFunc   func() time.Time
}

// New returns a Service. Store and Gateway are required.
func New(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	currency := d.Currency
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		store:     d.Store,
		gateway:   d.Gateway,
		policy:    d.Policy,
		publisher: d.Publisher,
		counter:   d.Counter,
		logger:    logger,
		domain:    d.Domain,
		currency:  currency,
		nowFunc:   time.Now,
	}
}

// ListOrders returns every order, newest first.
func (s *Service) ListOrders(ctx context.Context) ([]orders.Order, error) {
	return s.store.List(ctx)
}

func (s *Service) count(ctx context.Context, name string) {
	if s.counter == nil {
		return
	}
	if err := s.counter.Count(ctx, name); err != nil {
		s.logger.WarnContext(ctx, "metric not recorded", "metric", name, "error", err)
	}
}
