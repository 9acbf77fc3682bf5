package checkout

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/imrishuroy/song-checkout/internal/orders"
	"github.com/imrishuroy/song-checkout/internal/payments"
)

// CheckoutResult is returned to the browser to redirect to the hosted payment page.
type CheckoutResult struct {
	OrderID     string
	SessionID   string
	RedirectURL string
	Amount      int64
}

// CreateCheckout stores a pending_payment order for formData, prices it and
// opens a hosted payment session for it. The order is written before the
// provider is contacted; if the provider call fails the order stays pending.
func (s *Service) CreateCheckout(ctx context.Context, formData map[string]string) (*CheckoutResult, error) {
	now := s.nowFunc().UTC()
	order := orders.Order{
		ID:        orders.NewID(now),
		Status:    orders.StatusPendingPayment,
		CreatedAt: now,
		FormData:  orders.FormData(formData),
	}
	if err := s.store.Create(ctx, order); err != nil {
		s.count(ctx, MetricCheckoutFailed)
		return nil, fmt.Errorf("save order: %w", err)
	}

	amount := s.policy.Price(formData)
	session, err := s.gateway.CreateSession(ctx, s.sessionRequest(order, amount))
	if err != nil {
		s.count(ctx, MetricCheckoutFailed)
		s.logger.ErrorContext(ctx, "checkout session failed, order left pending",
			"order_id", order.ID, "error", err)
		return nil, err
	}

	s.count(ctx, MetricCheckoutCreated)
	s.logger.InfoContext(ctx, "checkout session created",
		"order_id", order.ID, "session_id", session.ID, "amount", amount, "policy", s.policy.Name)

	return &CheckoutResult{
		OrderID:     order.ID,
		SessionID:   session.ID,
		RedirectURL: session.URL,
		Amount:      amount,
	}, nil
}

func (s *Service) sessionRequest(o orders.Order, amount int64) payments.SessionRequest {
	fd := o.FormData
	name := fd["recipientName"]
	if name == "" {
		name = "Loved One"
	}

	var desc []string
	if g := fd["genre"]; g != "" {
		desc = append(desc, "Genre: "+g)
	}
	if v := fd["voiceGender"]; v != "" {
		desc = append(desc, "Voice: "+v)
	}

	metadata := map[string]string{payments.MetadataOrderID: o.ID}
	if n := fd["recipientName"]; n != "" {
		metadata["recipientName"] = n
	}

	domain := strings.TrimRight(s.domain, "/")
	return payments.SessionRequest{
		OrderID:       o.ID,
		ProductName:   "Custom Song for " + name,
		Description:   strings.Join(desc, ", "),
		Amount:        amount,
		Currency:      s.currency,
		CustomerEmail: fd["email"],
		// {CHECKOUT_SESSION_ID} is substituted by the provider
		SuccessURL: domain + "/success.html?session_id={CHECKOUT_SESSION_ID}&order_id=" + url.QueryEscape(o.ID),
		CancelURL:  domain + "/create.html",
		Metadata:   metadata,
	}
}
