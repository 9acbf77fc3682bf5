package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/imrishuroy/song-checkout/internal/orders"
	"github.com/imrishuroy/song-checkout/internal/payments"
)

// VerifyResult reports whether a session is paid and, if so, the stored order.
type VerifyResult struct {
	Success bool
	Order   *orders.Order
	Status  string
}

// OrderPaidEvent is the payload of EventOrderPaid.
type OrderPaidEvent struct {
	OrderID     string            `json:"order_id"`
	SessionID   string            `json:"session_id"`
	AmountTotal int64             `json:"amount_total"`
	FormData    map[string]string `json:"form_data,omitempty"`
}

// VerifyPayment asks the provider for the session status and, when paid,
// marks the order paid with the provider's amount. Confirming an already
// paid order with the same session returns the stored order unchanged.
func (s *Service) VerifyPayment(ctx context.Context, sessionRef, orderID string) (*VerifyResult, error) {
	if sessionRef == "" || orderID == "" {
		return nil, ErrMissingParams
	}

	st, err := s.gateway.RetrieveSession(ctx, sessionRef)
	if err != nil {
		return nil, err
	}
	if !st.Paid() {
		return &VerifyResult{Success: false, Status: st.PaymentStatus}, nil
	}
	if ref := st.Metadata[payments.MetadataOrderID]; ref != "" && ref != orderID {
		return nil, fmt.Errorf("%w: session %s was opened for %s", ErrSessionMismatch, sessionRef, ref)
	}

	existing, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if existing == nil {
		return nil, s.reconciliationError(ctx, sessionRef, orderID)
	}
	if existing.IsPaid() && existing.PaymentSessionRef == sessionRef {
		return &VerifyResult{Success: true, Order: existing, Status: st.PaymentStatus}, nil
	}

	order, first, err := s.store.MarkPaid(ctx, orderID, orders.Payment{
		SessionRef:    sessionRef,
		AmountTotal:   st.AmountTotal,
		PaymentStatus: st.PaymentStatus,
	})
	switch {
	case errors.Is(err, orders.ErrNotFound):
		return nil, s.reconciliationError(ctx, sessionRef, orderID)
	case err != nil:
		return nil, fmt.Errorf("mark order paid: %w", err)
	}
	if !first {
		// a concurrent verification of the same session got there first
		return &VerifyResult{Success: true, Order: order, Status: st.PaymentStatus}, nil
	}

	s.count(ctx, MetricOrderPaid)
	s.logger.InfoContext(ctx, "order paid",
		"order_id", order.ID, "session_id", sessionRef, "amount_total", st.AmountTotal)
	s.publishPaid(ctx, order)

	return &VerifyResult{Success: true, Order: order, Status: st.PaymentStatus}, nil
}

func (s *Service) reconciliationError(ctx context.Context, sessionRef, orderID string) error {
	s.count(ctx, MetricReconciliationError)
	s.logger.ErrorContext(ctx, "paid session without order", "order_id", orderID, "session_id", sessionRef)
	return fmt.Errorf("%w: order %s, session %s", ErrReconciliation, orderID, sessionRef)
}

// publishPaid notifies fulfillment. The order is already paid, so a failed
// publish is logged and not returned.
func (s *Service) publishPaid(ctx context.Context, o *orders.Order) {
	if s.publisher == nil {
		return
	}
	var amount int64
	if o.AmountTotal != nil {
		amount = *o.AmountTotal
	}
	ev := OrderPaidEvent{
		OrderID:     o.ID,
		SessionID:   o.PaymentSessionRef,
		AmountTotal: amount,
		FormData:    o.FormData,
	}
	attrs := map[string]string{"order_id": o.ID}
	if err := s.publisher.Publish(ctx, EventOrderPaid, ev, attrs); err != nil {
		s.logger.WarnContext(ctx, "order.paid not published", "order_id", o.ID, "error", err)
	}
}
