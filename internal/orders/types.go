package orders

import "time"

// Order statuses. pending_payment -> paid is the only defined transition.
const (
	StatusPendingPayment = "pending_payment"
	StatusPaid           = "paid"
	StatusFailed         = "failed"
	StatusCancelled      = "cancelled"
)

// FormData holds the whitelisted intake attributes captured at checkout.
type FormData map[string]string

// Order is one customer's song request and its payment lifecycle.
//
// PaymentSessionRef, AmountTotal, PaymentStatus and PaidAt are written once,
// by MarkPaid, and are empty while the order is pending_payment.
type Order struct {
	ID                string     `json:"id" dynamodbav:"order_id"` // PK
	Status            string     `json:"status" dynamodbav:"status"`
	CreatedAt         time.Time  `json:"createdAt" dynamodbav:"created_at"`
	FormData          FormData   `json:"formData" dynamodbav:"form_data,omitempty"`
	PaymentSessionRef string     `json:"paymentSessionRef,omitempty" dynamodbav:"stripe_session_id,omitempty"`
	AmountTotal       *int64     `json:"amountTotal,omitempty" dynamodbav:"amount_total,omitempty"`
	PaymentStatus     string     `json:"paymentStatus,omitempty" dynamodbav:"payment_status,omitempty"`
	PaidAt            *time.Time `json:"paidAt,omitempty" dynamodbav:"paid_at,omitempty"`
}

// Payment is the authoritative confirmation returned by the payment service.
type Payment struct {
	SessionRef    string
	AmountTotal   int64
	PaymentStatus string
}

// IsPaid reports whether the order has been confirmed paid.
func (o *Order) IsPaid() bool { return o.Status == StatusPaid }

// applyPayment moves a pending order to paid, or re-applies the same
// confirmation to an already paid one. first reports the former.
func (o *Order) applyPayment(p Payment, now time.Time) (first bool, err error) {
	switch {
	case o.Status == StatusPendingPayment:
		first = true
	case o.Status == StatusPaid && o.PaymentSessionRef == p.SessionRef:
	default:
		return false, ErrStatusConflict
	}
	amount := p.AmountTotal
	o.Status = StatusPaid
	o.PaymentSessionRef = p.SessionRef
	o.AmountTotal = &amount
	o.PaymentStatus = p.PaymentStatus
	if o.PaidAt == nil {
		o.PaidAt = &now
	}
	return first, nil
}
