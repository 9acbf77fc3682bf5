// Package payments talks to the hosted checkout provider.
package payments

import (
	"context"
	"errors"
)

const (
	// PaymentStatusPaid is the provider status of a completed checkout.
	PaymentStatusPaid = "paid"
	// MetadataOrderID is the session metadata key holding the local order id.
	MetadataOrderID = "orderId"
)

// ErrIgnoredEvent is returned by webhook parsing for event types that do not
// confirm a payment.
var ErrIgnoredEvent = errors.New("event type not handled")

// SessionRequest describes one hosted checkout for a single line item.
type SessionRequest struct {
	OrderID       string
	ProductName   string
	Description   string
	Amount        int64 // minor units
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// Session is a created hosted checkout.
type Session struct {
	ID  string
	URL string
}

// SessionStatus is the provider's view of a checkout session.
type SessionStatus struct {
	ID            string
	PaymentStatus string
	AmountTotal   int64
	Metadata      map[string]string
}

// Paid reports whether the provider considers the session paid.
func (s *SessionStatus) Paid() bool { return s.PaymentStatus == PaymentStatusPaid }

// CompletedEvent is a verified provider notification that a checkout finished.
type CompletedEvent struct {
	EventID   string
	SessionID string
	OrderID   string
}

// Gateway creates and inspects hosted checkout sessions.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (*SessionStatus, error)
}
