package idempotency

import "time"

// Status values for processed-event entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is the shape persisted in the idempotency DynamoDB table, one per
// payment notification (Stripe event id or SQS message id).
type Record struct {
	Key       string    `dynamodbav:"idempotency_key"` // PK
	Status    string    `dynamodbav:"status"`
	OrderID   string    `dynamodbav:"order_id,omitempty"`
	CreatedAt time.Time `dynamodbav:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
	ExpiresAt int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	// LeaseUntil is when an IN_PROGRESS claim lapses, in epoch seconds.
	LeaseUntil int64  `dynamodbav:"lease_until,omitempty"`
	Note       string `dynamodbav:"note,omitempty"`
}
