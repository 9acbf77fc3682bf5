package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/song-checkout/internal/checkout"
	"github.com/imrishuroy/song-checkout/internal/idempotency"
	"github.com/imrishuroy/song-checkout/internal/orders"
	"github.com/imrishuroy/song-checkout/internal/payments"
)

// errPermanent marks messages that a redelivery cannot fix.
var errPermanent = errors.New("permanent failure")

// Verifier confirms a payment session for an order.
type Verifier interface {
	VerifyPayment(ctx context.Context, sessionRef, orderID string) (*checkout.VerifyResult, error)
}

// Processor turns SQS messages into payment verifications.
type Processor struct {
	verifier Verifier
	guard    idempotency.Guard
	logger   *slog.Logger
}

// NewProcessor returns a Processor. A nil guard runs every message.
func NewProcessor(v Verifier, guard idempotency.Guard, logger *slog.Logger) *Processor {
	if guard == nil {
		guard = idempotency.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{verifier: v, guard: guard, logger: logger}
}

// Handle processes a batch. Messages that failed transiently are reported
// as batch item failures so only they are redelivered. Permanent failures
// are logged and dropped.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	p.logger.InfoContext(ctx, "received sqs batch", "records", len(ev.Records))
	for _, rec := range ev.Records {
		err := p.processMessage(ctx, rec)
		switch {
		case err == nil:
		case errors.Is(err, errPermanent):
			p.logger.ErrorContext(ctx, "dropping message", "message_id", rec.MessageId, "error", err)
		default:
			p.logger.WarnContext(ctx, "message will be retried", "message_id", rec.MessageId, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	if attr, ok := rec.MessageAttributes["event_type"]; ok && attr.StringValue != nil && *attr.StringValue == checkout.EventOrderPaid {
		p.logger.DebugContext(ctx, "skipping own order.paid event", "message_id", rec.MessageId)
		return nil
	}

	key, msg, err := decode(rec)
	if err != nil {
		return err
	}
	if key == "" {
		return nil
	}

	ran, err := p.guard.Do(ctx, key, msg.OrderID, func(ctx context.Context) error {
		res, err := p.verifier.VerifyPayment(ctx, msg.SessionID, msg.OrderID)
		if err != nil {
			return err
		}
		p.logger.InfoContext(ctx, "reconciled session",
			"order_id", msg.OrderID, "session_id", msg.SessionID, "paid", res.Success, "payment_status", res.Status)
		return nil
	})
	if !ran && err == nil {
		p.logger.InfoContext(ctx, "duplicate delivery", "key", key, "order_id", msg.OrderID)
	}
	if isPermanent(err) {
		return fmt.Errorf("%w: %w", errPermanent, err)
	}
	return err
}

// decode accepts a ReconcileMessage or a Stripe event and returns the
// idempotency key with the session and order to verify. An empty key means
// the message carries nothing to verify.
func decode(rec events.SQSMessage) (string, ReconcileMessage, error) {
	var se stripeEvent
	if err := json.Unmarshal([]byte(rec.Body), &se); err != nil {
		return "", ReconcileMessage{}, fmt.Errorf("%w: invalid message body: %w", errPermanent, err)
	}
	if se.Detail.Type != "" {
		if !payments.IsCompletionEvent(se.Detail.Type) {
			return "", ReconcileMessage{}, nil
		}
		obj := se.Detail.Data.Object
		orderID := obj.Metadata[payments.MetadataOrderID]
		if orderID == "" {
			orderID = obj.ClientReferenceID
		}
		msg := ReconcileMessage{SessionID: obj.ID, OrderID: orderID}
		if msg.SessionID == "" || msg.OrderID == "" {
			return "", msg, fmt.Errorf("%w: event %s: %w", errPermanent, se.Detail.ID, checkout.ErrMissingParams)
		}
		return "evt:" + se.Detail.ID, msg, nil
	}

	var msg ReconcileMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return "", msg, fmt.Errorf("%w: invalid message body: %w", errPermanent, err)
	}
	if msg.SessionID == "" || msg.OrderID == "" {
		return "", msg, fmt.Errorf("%w: %w", errPermanent, checkout.ErrMissingParams)
	}
	return "msg:" + rec.MessageId, msg, nil
}

func isPermanent(err error) bool {
	return errors.Is(err, checkout.ErrReconciliation) ||
		errors.Is(err, checkout.ErrSessionMismatch) ||
		errors.Is(err, orders.ErrStatusConflict)
}
