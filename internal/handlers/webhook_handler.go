package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/song-checkout/internal/checkout"
	"github.com/imrishuroy/song-checkout/internal/orders"
	"github.com/imrishuroy/song-checkout/internal/payments"
)

// maxWebhookBody bounds the payload read before signature verification.
const maxWebhookBody = 64 << 10

// stripeWebhook confirms payments pushed by Stripe. Non-2xx responses make
// Stripe redeliver, so only failures a retry can fix return 500.
func (h *handler) stripeWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload_too_large"})
		return
	}

	ev, err := payments.ParseWebhook(payload, c.GetHeader("Stripe-Signature"), h.secret)
	switch {
	case errors.Is(err, payments.ErrIgnoredEvent):
		c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
		return
	case err != nil:
		h.logger.WarnContext(ctx, "rejected stripe webhook", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature"})
		return
	}
	if ev.OrderID == "" {
		h.logger.WarnContext(ctx, "completed session without order id", "event_id", ev.EventID, "session_id", ev.SessionID)
		c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
		return
	}

	ran, err := h.guard.Do(ctx, ev.EventID, ev.OrderID, func(ctx context.Context) error {
		_, err := h.svc.VerifyPayment(ctx, ev.SessionID, ev.OrderID)
		return err
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": !ran})
	case permanent(err):
		_ = c.Error(err)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// permanent reports verification failures that a redelivery cannot fix.
func permanent(err error) bool {
	return errors.Is(err, checkout.ErrReconciliation) ||
		errors.Is(err, checkout.ErrSessionMismatch) ||
		errors.Is(err, orders.ErrStatusConflict)
}
