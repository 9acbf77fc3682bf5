package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/song-checkout/internal/checkout"
	"github.com/imrishuroy/song-checkout/internal/orders"
	"github.com/imrishuroy/song-checkout/internal/validation"
)

func (h *handler) createCheckoutSession(c *gin.Context) {
	var req validation.CheckoutRequest
	if err := validation.BindAndValidate(c, &req, h.validator); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	res, err := h.svc.CreateCheckout(c.Request.Context(), req.FormData())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": res.SessionID, "url": res.RedirectURL})
}

func (h *handler) verifyPayment(c *gin.Context) {
	sessionID := c.Query("session_id")
	orderID := c.Query("order_id")
	if sessionID == "" || orderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing parameters"})
		return
	}

	res, err := h.svc.VerifyPayment(c.Request.Context(), sessionID, orderID)
	if err != nil {
		_ = c.Error(err)
		status, body := verifyErrorResponse(err)
		c.JSON(status, body)
		return
	}
	if !res.Success {
		c.JSON(http.StatusOK, gin.H{"success": false, "status": res.Status})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": res.Order})
}

func verifyErrorResponse(err error) (int, gin.H) {
	switch {
	case errors.Is(err, checkout.ErrMissingParams):
		return http.StatusBadRequest, gin.H{"error": "Missing parameters"}
	case errors.Is(err, checkout.ErrReconciliation):
		return http.StatusConflict, gin.H{"success": false, "error": "reconciliation_error", "status": "paid", "detail": err.Error()}
	case errors.Is(err, checkout.ErrSessionMismatch):
		return http.StatusConflict, gin.H{"success": false, "error": "session_order_mismatch", "detail": err.Error()}
	case errors.Is(err, orders.ErrStatusConflict):
		return http.StatusConflict, gin.H{"success": false, "error": "order_status_conflict", "detail": err.Error()}
	default:
		return http.StatusInternalServerError, gin.H{"error": err.Error()}
	}
}
