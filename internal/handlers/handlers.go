package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/imrishuroy/song-checkout/internal/checkout"
	"github.com/imrishuroy/song-checkout/internal/idempotency"
	"github.com/imrishuroy/song-checkout/internal/orders"
	"github.com/imrishuroy/song-checkout/internal/validation"
)

// CheckoutService is what the HTTP layer needs from checkout.Service.
type CheckoutService interface {
	CreateCheckout(ctx context.Context, formData map[string]string) (*checkout.CheckoutResult, error)
	VerifyPayment(ctx context.Context, sessionRef, orderID string) (*checkout.VerifyResult, error)
	ListOrders(ctx context.Context) ([]orders.Order, error)
}

// HandlerConfig groups dependencies for the HTTP routes.
type HandlerConfig struct {
	Service       CheckoutService
	AdminUser     string
	AdminPassword string
	// WebhookSecret enables POST /webhooks/stripe when set.
	WebhookSecret string
	// Guard de-duplicates webhook deliveries; idempotency.Noop when nil.
	Guard     idempotency.Guard
	StaticDir string
	Logger    *slog.Logger
}

type handler struct {
	svc       CheckoutService
	validator *validatorv10.Validate
	guard     idempotency.Guard
	secret    string
	logger    *slog.Logger
}

// RegisterRoutes registers the checkout, verification, admin and webhook routes.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	h := &handler{
		svc:       cfg.Service,
		validator: validation.New(),
		guard:     cfg.Guard,
		secret:    cfg.WebhookSecret,
		logger:    cfg.Logger,
	}
	if h.guard == nil {
		h.guard = idempotency.Noop{}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	r.POST("/create-checkout-session", h.createCheckoutSession)
	r.GET("/verify-payment", h.verifyPayment)

	admin := r.Group("/api/admin", BasicAuth(cfg.AdminUser, cfg.AdminPassword, "Admin"))
	admin.GET("/orders", h.listOrders)

	if cfg.WebhookSecret != "" {
		r.POST("/webhooks/stripe", h.stripeWebhook)
	}
	if cfg.StaticDir != "" {
		RegisterStatic(r, cfg.StaticDir)
	}
}

// CORS allows any origin, matching the public marketing site.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
