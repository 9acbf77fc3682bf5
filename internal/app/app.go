// Package app wires configuration into the checkout service shared by the
// API and the worker.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/imrishuroy/song-checkout/internal/aws"
	"github.com/imrishuroy/song-checkout/internal/checkout"
	"github.com/imrishuroy/song-checkout/internal/config"
	"github.com/imrishuroy/song-checkout/internal/idempotency"
	"github.com/imrishuroy/song-checkout/internal/orders"
	"github.com/imrishuroy/song-checkout/internal/payments"
	"github.com/imrishuroy/song-checkout/internal/pricing"
)

// IdempotencyTTL is how long processed event ids are remembered. Stripe
// redelivers webhooks for up to three days.
const IdempotencyTTL = 72 * time.Hour

// App holds the wired service and its event guard.
type App struct {
	Service *checkout.Service
	Guard   idempotency.Guard
}

// Build constructs the service from cfg. AWS clients are created only when
// a configured component needs them; newClients is aws.NewAWSClients when nil.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, gateway payments.Gateway,
	newClients func(ctx context.Context, region, endpoint string) (*aws.AWSClients, error)) (*App, error) {
	policy, err := pricing.Named(cfg.PricingPolicy)
	if err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if newClients == nil {
		newClients = aws.NewAWSClients
	}

	var clients *aws.AWSClients
	if cfg.UsesAWS() {
		clients, err = newClients(ctx, cfg.AWSRegion, cfg.AWSEndpointOverride)
		if err != nil {
			return nil, fmt.Errorf("init aws clients: %w", err)
		}
	}

	var store orders.Store
	switch cfg.OrderStore {
	case config.StoreFile:
		store = orders.NewFileStore(cfg.OrdersFile)
	default:
		store = orders.NewDynamoStore(clients.DynamoDB, cfg.OrdersTable)
	}

	deps := checkout.Deps{
		Store:    store,
		Gateway:  gateway,
		Policy:   policy,
		Logger:   logger,
		Domain:   cfg.Domain,
		Currency: cfg.Currency,
	}
	if cfg.QueueURL != "" {
		deps.Publisher = aws.NewPublisher(clients.SQS, cfg.QueueURL)
	}
	if cfg.MetricsNamespace != "" {
		deps.Counter = aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace)
	}

	var guard idempotency.Guard = idempotency.Noop{}
	if cfg.IdempotencyTable != "" {
		guard = idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, IdempotencyTTL)
	}

	logger.Info("service configured",
		"order_store", cfg.OrderStore,
		"pricing_policy", policy.Name,
		"publisher", deps.Publisher != nil,
		"metrics", deps.Counter != nil,
		"idempotency", cfg.IdempotencyTable != "",
	)
	return &App{Service: checkout.New(deps), Guard: guard}, nil
}
