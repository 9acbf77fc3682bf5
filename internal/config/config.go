// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Order store backends.
const (
	StoreDynamoDB = "dynamodb"
	StoreFile     = "file"
)

// Config holds every setting the API and worker read at startup.
type Config struct {
	Port      string
	Domain    string
	RunLocal  bool
	LogLevel  string
	StaticDir string

	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string
	PricingPolicy       string

	AdminUser     string
	AdminPassword string

	OrderStore       string
	OrdersTable      string
	OrdersFile       string
	IdempotencyTable string
	QueueURL         string
	MetricsNamespace string

	AWSRegion           string
	AWSEndpointOverride string
}

// Load reads the API settings through getenv (os.Getenv when nil) and
// validates required settings.
func Load(getenv func(string) string) (Config, error) {
	cfg := read(getenv)
	return cfg, cfg.validate(true)
}

// LoadWorker is Load without the admin credential requirement.
func LoadWorker(getenv func(string) string) (Config, error) {
	cfg := read(getenv)
	return cfg, cfg.validate(false)
}

func read(getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	return Config{
		Port:      get("PORT", "3000"),
		Domain:    get("DOMAIN", "http://localhost:3000"),
		RunLocal:  get("RUN_LOCAL", "") == "true",
		LogLevel:  get("LOG_LEVEL", "info"),
		StaticDir: get("STATIC_DIR", ""),

		StripeSecretKey:     get("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: get("STRIPE_WEBHOOK_SECRET", ""),
		Currency:            strings.ToLower(get("CURRENCY", "usd")),
		PricingPolicy:       get("PRICING_POLICY", "recipient-discount"),

		AdminUser:     get("ADMIN_USER", ""),
		AdminPassword: getenv("ADMIN_PASSWORD"),

		OrderStore:       strings.ToLower(get("ORDER_STORE", StoreDynamoDB)),
		OrdersTable:      get("ORDERS_TABLE", ""),
		OrdersFile:       get("ORDERS_FILE", "orders.json"),
		IdempotencyTable: get("IDEMPOTENCY_TABLE", ""),
		QueueURL:         get("ORDERS_QUEUE_URL", ""),
		MetricsNamespace: get("METRICS_NAMESPACE", ""),

		AWSRegion:           get("AWS_REGION", ""),
		AWSEndpointOverride: get("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

func (c Config) validate(admin bool) error {
	var errs []error
	if c.StripeSecretKey == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
	}
	if admin && (c.AdminUser == "" || c.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_USER and ADMIN_PASSWORD are required"))
	}
	switch c.OrderStore {
	case StoreDynamoDB:
		if c.OrdersTable == "" {
			errs = append(errs, errors.New("ORDERS_TABLE is required for the dynamodb store"))
		}
	case StoreFile:
	default:
		errs = append(errs, fmt.Errorf("ORDER_STORE must be %q or %q, got %q", StoreDynamoDB, StoreFile, c.OrderStore))
	}
	return errors.Join(errs...)
}

// UsesAWS reports whether any configured component needs AWS clients.
func (c Config) UsesAWS() bool {
	return c.OrderStore == StoreDynamoDB || c.IdempotencyTable != "" || c.QueueURL != "" || c.MetricsNamespace != ""
}
