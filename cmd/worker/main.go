package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/song-checkout/internal/app"
	"github.com/imrishuroy/song-checkout/internal/config"
	"github.com/imrishuroy/song-checkout/internal/logging"
	"github.com/imrishuroy/song-checkout/internal/payments"
)

func main() {
	cfg, err := config.LoadWorker(nil)
	logger := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, logger, payments.NewStripeGateway(cfg.StripeSecretKey, nil), nil)
	if err != nil {
		logger.Error("failed to init service", "error", err)
		os.Exit(1)
	}
	p := NewProcessor(a.Service, a.Guard, logger)

	// If RUN_LOCAL=true, simulate a single SQS message for local testing.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"session_id":"cs_test_local","order_id":"ORD-local-1"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{MessageId: "local-" + time.Now().Format("20060102150405"), Body: body},
			},
		}
		resp, err := p.Handle(ctx, event)
		if err != nil || len(resp.BatchItemFailures) > 0 {
			logger.Error("local handler error", "error", err, "failures", len(resp.BatchItemFailures))
			os.Exit(1)
		}
		return
	}

	lambda.Start(p.Handle)
}
