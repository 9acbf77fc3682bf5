package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/song-checkout/internal/app"
	"github.com/imrishuroy/song-checkout/internal/config"
	"github.com/imrishuroy/song-checkout/internal/handlers"
	"github.com/imrishuroy/song-checkout/internal/logging"
	"github.com/imrishuroy/song-checkout/internal/payments"
)

func setupRouter(logger *slog.Logger, cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(logger), handlers.CORS())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterRoutes(r, cfg)

	return r
}

func main() {
	cfg, err := config.Load(nil)
	logger := logging.New(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)
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

	gin.SetMode(gin.ReleaseMode)
	r := setupRouter(logger, handlers.HandlerConfig{
		Service:       a.Service,
		AdminUser:     cfg.AdminUser,
		AdminPassword: cfg.AdminPassword,
		WebhookSecret: cfg.StripeWebhookSecret,
		Guard:         a.Guard,
		StaticDir:     cfg.StaticDir,
		Logger:        logger,
	})

	if cfg.RunLocal {
		if err := serveLocal(logger, r, ":"+cfg.Port); err != nil {
			logger.Error("local server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

// serveLocal runs an HTTP server until SIGINT or SIGTERM, then drains
// in-flight requests.
func serveLocal(logger *slog.Logger, h http.Handler, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("running local server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
