package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sarqyt/sarqyt-backend/api/routes"
	"github.com/sarqyt/sarqyt-backend/internal/fiscal"
	"github.com/sarqyt/sarqyt-backend/internal/orders"
	"github.com/sarqyt/sarqyt-backend/internal/payments"
	"github.com/sarqyt/sarqyt-backend/internal/payments/providers/click"
	"github.com/sarqyt/sarqyt-backend/internal/payments/providers/payme"
	"github.com/sarqyt/sarqyt-backend/pkg/config"
	"github.com/sarqyt/sarqyt-backend/pkg/db"
	"github.com/sarqyt/sarqyt-backend/pkg/env"
	"github.com/sarqyt/sarqyt-backend/pkg/logger"
	"github.com/sarqyt/sarqyt-backend/pkg/metrics"
	"github.com/sarqyt/sarqyt-backend/pkg/migrate"
	"github.com/sarqyt/sarqyt-backend/pkg/outbox"
	"github.com/sarqyt/sarqyt-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	ordersSvc, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient, outboxSvc, cfg.Orders)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	fiscalSender, err := fiscal.NewHTTPSender(cfg.Fiscal)
	if err != nil {
		logg.Error(context.Background(), "failed to create fiscal sender", err)
		os.Exit(1)
	}

	fiscalSvc, err := fiscal.NewService(fiscal.ServiceParams{
		Repo:    fiscal.NewRepository(dbClient.DB()),
		Tx:      dbClient,
		Outbox:  outboxSvc,
		Sender:  fiscalSender,
		Metrics: paymentMetrics,
		Logger:  logg,
		Config:  cfg.Fiscal,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create fiscal service", err)
		os.Exit(1)
	}

	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Repo:   payments.NewRepository(dbClient.DB()),
		Orders: ordersSvc,
		Tx:     dbClient,
		Outbox: outboxSvc,
		Fiscal: fiscalSvc,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	clickAdapter, err := click.NewAdapter(cfg.Click, paymentsSvc, logg)
	if err != nil {
		logg.Warn(logg.WithField(context.Background(), "reason", err.Error()), "click adapter not configured")
		clickAdapter = nil
	}
	paymeAdapter, err := payme.NewAdapter(cfg.Payme, paymentsSvc, logg)
	if err != nil {
		logg.Warn(logg.WithField(context.Background(), "reason", err.Error()), "payme adapter not configured")
		paymeAdapter = nil
	}

	handler := routes.NewRouter(routes.RouterParams{
		Config:         cfg,
		Logger:         logg,
		DBPinger:       dbClient,
		Redis:          redisClient,
		Orders:         ordersSvc,
		Payments:       paymentsSvc,
		ClickAdapter:   clickAdapter,
		PaymeAdapter:   paymeAdapter,
		PaymentMetrics: paymentMetrics,
		MetricsReg:     registry,
	})

	// Hosting platforms inject PORT; it wins over the configured port.
	addr := ":" + env.Get("PORT", cfg.App.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}
