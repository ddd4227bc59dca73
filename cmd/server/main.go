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

	"verity/internal/platform/config"
	"verity/internal/platform/httpserver"
	"verity/internal/platform/logger"
)

// main loads configuration, wires the services and keeps the server
// lifecycle small. Business logic lives in internal service packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, log)
	if err != nil {
		log.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	srv := httpserver.New(cfg.Server, app.router, log)
	go func() {
		log.Info("starting verity", "addr", cfg.Server.Addr,
			"storage", cfg.Storage.Backend,
			"idempotency", cfg.Storage.IdempotencyBackend,
			"webhook_queue", cfg.Webhook.Queue,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	app.startBackground(ctx, cfg.Server.ExpirySweepPeriod)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	app.close(shutdownCtx)
}

// sweepExpired runs the expiry sweep on a ticker until ctx is cancelled.
func sweepExpired(ctx context.Context, expirer interface {
	ExpireStale(ctx context.Context, limit int) (int, error)
}, period time.Duration, log *slog.Logger) {
	if period <= 0 {
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := expirer.ExpireStale(ctx, 0)
			if err != nil {
				log.ErrorContext(ctx, "expiry sweep failed", "error", err)
				continue
			}
			if n > 0 {
				log.InfoContext(ctx, "expired stale cases", "count", n)
			}
		}
	}
}
