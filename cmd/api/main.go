package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/emberline/checkout/internal/di"
	"github.com/emberline/checkout/internal/platform/config"
	"github.com/emberline/checkout/internal/platform/observability"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("checkout")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}

	handler := container.Router(
		observability.InjectLoggerMiddleware(logger),
		observability.TraceMiddleware(),
		observability.RequestLoggerMiddleware(),
		observability.RecoveryMiddleware(logger),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if reconciler := container.Services.Reconciler; reconciler != nil {
		go reconciler.Run(runCtx)
		logger.Info("reconciler started",
			zap.Duration("interval", cfg.Reconcile.Interval),
			zap.Duration("stuck_after", cfg.Reconcile.StuckAfter),
		)
	}

	go guardCleanupLoop(runCtx, container, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-runCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}

// guardCleanupLoop expires completed verify reservations so the in-memory
// guard does not grow without bound.
func guardCleanupLoop(ctx context.Context, container *di.Container, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := container.Guard.CleanupExpired(ctx, now.UTC(), 1000)
			if err != nil {
				logger.Warn("guard cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Debug("guard cleanup", zap.Int("removed", removed))
			}
		}
	}
}
