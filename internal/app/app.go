// Package app provides top-level application lifecycle management. It wires
// together every component (store, cache, feed, venue watcher, executor,
// engine, notifications, ops API) and runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"tokensniper/internal/config"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, restores persisted positions, starts the
// engine, the migration watcher, and the ops API, and blocks until the
// context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
		slog.String("wallet", a.cfg.Wallet.Address),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	restored, err := deps.Store.Restore(ctx)
	if err != nil {
		return fmt.Errorf("app: restore positions: %w", err)
	}
	if restored > 0 {
		a.logger.InfoContext(ctx, "restored open positions", slog.Int("count", restored))
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Engine.Run(ctx)
	})

	g.Go(func() error {
		return deps.Watcher.Run(ctx)
	})

	if deps.Server != nil {
		g.Go(func() error {
			return deps.Server.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			return deps.Server.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("app: component failed: %w", err)
	}
	return nil
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
