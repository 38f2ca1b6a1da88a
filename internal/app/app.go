// Package app provides top-level application lifecycle management for the
// trade simulator: it wires the dependencies (book store, feed manager,
// estimator, caches, stores, server) and runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantera/tradesim/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
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

// Run wires all dependencies, starts the feed, hub, and HTTP server, and
// blocks until the context is cancelled or a component fails. On return it
// runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("symbol", a.cfg.Feed.Symbol),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := deps.Hub.Run(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("app: hub: %w", err)
		}
		return nil
	})

	if deps.SignalBus != nil {
		g.Go(func() error {
			if err := deps.Hub.BridgeBus(gctx, deps.SignalBus, tickChannel); err != nil && gctx.Err() == nil {
				return fmt.Errorf("app: bus bridge: %w", err)
			}
			return nil
		})
	}

	if a.cfg.Feed.AutoConnect {
		if err := deps.Manager.Connect(gctx); err != nil {
			return fmt.Errorf("app: connect feed: %w", err)
		}
	}
	g.Go(func() error {
		<-gctx.Done()
		return deps.Manager.Disconnect()
	})

	if deps.Server != nil {
		g.Go(func() error {
			return deps.Server.Start()
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return deps.Server.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
