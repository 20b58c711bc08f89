// Package app provides the top-level application lifecycle management for
// tradecore. It wires the shared dependencies, starts one orchestrator per
// configured symbol and runs the background loops and the HTTP server until
// the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradecore/internal/config"
	"github.com/alanyoungcy/tradecore/internal/executor"
	"github.com/alanyoungcy/tradecore/internal/publish"
	"github.com/alanyoungcy/tradecore/internal/server"
	"github.com/alanyoungcy/tradecore/internal/server/handler"
	"github.com/alanyoungcy/tradecore/internal/symbol"
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

// Run is the main entry point. It wires all dependencies, starts the
// orchestrators and background goroutines, and blocks until the context is
// cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.Any("symbols", a.cfg.Symbols),
		slog.String("venue", a.cfg.Venue.Tag),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, ctx := errgroup.WithContext(ctx)

	orchestrators := a.buildOrchestrators(deps)
	for _, o := range orchestrators {
		if err := o.Start(ctx); err != nil {
			return fmt.Errorf("app: start %s: %w", o.Symbol(), err)
		}
	}

	g.Go(func() error {
		return deps.Metrics.Run(ctx, a.cfg.Telemetry.FlushInterval.Duration)
	})

	if deps.Mirror != nil {
		for _, o := range orchestrators {
			deps.Mirror.Track(o.OrderBook())
		}
		g.Go(func() error { return deps.Mirror.Run(ctx) })
	}
	if deps.Alerts != nil {
		g.Go(func() error { return deps.Alerts.Run(ctx) })
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, orchestrators)
	}

	g.Go(func() error {
		<-ctx.Done()
		for _, o := range orchestrators {
			o.Stop()
		}
		return nil
	})

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) buildOrchestrators(deps *Dependencies) []*symbol.Orchestrator {
	out := make([]*symbol.Orchestrator, 0, len(a.cfg.Symbols))
	for _, sym := range a.cfg.Symbols {
		out = append(out, symbol.New(symbolConfig(a.cfg, sym), symbol.Deps{
			Dialer:    deps.Dialer,
			Fetcher:   deps.Fetcher,
			Metrics:   deps.Metrics,
			Observers: deps.Observers(),
			Logger:    a.logger,
		}))
	}
	return out
}

// startHTTPServer adds the HTTP server goroutine to g. The server is shut
// down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, orchestrators []*symbol.Orchestrator) {
	traders := make(handler.Traders, len(orchestrators))
	for _, o := range orchestrators {
		traders[o.Symbol()] = o
	}

	var ids handler.OrderIDClaimer
	if ttl := a.cfg.Execution.DedupTTL.Duration; ttl > 0 {
		dedup := executor.NewDedup(ttl)
		g.Go(func() error { return dedup.Run(ctx) })
		ids = dedup
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(traders, a.logger),
		Books:     handler.NewBookHandler(traders, a.logger),
		Orders:    handler.NewOrderHandler(traders, ids, a.logger),
		Positions: handler.NewPositionHandler(traders, a.logger),
	}
	if deps.SignalBus != nil {
		handlers.Executions = handler.NewExecutionHandler(deps.SignalBus, publish.ExecutionsStream, a.logger)
	}
	if deps.Registry != nil {
		handlers.Metrics = promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
