package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/alanyoungcy/tradecore/internal/cache/redis"
	"github.com/alanyoungcy/tradecore/internal/config"
	"github.com/alanyoungcy/tradecore/internal/domain"
	"github.com/alanyoungcy/tradecore/internal/feed"
	"github.com/alanyoungcy/tradecore/internal/notify"
	"github.com/alanyoungcy/tradecore/internal/platform/binance"
	"github.com/alanyoungcy/tradecore/internal/publish"
	"github.com/alanyoungcy/tradecore/internal/retry"
	"github.com/alanyoungcy/tradecore/internal/symbol"
	"github.com/alanyoungcy/tradecore/internal/telemetry"
)

// Dependencies bundles the collaborators shared by every symbol. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Venue
	Dialer  domain.StreamDialer
	Fetcher domain.SnapshotFetcher

	// Telemetry
	Metrics  *telemetry.Aggregator
	Registry *prometheus.Registry // nil when Prometheus is disabled

	// Redis (nil when disabled)
	BookCache domain.OrderbookCache
	SignalBus domain.SignalBus
	Mirror    *publish.Mirror

	// Notifications (Alerts is nil when no sender is configured)
	Notifier *notify.Notifier
	Alerts   *notify.Alerts
}

// Observers returns the optional observers every orchestrator reports to.
func (d *Dependencies) Observers() []symbol.Observer {
	var out []symbol.Observer
	if d.Mirror != nil {
		out = append(out, d.Mirror)
	}
	if d.Alerts != nil {
		out = append(out, d.Alerts)
	}
	return out
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Dialer:  binance.NewWSDialer(cfg.Venue.WSURL, cfg.Venue.StreamSuffix, logger),
		Fetcher: binance.NewRestClient(cfg.Venue.RestURL, cfg.Venue.DepthLimit),
	}

	// --- Telemetry (log publisher when Prometheus is off) ---
	var publishers []telemetry.Publisher
	if cfg.Telemetry.Prometheus {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		prom, err := telemetry.NewPrometheusPublisher(reg, cfg.Telemetry.Namespace)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: prometheus: %w", err)
		}
		publishers = append(publishers, prom)
		deps.Registry = reg
	}
	deps.Metrics = telemetry.NewAggregator(logger, publishers...)

	// --- Redis (optional mirror) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.BookCache = redis.NewOrderbookCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.Mirror = publish.NewMirror(deps.BookCache, deps.SignalBus, publish.Options{
			QueueSize:        cfg.Redis.QueueSize,
			Depth:            cfg.Redis.MirrorDepth,
			SnapshotInterval: cfg.Redis.MirrorEvery.Duration,
		}, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			"",
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	if deps.Notifier.Enabled() {
		deps.Alerts = notify.NewAlerts(deps.Notifier, 64, logger)
	}

	return deps, cleanup, nil
}

// symbolConfig maps the shared configuration onto one orchestrator.
func symbolConfig(cfg *config.Config, sym string) symbol.Config {
	return symbol.Config{
		Symbol:            sym,
		MaxPosition:       cfg.Risk.MaxPositionDecimal(),
		ExecutionEndpoint: cfg.Execution.Endpoint,
		MaxLevels:         cfg.Execution.MaxLevels,
		Feed: feed.Options{
			Venue:      cfg.Venue.Tag,
			BufferSize: cfg.Venue.BufferSize,
		},
		Reconnect: retry.Policy{
			MaxAttempts:     cfg.Reconnect.MaxAttempts,
			InitialInterval: cfg.Reconnect.InitialInterval.Duration,
			MaxInterval:     cfg.Reconnect.MaxInterval.Duration,
			Multiplier:      cfg.Reconnect.Multiplier,
		},
	}
}
