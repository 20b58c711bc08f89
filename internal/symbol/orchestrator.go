// Package symbol runs one trading pipeline per instrument: depth feed, order
// book, simulated execution and risk gate, under a single worker goroutine.
package symbol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradecore/internal/book"
	"github.com/alanyoungcy/tradecore/internal/domain"
	"github.com/alanyoungcy/tradecore/internal/executor"
	"github.com/alanyoungcy/tradecore/internal/feed"
	"github.com/alanyoungcy/tradecore/internal/retry"
	"github.com/alanyoungcy/tradecore/internal/service"
	"github.com/alanyoungcy/tradecore/internal/telemetry"
)

// ErrStopped is returned by Start after Stop.
var ErrStopped = errors.New("symbol: orchestrator stopped")

// Config holds the per-symbol settings.
type Config struct {
	Symbol            string
	MaxPosition       decimal.Decimal
	ExecutionEndpoint string
	MaxLevels         int
	Feed              feed.Options
	Reconnect         retry.Policy
}

// Deps are the collaborators shared across orchestrators.
type Deps struct {
	Dialer    domain.StreamDialer
	Fetcher   domain.SnapshotFetcher
	Metrics   telemetry.Recorder
	Observers []Observer
	Logger    *slog.Logger
}

// Orchestrator owns the per-symbol components and their lifecycle.
type Orchestrator struct {
	cfg       Config
	book      *book.OrderBook
	feed      *feed.Synchronizer
	sim       *executor.Simulator
	risk      *service.RiskGate
	observers []Observer
	metrics   telemetry.Recorder
	logger    *slog.Logger

	dataCh chan struct{}

	// orderMu serializes order entry so a gated check and its fill are
	// applied before the next order is checked.
	orderMu sync.Mutex

	mu       sync.Mutex
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// New wires the components for cfg.Symbol. Fills flow to the risk gate first
// and then to the observers.
func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.ExecutionEndpoint == "" {
		cfg.ExecutionEndpoint = "sim"
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = telemetry.Discard
	}
	logger := deps.Logger.With(
		slog.String("component", "orchestrator"),
		slog.String("symbol", cfg.Symbol),
	)

	ob := book.New(cfg.Symbol)
	o := &Orchestrator{
		cfg:       cfg,
		book:      ob,
		feed:      feed.NewSynchronizer(ob, deps.Dialer, deps.Fetcher, cfg.Feed, deps.Logger),
		sim:       executor.NewSimulator(cfg.MaxLevels, metrics, deps.Logger.With(slog.String("symbol", cfg.Symbol))),
		risk:      service.NewRiskGate(cfg.MaxPosition, deps.Logger.With(slog.String("symbol", cfg.Symbol))),
		observers: deps.Observers,
		metrics:   metrics,
		logger:    logger,
		dataCh:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	o.sim.OnReport(func(r domain.ExecutionReport) {
		o.risk.OnFill(r)
		for _, obs := range o.observers {
			obs.OnExecutionReport(r)
		}
	})
	o.risk.OnReject(func(order domain.NewOrder) {
		o.metrics.Increment("orders.rejected", 1)
		for _, obs := range o.observers {
			obs.OnRiskReject(order)
		}
	})
	o.feed.OnUpdate(func(u domain.MarketDataUpdate) {
		o.notifyData()
		for _, obs := range o.observers {
			obs.OnMarketData(u)
		}
	})
	return o
}

// Symbol returns the instrument this orchestrator trades.
func (o *Orchestrator) Symbol() string { return o.cfg.Symbol }

// OrderBook returns the live book. Reads are safe while the feed writes.
func (o *Orchestrator) OrderBook() *book.OrderBook { return o.book }

// Snapshot copies up to depth levels per side of the live book.
func (o *Orchestrator) Snapshot(depth int) domain.BookSnapshot { return o.book.Snapshot(depth) }

// Position returns the signed filled position.
func (o *Orchestrator) Position() decimal.Decimal { return o.risk.Position(o.cfg.Symbol) }

// RiskGate exposes the gate for inspection.
func (o *Orchestrator) RiskGate() *service.RiskGate { return o.risk }

// OrderState returns the simulator's last state for orderID.
func (o *Orchestrator) OrderState(orderID string) (domain.OrderState, bool) {
	return o.sim.State(orderID)
}

// Running reports whether the worker goroutine is live.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.started {
		return false
	}
	select {
	case <-o.done:
		return false
	default:
		return true
	}
}

// StreamErr returns the error that ended the current feed session, if any.
func (o *Orchestrator) StreamErr() error { return o.feed.Err() }

// Start launches the worker. A second Start is a no-op; Start after Stop
// returns ErrStopped.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return ErrStopped
	}
	if o.started {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.started = true
	go o.run(runCtx)
	return nil
}

// Stop cancels the worker, waits for it, then stops the feed and disconnects
// the execution transport. Safe to call concurrently, repeatedly and before
// Start; every call returns after shutdown has completed.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		o.mu.Lock()
		o.stopped = true
		started := o.started
		cancel := o.cancel
		o.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if started {
			<-o.done
		}
		o.feed.Stop()
		o.sim.Disconnect()
		o.logger.Info("orchestrator stopped")
	})
}

// Join blocks until the worker exits. It returns at once if never started.
func (o *Orchestrator) Join() {
	o.mu.Lock()
	started := o.started
	o.mu.Unlock()
	if started {
		<-o.done
	}
}

// SendOrder submits order straight to the simulator. The risk gate is not
// consulted; positions still follow the resulting fill. Observers must not
// call back into order entry from OnExecutionReport.
func (o *Orchestrator) SendOrder(order domain.NewOrder) domain.ExecutionReport {
	if order.Symbol == "" {
		order.Symbol = o.cfg.Symbol
	}
	o.orderMu.Lock()
	defer o.orderMu.Unlock()
	return o.sim.Submit(order, o.book)
}

// SendOrderGated asks the risk gate first and only submits approved orders.
// The bool is false when the gate rejected the order. Approval and fill
// accounting happen under one order lock, so concurrent gated orders are
// checked against each other's fills.
func (o *Orchestrator) SendOrderGated(order domain.NewOrder) (domain.ExecutionReport, bool) {
	if order.Symbol == "" {
		order.Symbol = o.cfg.Symbol
	}
	o.orderMu.Lock()
	defer o.orderMu.Unlock()
	if !o.risk.Approve(order) {
		return domain.ExecutionReport{}, false
	}
	return o.sim.Submit(order, o.book), true
}

// CancelOrder cancels orderID in the simulator.
func (o *Orchestrator) CancelOrder(orderID string) domain.ExecutionReport {
	return o.sim.Cancel(orderID)
}

func (o *Orchestrator) notifyData() {
	select {
	case o.dataCh <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.done)
	o.logger.Info("starting symbol worker")

	var streamDone <-chan struct{}
	if err := o.connectFeed(ctx); err != nil {
		o.logger.Error("market data connect failed", slog.String("error", err.Error()))
		o.emitStreamTerminated(err)
	} else {
		streamDone = o.feed.Done()
	}
	o.sim.Connect(o.cfg.ExecutionEndpoint)

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("exiting symbol worker")
			return
		case <-o.dataCh:
			o.housekeeping()
		case <-streamDone:
			streamDone = nil
			err := o.feed.Err()
			if err == nil {
				continue
			}
			o.metrics.Increment("md.stream_terminated", 1)
			o.emitStreamTerminated(err)
			if !o.cfg.Reconnect.Enabled() {
				o.logger.Error("market data stream ended, reconnect disabled", slog.String("error", err.Error()))
				continue
			}
			if !o.backoffPause(ctx) {
				continue
			}
			if err := o.connectFeed(ctx); err != nil {
				o.logger.Error("market data reconnect gave up", slog.String("error", err.Error()))
				continue
			}
			o.metrics.Increment("md.reconnects", 1)
			streamDone = o.feed.Done()
		}
	}
}

func (o *Orchestrator) connectFeed(ctx context.Context) error {
	return retry.Do(ctx, o.cfg.Reconnect, o.logger, func(ctx context.Context) error {
		return o.feed.Connect(ctx)
	})
}

// backoffPause waits one initial interval before a reconnect so a feed that
// fails right after connecting does not spin.
func (o *Orchestrator) backoffPause(ctx context.Context) bool {
	d := o.cfg.Reconnect.InitialInterval
	if d <= 0 {
		d = 500 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (o *Orchestrator) housekeeping() {
	sym := o.cfg.Symbol
	o.metrics.Increment("md.wakeups", 1)
	o.metrics.Gauge(fmt.Sprintf("book.%s.bid_levels", sym), float64(o.book.Levels(domain.SideBid)))
	o.metrics.Gauge(fmt.Sprintf("book.%s.ask_levels", sym), float64(o.book.Levels(domain.SideAsk)))

	bid, errBid := o.book.Best(domain.SideBid)
	ask, errAsk := o.book.Best(domain.SideAsk)
	if errBid == nil && errAsk == nil {
		spread, _ := ask.Price.Sub(bid.Price).Float64()
		o.metrics.Gauge(fmt.Sprintf("book.%s.spread", sym), spread)
	}
}

func (o *Orchestrator) emitStreamTerminated(err error) {
	for _, obs := range o.observers {
		obs.OnStreamTerminated(o.cfg.Symbol, err)
	}
}
