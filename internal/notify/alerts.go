package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

type alert struct {
	event   string
	title   string
	message string
}

// Alerts turns orchestrator events into notifications. Callbacks only enqueue;
// Run performs delivery, so slow senders never stall the trading path. When
// the queue is full the alert is dropped and counted.
type Alerts struct {
	notifier *Notifier
	queue    chan alert
	dropped  atomic.Int64
	timeout  time.Duration
	logger   *slog.Logger
}

// NewAlerts creates an Alerts with the given queue capacity.
func NewAlerts(n *Notifier, queueSize int, logger *slog.Logger) *Alerts {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Alerts{
		notifier: n,
		queue:    make(chan alert, queueSize),
		timeout:  15 * time.Second,
		logger:   logger.With(slog.String("component", "alerts")),
	}
}

// Dropped returns how many alerts were discarded on a full queue.
func (a *Alerts) Dropped() int64 { return a.dropped.Load() }

// Run delivers queued alerts until ctx is cancelled.
func (a *Alerts) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case al := <-a.queue:
			sendCtx, cancel := context.WithTimeout(ctx, a.timeout)
			_ = a.notifier.Notify(sendCtx, al.event, al.title, al.message)
			cancel()
		}
	}
}

func (a *Alerts) enqueue(al alert) {
	if !a.notifier.Enabled() || !a.notifier.Allows(al.event) {
		return
	}
	select {
	case a.queue <- al:
	default:
		a.dropped.Add(1)
		a.logger.Warn("alert queue full, dropping", slog.String("event", al.event))
	}
}

// OnExecutionReport alerts on fills.
func (a *Alerts) OnExecutionReport(r domain.ExecutionReport) {
	if !r.IsFill {
		return
	}
	a.enqueue(alert{
		event: EventOrderFilled,
		title: "Order filled " + r.Symbol,
		message: fmt.Sprintf("%s %s %s @ %s (order %s)",
			r.Symbol, r.Side, r.ExecSize, r.ExecPrice, r.OrderID),
	})
}

// OnMarketData is a no-op.
func (a *Alerts) OnMarketData(domain.MarketDataUpdate) {}

// OnRiskReject alerts on every rejection.
func (a *Alerts) OnRiskReject(o domain.NewOrder) {
	a.enqueue(alert{
		event: EventRiskReject,
		title: "Risk reject " + o.Symbol,
		message: fmt.Sprintf("order %s %s %s @ %s would breach the position limit",
			o.OrderID, o.Side, o.Size, o.Price),
	})
}

// OnStreamTerminated alerts when a depth stream dies.
func (a *Alerts) OnStreamTerminated(symbol string, err error) {
	a.enqueue(alert{
		event:   EventStreamError,
		title:   "Market data down " + symbol,
		message: err.Error(),
	})
}
