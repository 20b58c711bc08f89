// Package executor simulates order execution against a local order book.
package executor

import (
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradecore/internal/domain"
	"github.com/alanyoungcy/tradecore/internal/telemetry"
)

// DefaultMaxLevels bounds how many opposing levels one order may consume.
const DefaultMaxLevels = 20

var fillEpsilon = decimal.New(1, -8)

// DepthReader is the read side of an order book the simulator walks.
type DepthReader interface {
	Depth(side domain.Side, n int) iter.Seq[domain.PriceLevel]
}

// ReportHandler receives every execution report. It is called with the
// simulator lock held and must not call back into the Simulator.
type ReportHandler func(domain.ExecutionReport)

// Simulator fills orders immediately against a DepthReader snapshot and emits
// exactly one report per Submit or Cancel. It never mutates the book.
type Simulator struct {
	mu        sync.Mutex
	states    map[string]domain.OrderState
	handlers  []ReportHandler
	connected bool
	endpoint  string
	maxLevels int

	metrics telemetry.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewSimulator creates a Simulator. maxLevels <= 0 selects DefaultMaxLevels;
// a nil recorder discards metrics.
func NewSimulator(maxLevels int, metrics telemetry.Recorder, logger *slog.Logger) *Simulator {
	if maxLevels <= 0 {
		maxLevels = DefaultMaxLevels
	}
	if metrics == nil {
		metrics = telemetry.Discard
	}
	return &Simulator{
		states:    make(map[string]domain.OrderState),
		maxLevels: maxLevels,
		metrics:   metrics,
		logger:    logger.With(slog.String("component", "simulator")),
		now:       time.Now,
	}
}

// Connect marks the simulated transport as connected.
func (s *Simulator) Connect(endpoint string) {
	s.mu.Lock()
	s.connected = true
	s.endpoint = endpoint
	s.mu.Unlock()
	s.logger.Info("execution transport connected", slog.String("endpoint", endpoint))
}

// Disconnect marks the simulated transport as disconnected. Idempotent.
func (s *Simulator) Disconnect() {
	s.mu.Lock()
	was := s.connected
	s.connected = false
	s.mu.Unlock()
	if was {
		s.logger.Info("execution transport disconnected")
	}
}

// Connected reports the transport state.
func (s *Simulator) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// OnReport registers a report handler.
func (s *Simulator) OnReport(h ReportHandler) {
	s.mu.Lock()
	s.handlers = append(s.handlers, h)
	s.mu.Unlock()
}

// State returns the last recorded state for orderID.
func (s *Simulator) State(orderID string) (domain.OrderState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[orderID]
	return st, ok
}

// Submit walks the opposing side of book best-first, consuming crossing
// liquidity up to the order size, and reports the volume-weighted result. The
// order always ends Filled, even when nothing crossed. A nil book fills zero.
func (s *Simulator) Submit(order domain.NewOrder, book DepthReader) domain.ExecutionReport {
	start := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[order.OrderID] = domain.OrderStatePendingNew
	s.metrics.Increment("orders.sent", 1)
	s.logger.Info("placing simulated order",
		slog.String("order_id", order.OrderID),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.String("size", order.Size.String()),
		slog.String("price", order.Price.String()),
	)

	filled, cost := s.walk(order, book)

	avg := decimal.Zero
	if filled.IsPositive() {
		avg = cost.Div(filled)
	}
	if order.Size.Sub(filled).Abs().GreaterThan(fillEpsilon) {
		s.metrics.Increment("orders.partial", 1)
		s.logger.Warn("simulated order partially filled",
			slog.String("order_id", order.OrderID),
			slog.String("requested", order.Size.String()),
			slog.String("filled", filled.String()),
		)
	}

	report := domain.ExecutionReport{
		ExecID:    uuid.NewString(),
		OrderID:   order.OrderID,
		Symbol:    order.Symbol,
		Side:      order.Side,
		ExecPrice: avg,
		ExecSize:  filled,
		IsFill:    filled.IsPositive(),
		Timestamp: s.now(),
	}

	s.states[order.OrderID] = domain.OrderStateFilled
	s.metrics.Increment("orders.filled", 1)
	s.metrics.Timing("orders.fill_latency", report.Timestamp.Sub(start))
	s.logger.Info("simulated fill complete",
		slog.String("order_id", order.OrderID),
		slog.String("exec_size", filled.String()),
		slog.String("exec_price", avg.String()),
	)

	s.dispatch(report)
	return report
}

func (s *Simulator) walk(order domain.NewOrder, book DepthReader) (filled, cost decimal.Decimal) {
	filled, cost = decimal.Zero, decimal.Zero
	if book == nil {
		return filled, cost
	}

	side := domain.SideAsk
	if !order.IsBuy() {
		side = domain.SideBid
	}
	remaining := order.Size

	for lvl := range book.Depth(side, s.maxLevels) {
		crosses := lvl.Price.LessThanOrEqual(order.Price)
		if !order.IsBuy() {
			crosses = lvl.Price.GreaterThanOrEqual(order.Price)
		}
		if !crosses {
			break
		}

		qty := decimal.Min(remaining, lvl.Size)
		remaining = remaining.Sub(qty)
		filled = filled.Add(qty)
		cost = cost.Add(qty.Mul(lvl.Price))

		s.logger.Debug("level filled",
			slog.String("order_id", order.OrderID),
			slog.String("qty", qty.String()),
			slog.String("price", lvl.Price.String()),
		)
		if remaining.LessThanOrEqual(fillEpsilon) {
			break
		}
	}
	return filled, cost
}

// Cancel marks orderID Canceled, whatever its prior state, and emits an empty
// non-fill report. Cancelling twice emits two reports.
func (s *Simulator) Cancel(orderID string) domain.ExecutionReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[orderID] = domain.OrderStateCanceled
	s.metrics.Increment("orders.cancelled", 1)
	s.metrics.Increment("orders.canceled_ack", 1)
	s.logger.Info("simulated cancel", slog.String("order_id", orderID))

	report := domain.ExecutionReport{
		ExecID:    uuid.NewString(),
		OrderID:   orderID,
		ExecPrice: decimal.Zero,
		ExecSize:  decimal.Zero,
		Timestamp: s.now(),
	}
	s.dispatch(report)
	return report
}

func (s *Simulator) dispatch(report domain.ExecutionReport) {
	for _, h := range s.handlers {
		h(report)
	}
}
