// Package publish mirrors book state, market data and execution reports to
// the shared cache and bus so other processes can follow the trading core.
package publish

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

// ExecutionsStream is the stream every execution report is appended to.
const ExecutionsStream = "executions"

// MarketDataChannel returns the pub/sub channel for symbol.
func MarketDataChannel(symbol string) string { return "md:" + symbol }

// BookSource is the read side of a live order book.
type BookSource interface {
	Symbol() string
	Snapshot(n int) domain.BookSnapshot
}

// Options tunes a Mirror. Zero values select the defaults.
type Options struct {
	QueueSize        int
	Depth            int
	SnapshotInterval time.Duration
}

type job struct {
	update *domain.MarketDataUpdate
	report *domain.ExecutionReport
}

// Mirror is an orchestrator observer. Callbacks enqueue onto a bounded queue
// and never block; Run drains it. Work that does not fit is dropped and
// counted. Run also rewrites each tracked book in full every
// SnapshotInterval so the mirror converges after drops or restarts.
type Mirror struct {
	cache  domain.OrderbookCache
	bus    domain.SignalBus
	opts   Options
	queue  chan job
	logger *slog.Logger

	dropped atomic.Int64

	mu     sync.Mutex
	books  []BookSource
	synced map[string]int64 // symbol -> LastUpdateID of the last full rewrite
}

// NewMirror creates a Mirror writing to cache and bus.
func NewMirror(cache domain.OrderbookCache, bus domain.SignalBus, opts Options, logger *slog.Logger) *Mirror {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Depth <= 0 {
		opts.Depth = 20
	}
	if opts.SnapshotInterval <= 0 {
		opts.SnapshotInterval = 5 * time.Second
	}
	return &Mirror{
		cache:  cache,
		bus:    bus,
		opts:   opts,
		queue:  make(chan job, opts.QueueSize),
		synced: make(map[string]int64),
		logger: logger.With(slog.String("component", "mirror")),
	}
}

// Track adds a book to the periodic full-snapshot pass.
func (m *Mirror) Track(b BookSource) {
	m.mu.Lock()
	m.books = append(m.books, b)
	m.mu.Unlock()
}

// Dropped returns how many updates and reports were discarded.
func (m *Mirror) Dropped() int64 { return m.dropped.Load() }

// OnMarketData enqueues a level update.
func (m *Mirror) OnMarketData(u domain.MarketDataUpdate) {
	m.enqueue(job{update: &u})
}

// OnExecutionReport enqueues a report.
func (m *Mirror) OnExecutionReport(r domain.ExecutionReport) {
	m.enqueue(job{report: &r})
}

// OnRiskReject is a no-op.
func (m *Mirror) OnRiskReject(domain.NewOrder) {}

// OnStreamTerminated is a no-op.
func (m *Mirror) OnStreamTerminated(string, error) {}

func (m *Mirror) enqueue(j job) {
	select {
	case m.queue <- j:
	default:
		m.dropped.Add(1)
	}
}

// Run drains the queue until ctx is cancelled.
func (m *Mirror) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.SnapshotInterval)
	defer ticker.Stop()

	m.logger.Info("mirror started", slog.Int("queue_size", m.opts.QueueSize))
	defer m.logger.Info("mirror stopped", slog.Int64("dropped", m.dropped.Load()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.SyncBooks(ctx)
		case j := <-m.queue:
			m.handle(ctx, j)
		}
	}
}

// SyncBooks writes every tracked book, truncated to the configured depth.
// Queued level updates the rewrite already covers are skipped afterwards.
func (m *Mirror) SyncBooks(ctx context.Context) {
	m.mu.Lock()
	books := append([]BookSource(nil), m.books...)
	m.mu.Unlock()

	for _, b := range books {
		snap := b.Snapshot(m.opts.Depth)
		if err := m.cache.SetSnapshot(ctx, snap); err != nil {
			m.logger.Warn("mirror snapshot failed",
				slog.String("symbol", b.Symbol()),
				slog.String("error", err.Error()),
			)
			continue
		}
		m.mu.Lock()
		m.synced[b.Symbol()] = snap.LastUpdateID
		m.mu.Unlock()
	}
}

// covered reports whether the last full rewrite of symbol already includes
// update id.
func (m *Mirror) covered(symbol string, id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	last, ok := m.synced[symbol]
	return ok && id <= last
}

type marketDataMsg struct {
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Size     decimal.Decimal `json:"size"`
	Venue    string          `json:"venue"`
	UpdateID int64           `json:"update_id"`
}

// ExecutionMsg is the JSON shape appended to ExecutionsStream.
type ExecutionMsg struct {
	ExecID    string          `json:"exec_id"`
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	ExecPrice decimal.Decimal `json:"exec_price"`
	ExecSize  decimal.Decimal `json:"exec_size"`
	IsFill    bool            `json:"is_fill"`
	Timestamp time.Time       `json:"timestamp"`
}

func (m *Mirror) handle(ctx context.Context, j job) {
	switch {
	case j.update != nil:
		u := j.update
		if !m.covered(u.Symbol, u.UpdateID) {
			if err := m.cache.UpdateLevel(ctx, u.Symbol, u.Side, u.Price, u.Size); err != nil {
				m.logger.Debug("mirror level failed", slog.String("symbol", u.Symbol), slog.String("error", err.Error()))
			}
		}
		payload, _ := json.Marshal(marketDataMsg{
			Symbol:   u.Symbol,
			Side:     u.Side.String(),
			Price:    u.Price,
			Size:     u.Size,
			Venue:    u.Venue,
			UpdateID: u.UpdateID,
		})
		if err := m.bus.Publish(ctx, MarketDataChannel(u.Symbol), payload); err != nil {
			m.logger.Debug("mirror publish failed", slog.String("symbol", u.Symbol), slog.String("error", err.Error()))
		}

	case j.report != nil:
		r := j.report
		payload, _ := json.Marshal(ExecutionMsg{
			ExecID:    r.ExecID,
			OrderID:   r.OrderID,
			Symbol:    r.Symbol,
			Side:      string(r.Side),
			ExecPrice: r.ExecPrice,
			ExecSize:  r.ExecSize,
			IsFill:    r.IsFill,
			Timestamp: r.Timestamp,
		})
		if err := m.bus.StreamAppend(ctx, ExecutionsStream, payload); err != nil {
			m.logger.Warn("mirror report failed",
				slog.String("order_id", r.OrderID),
				slog.String("error", err.Error()),
			)
		}
	}
}
