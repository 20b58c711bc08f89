package service

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

// RejectHandler is told about every order the gate refuses.
type RejectHandler func(order domain.NewOrder)

// RiskGate bounds the absolute signed position per symbol. Approve is a pure
// check; positions only move on fill reports. Safe for concurrent use.
type RiskGate struct {
	maxPosition decimal.Decimal
	logger      *slog.Logger

	mu        sync.Mutex
	positions map[string]decimal.Decimal
	onReject  []RejectHandler
}

// NewRiskGate creates a gate with the given absolute position limit.
func NewRiskGate(maxPosition decimal.Decimal, logger *slog.Logger) *RiskGate {
	return &RiskGate{
		maxPosition: maxPosition.Abs(),
		logger:      logger.With(slog.String("component", "risk_gate")),
		positions:   make(map[string]decimal.Decimal),
	}
}

// MaxPosition returns the configured limit.
func (g *RiskGate) MaxPosition() decimal.Decimal { return g.maxPosition }

// OnReject registers a rejection handler. Handlers run after the gate lock is
// released.
func (g *RiskGate) OnReject(h RejectHandler) {
	g.mu.Lock()
	g.onReject = append(g.onReject, h)
	g.mu.Unlock()
}

// Approve reports whether filling order in full would keep
// |position + signed size| within the limit. A position exactly at the limit
// is allowed.
func (g *RiskGate) Approve(order domain.NewOrder) bool {
	g.mu.Lock()
	current := g.positions[order.Symbol]
	projected := current.Add(order.SignedSize())
	ok := projected.Abs().LessThanOrEqual(g.maxPosition)
	handlers := g.onReject
	g.mu.Unlock()

	if ok {
		return true
	}

	g.logger.Warn("order rejected by risk gate",
		slog.String("order_id", order.OrderID),
		slog.String("symbol", order.Symbol),
		slog.String("position", current.String()),
		slog.String("projected", projected.String()),
		slog.String("max_position", g.maxPosition.String()),
	)
	for _, h := range handlers {
		h(order)
	}
	return false
}

// OnFill adds the report's signed size to its symbol's position. Non-fill
// reports are ignored.
func (g *RiskGate) OnFill(report domain.ExecutionReport) {
	if !report.IsFill {
		return
	}
	g.mu.Lock()
	g.positions[report.Symbol] = g.positions[report.Symbol].Add(report.SignedSize())
	g.mu.Unlock()
}

// Position returns the signed position for symbol, zero if never filled.
func (g *RiskGate) Position(symbol string) decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.positions[symbol]
}

// Exposure returns every tracked position ordered by symbol.
func (g *RiskGate) Exposure() []domain.Position {
	g.mu.Lock()
	out := make([]domain.Position, 0, len(g.positions))
	for sym, qty := range g.positions {
		out = append(out, domain.Position{Symbol: sym, Quantity: qty})
	}
	g.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
