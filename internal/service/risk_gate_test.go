package service

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newOrder(t *testing.T, id string, side domain.OrderSide, size string) domain.NewOrder {
	t.Helper()
	o, err := domain.NewLimitOrder(id, "TEST", side, dec("10"), dec(size))
	require.NoError(t, err)
	return o
}

func fill(side domain.OrderSide, size string) domain.ExecutionReport {
	return domain.ExecutionReport{
		OrderID:   "F",
		Symbol:    "TEST",
		Side:      side,
		ExecPrice: dec("10"),
		ExecSize:  dec(size),
		IsFill:    true,
	}
}

func TestRiskGateSequence(t *testing.T) {
	g := NewRiskGate(dec("100"), slog.New(slog.NewTextHandler(io.Discard, nil)))

	var rejected []string
	g.OnReject(func(o domain.NewOrder) { rejected = append(rejected, o.OrderID) })

	assert.True(t, g.Approve(newOrder(t, "O1", domain.OrderSideBuy, "50")))
	assert.False(t, g.Approve(newOrder(t, "O2", domain.OrderSideBuy, "200")))
	assert.Equal(t, []string{"O2"}, rejected)
	assert.True(t, g.Position("TEST").IsZero(), "approve must not move the position")

	g.OnFill(fill(domain.OrderSideBuy, "50"))
	assert.True(t, dec("50").Equal(g.Position("TEST")))

	assert.False(t, g.Approve(newOrder(t, "O3", domain.OrderSideBuy, "60")))
	assert.True(t, g.Approve(newOrder(t, "O4", domain.OrderSideSell, "40")))

	g.OnFill(fill(domain.OrderSideSell, "40"))
	assert.True(t, dec("10").Equal(g.Position("TEST")))

	assert.False(t, g.Approve(newOrder(t, "O5", domain.OrderSideSell, "120")))
	assert.Equal(t, []string{"O2", "O3", "O5"}, rejected)
}

func TestRiskGateBoundaryInclusive(t *testing.T) {
	g := NewRiskGate(dec("100"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.True(t, g.Approve(newOrder(t, "A", domain.OrderSideBuy, "100")))
	assert.True(t, g.Approve(newOrder(t, "B", domain.OrderSideSell, "100")))
	assert.False(t, g.Approve(newOrder(t, "C", domain.OrderSideBuy, "100.00000001")))
}

func TestRiskGateIgnoresNonFills(t *testing.T) {
	g := NewRiskGate(dec("100"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	g.OnFill(domain.ExecutionReport{OrderID: "C1", ExecSize: decimal.Zero})
	assert.Empty(t, g.Exposure())
}

func TestRiskGateExposure(t *testing.T) {
	g := NewRiskGate(dec("100"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	g.OnFill(domain.ExecutionReport{Symbol: "ETHUSDT", Side: domain.OrderSideSell, ExecSize: dec("2"), IsFill: true})
	g.OnFill(domain.ExecutionReport{Symbol: "BTCUSDT", Side: domain.OrderSideBuy, ExecSize: dec("1"), IsFill: true})

	exp := g.Exposure()
	require.Len(t, exp, 2)
	assert.Equal(t, "BTCUSDT", exp[0].Symbol)
	assert.True(t, dec("-2").Equal(exp[1].Quantity))
}

func TestRiskGateConcurrentFills(t *testing.T) {
	g := NewRiskGate(dec("1000000"), slog.New(slog.NewTextHandler(io.Discard, nil)))

	probe := newOrder(t, "X", domain.OrderSideBuy, "1")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				g.OnFill(fill(domain.OrderSideBuy, "1"))
				_ = g.Approve(probe)
			}
		}()
	}
	wg.Wait()
	assert.True(t, dec("5000").Equal(g.Position("TEST")))
}
