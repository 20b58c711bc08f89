package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecore/internal/domain"
	"github.com/alanyoungcy/tradecore/internal/executor"
	"github.com/alanyoungcy/tradecore/internal/server/handler"
)

type fakeTrader struct {
	symbol  string
	running bool
	allow   bool

	mu       sync.Mutex
	gated    []domain.NewOrder
	ungated  []domain.NewOrder
	cancels  []string
	position decimal.Decimal
}

func (f *fakeTrader) Symbol() string { return f.symbol }
func (f *fakeTrader) Running() bool  { return f.running }

func (f *fakeTrader) Snapshot(depth int) domain.BookSnapshot {
	bids := []domain.PriceLevel{
		{Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)},
		{Price: decimal.NewFromInt(99), Size: decimal.NewFromInt(2)},
	}
	if depth < len(bids) {
		bids = bids[:depth]
	}
	return domain.BookSnapshot{Symbol: f.symbol, LastUpdateID: 42, Bids: bids}
}

func (f *fakeTrader) Position() decimal.Decimal { return f.position }

func (f *fakeTrader) fill(o domain.NewOrder) domain.ExecutionReport {
	return domain.ExecutionReport{
		ExecID: "x", OrderID: o.OrderID, Symbol: o.Symbol, Side: o.Side,
		ExecPrice: o.Price, ExecSize: o.Size, IsFill: true,
	}
}

func (f *fakeTrader) SendOrder(o domain.NewOrder) domain.ExecutionReport {
	f.mu.Lock()
	f.ungated = append(f.ungated, o)
	f.mu.Unlock()
	return f.fill(o)
}

func (f *fakeTrader) SendOrderGated(o domain.NewOrder) (domain.ExecutionReport, bool) {
	f.mu.Lock()
	f.gated = append(f.gated, o)
	f.mu.Unlock()
	if !f.allow {
		return domain.ExecutionReport{}, false
	}
	return f.fill(o), true
}

func (f *fakeTrader) CancelOrder(id string) domain.ExecutionReport {
	f.mu.Lock()
	f.cancels = append(f.cancels, id)
	f.mu.Unlock()
	return domain.ExecutionReport{OrderID: id}
}

type fakeLog struct{ msgs []domain.StreamMessage }

func (f fakeLog) StreamTail(_ context.Context, _ string, count int) ([]domain.StreamMessage, error) {
	if count < len(f.msgs) {
		return f.msgs[:count], nil
	}
	return f.msgs, nil
}

func newTestHandler(t *testing.T, apiKey string) (http.Handler, *fakeTrader) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := &fakeTrader{symbol: "BTCUSDT", running: true, allow: true, position: decimal.RequireFromString("1.5")}
	traders := handler.Traders{"BTCUSDT": tr}

	h := NewHandler(Config{APIKey: apiKey}, Handlers{
		Health:    handler.NewHealthHandler(traders, logger),
		Books:     handler.NewBookHandler(traders, logger),
		Orders:    handler.NewOrderHandler(traders, executor.NewDedup(time.Minute), logger),
		Positions: handler.NewPositionHandler(traders, logger),
		Executions: handler.NewExecutionHandler(fakeLog{msgs: []domain.StreamMessage{
			{ID: "2-0", Payload: []byte(`{"order_id":"b"}`)},
			{ID: "1-0", Payload: []byte(`{"order_id":"a"}`)},
		}}, "executions", logger),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("tradecore_telemetry 1\n"))
		}),
	}, logger)
	return h, tr
}

func do(h http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	h, tr := newTestHandler(t, "")

	rec := do(h, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	tr.running = false
	rec = do(h, http.MethodGet, "/api/health", "")
	assert.Equal(t, "degraded", decode(t, rec)["status"])
}

func TestGetBook(t *testing.T) {
	h, _ := newTestHandler(t, "")

	rec := do(h, http.MethodGet, "/api/books/btcusdt?depth=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "BTCUSDT", body["symbol"])
	assert.Equal(t, float64(42), body["last_update_id"])
	bids := body["bids"].([]any)
	require.Len(t, bids, 1)
	assert.Equal(t, "100", bids[0].(map[string]any)["price"])

	rec = do(h, http.MethodGet, "/api/books/ETHUSDT", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPositions(t *testing.T) {
	h, _ := newTestHandler(t, "")

	rec := do(h, http.MethodGet, "/api/positions/BTCUSDT", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.5", decode(t, rec)["quantity"])

	rec = do(h, http.MethodGet, "/api/positions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["positions"], 1)
}

func TestPlaceOrderGatedByDefault(t *testing.T) {
	h, tr := newTestHandler(t, "")

	rec := do(h, http.MethodPost, "/api/orders",
		`{"order_id":"o1","symbol":"BTCUSDT","side":"BUY","price":"101","size":"2"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "o1", body["order_id"])
	assert.Equal(t, true, body["is_fill"])
	require.Len(t, tr.gated, 1)
	assert.Empty(t, tr.ungated)
	assert.Equal(t, domain.OrderSideBuy, tr.gated[0].Side)

	tr.allow = false
	rec = do(h, http.MethodPost, "/api/orders",
		`{"order_id":"o2","symbol":"BTCUSDT","side":"sell","price":"99","size":"1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPlaceOrderDuplicateID(t *testing.T) {
	h, tr := newTestHandler(t, "")

	body := `{"order_id":"dup","symbol":"BTCUSDT","side":"buy","price":"1","size":"1"}`
	require.Equal(t, http.StatusCreated, do(h, http.MethodPost, "/api/orders", body).Code)
	assert.Equal(t, http.StatusConflict, do(h, http.MethodPost, "/api/orders", body).Code)
	assert.Len(t, tr.gated, 1)
}

func TestPlaceOrderSkipRisk(t *testing.T) {
	h, tr := newTestHandler(t, "")
	tr.allow = false

	rec := do(h, http.MethodPost, "/api/orders",
		`{"symbol":"BTCUSDT","side":"sell","price":"99","size":"1","skip_risk":true}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, tr.ungated, 1)
	assert.NotEmpty(t, tr.ungated[0].OrderID)
}

func TestPlaceOrderValidation(t *testing.T) {
	h, _ := newTestHandler(t, "")

	cases := map[string]string{
		"bad json":  `{`,
		"bad side":  `{"order_id":"o","symbol":"BTCUSDT","side":"hold","price":"1","size":"1"}`,
		"zero size": `{"order_id":"o","symbol":"BTCUSDT","side":"buy","price":"1","size":"0"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(h, http.MethodPost, "/api/orders", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	rec := do(h, http.MethodPost, "/api/orders", `{"symbol":"DOGEUSDT","side":"buy","price":"1","size":"1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelOrder(t *testing.T) {
	h, tr := newTestHandler(t, "")

	rec := do(h, http.MethodDelete, "/api/orders/BTCUSDT/o9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"o9"}, tr.cancels)
}

func TestListExecutions(t *testing.T) {
	h, _ := newTestHandler(t, "")

	rec := do(h, http.MethodGet, "/api/executions?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)["executions"].([]any)
	require.Len(t, list, 1)
	entry := list[0].(map[string]any)
	assert.Equal(t, "2-0", entry["id"])
	assert.Equal(t, "b", entry["report"].(map[string]any)["order_id"])
}

func TestAuth(t *testing.T) {
	h, _ := newTestHandler(t, "secret")

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/health", "").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/positions", "").Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(h, http.MethodGet, "/api/positions", "", "X-API-Key", "wrong").Code)
	assert.Equal(t, http.StatusOK,
		do(h, http.MethodGet, "/api/positions", "", "Authorization", "Bearer secret").Code)
}
