package handler

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

// Trader is the per-symbol surface the handlers drive. symbol.Orchestrator
// implements it.
type Trader interface {
	Symbol() string
	Running() bool
	Snapshot(depth int) domain.BookSnapshot
	Position() decimal.Decimal
	SendOrder(order domain.NewOrder) domain.ExecutionReport
	SendOrderGated(order domain.NewOrder) (domain.ExecutionReport, bool)
	CancelOrder(orderID string) domain.ExecutionReport
}

// Traders indexes Traders by symbol. It is built once at startup and only
// read afterwards.
type Traders map[string]Trader

// Lookup finds the trader for symbol, ignoring case.
func (t Traders) Lookup(symbol string) (Trader, bool) {
	tr, ok := t[strings.ToUpper(symbol)]
	return tr, ok
}

// Symbols returns the configured symbols in sorted order.
func (t Traders) Symbols() []string {
	out := make([]string, 0, len(t))
	for s := range t {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryInt reads a positive integer query parameter, clamped to max.
func queryInt(r *http.Request, name string, def, max int) int {
	n := def
	if v := r.URL.Query().Get(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}
	if n > max {
		n = max
	}
	return n
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// lookupTrader resolves the {symbol} path value or writes a 404.
func lookupTrader(w http.ResponseWriter, r *http.Request, traders Traders) (Trader, bool) {
	sym := pathParam(r, "symbol")
	tr, ok := traders.Lookup(sym)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown symbol "+strings.ToUpper(sym))
		return nil, false
	}
	return tr, true
}

type reportResponse struct {
	ExecID    string          `json:"exec_id,omitempty"`
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol,omitempty"`
	Side      string          `json:"side,omitempty"`
	ExecPrice decimal.Decimal `json:"exec_price"`
	ExecSize  decimal.Decimal `json:"exec_size"`
	IsFill    bool            `json:"is_fill"`
	Timestamp string          `json:"timestamp,omitempty"`
}

func toReportResponse(r domain.ExecutionReport) reportResponse {
	out := reportResponse{
		ExecID:    r.ExecID,
		OrderID:   r.OrderID,
		Symbol:    r.Symbol,
		Side:      string(r.Side),
		ExecPrice: r.ExecPrice,
		ExecSize:  r.ExecSize,
		IsFill:    r.IsFill,
	}
	if !r.Timestamp.IsZero() {
		out.Timestamp = r.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}
	return out
}
