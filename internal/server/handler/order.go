package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rs/xid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

// OrderIDClaimer reserves order ids. Claim reports false for an id already
// in use.
type OrderIDClaimer interface {
	Claim(id string) bool
}

// OrderHandler serves order entry and cancellation.
type OrderHandler struct {
	traders Traders
	ids     OrderIDClaimer // optional
	logger  *slog.Logger
}

// NewOrderHandler creates an OrderHandler. ids may be nil to accept repeated
// order ids.
func NewOrderHandler(traders Traders, ids OrderIDClaimer, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		traders: traders,
		ids:     ids,
		logger:  logger,
	}
}

type placeOrderRequest struct {
	OrderID string          `json:"order_id"`
	Symbol  string          `json:"symbol"`
	Side    string          `json:"side"`
	Price   decimal.Decimal `json:"price"`
	Size    decimal.Decimal `json:"size"`
	// SkipRisk bypasses the risk gate. Positions still follow the fill.
	SkipRisk bool `json:"skip_risk"`
}

// PlaceOrder submits an order to the symbol's simulator. Orders go through
// the risk gate unless skip_risk is set; a rejection answers 422.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	tr, ok := h.traders.Lookup(req.Symbol)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown symbol "+strings.ToUpper(req.Symbol))
		return
	}
	if req.OrderID == "" {
		req.OrderID = xid.New().String()
	}

	order, err := domain.NewLimitOrder(req.OrderID, tr.Symbol(),
		domain.OrderSide(strings.ToLower(req.Side)), req.Price, req.Size)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOrder) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to place order")
		return
	}

	if h.ids != nil && !h.ids.Claim(order.OrderID) {
		writeError(w, http.StatusConflict, "duplicate order id "+order.OrderID)
		return
	}

	if req.SkipRisk {
		writeJSON(w, http.StatusCreated, toReportResponse(tr.SendOrder(order)))
		return
	}

	report, approved := tr.SendOrderGated(order)
	if !approved {
		h.logger.InfoContext(r.Context(), "handler: order rejected by risk",
			slog.String("symbol", order.Symbol),
			slog.String("order_id", order.OrderID),
		)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":    "rejected by risk gate",
			"order_id": order.OrderID,
		})
		return
	}
	writeJSON(w, http.StatusCreated, toReportResponse(report))
}

// CancelOrder cancels an order by id. The simulator acknowledges every cancel.
// DELETE /api/orders/{symbol}/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	tr, ok := lookupTrader(w, r, h.traders)
	if !ok {
		return
	}
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	report := tr.CancelOrder(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "cancelled",
		"report": toReportResponse(report),
	})
}
