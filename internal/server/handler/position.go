package handler

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"
)

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	traders Traders
	logger  *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(traders Traders, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{traders: traders, logger: logger}
}

type positionResponse struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
}

type listPositionsResponse struct {
	Positions []positionResponse `json:"positions"`
}

// ListPositions returns the signed position of every configured symbol.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	out := listPositionsResponse{Positions: []positionResponse{}}
	for _, sym := range h.traders.Symbols() {
		out.Positions = append(out.Positions, positionResponse{
			Symbol:   sym,
			Quantity: h.traders[sym].Position(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetPosition returns the signed position for one symbol.
// GET /api/positions/{symbol}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	tr, ok := lookupTrader(w, r, h.traders)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{Symbol: tr.Symbol(), Quantity: tr.Position()})
}
