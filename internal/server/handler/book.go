package handler

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

const (
	defaultBookDepth = 20
	maxBookDepth     = 1000
)

// BookHandler serves order book snapshots.
type BookHandler struct {
	traders Traders
	logger  *slog.Logger
}

// NewBookHandler creates a BookHandler.
func NewBookHandler(traders Traders, logger *slog.Logger) *BookHandler {
	return &BookHandler{traders: traders, logger: logger}
}

type levelResponse struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

type bookResponse struct {
	Symbol       string          `json:"symbol"`
	LastUpdateID int64           `json:"last_update_id"`
	Bids         []levelResponse `json:"bids"`
	Asks         []levelResponse `json:"asks"`
}

func toLevels(in []domain.PriceLevel) []levelResponse {
	out := make([]levelResponse, len(in))
	for i, l := range in {
		out[i] = levelResponse{Price: l.Price, Size: l.Size}
	}
	return out
}

// GetBook returns up to depth levels per side, best first.
// GET /api/books/{symbol}?depth=20
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	tr, ok := lookupTrader(w, r, h.traders)
	if !ok {
		return
	}
	snap := tr.Snapshot(queryInt(r, "depth", defaultBookDepth, maxBookDepth))
	writeJSON(w, http.StatusOK, bookResponse{
		Symbol:       tr.Symbol(),
		LastUpdateID: snap.LastUpdateID,
		Bids:         toLevels(snap.Bids),
		Asks:         toLevels(snap.Asks),
	})
}
