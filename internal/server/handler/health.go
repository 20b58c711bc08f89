package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	traders Traders
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler reporting on traders.
func NewHealthHandler(traders Traders, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{traders: traders, logger: logger}
}

// HealthCheck responds with the process status and whether each symbol's
// worker is running. Status is "degraded" when any worker is down.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	symbols := make(map[string]bool, len(h.traders))
	for _, sym := range h.traders.Symbols() {
		running := h.traders[sym].Running()
		symbols[sym] = running
		if !running {
			status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"symbols":   symbols,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
