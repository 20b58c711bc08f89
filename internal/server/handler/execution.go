package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

const (
	defaultExecutionLimit = 50
	maxExecutionLimit     = 500
)

// ExecutionLog reads recent entries of an append-only stream.
type ExecutionLog interface {
	StreamTail(ctx context.Context, stream string, count int) ([]domain.StreamMessage, error)
}

// ExecutionHandler serves the mirrored execution report stream.
type ExecutionHandler struct {
	log    ExecutionLog
	stream string
	logger *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler reading stream from log.
func NewExecutionHandler(log ExecutionLog, stream string, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{log: log, stream: stream, logger: logger}
}

type executionEntry struct {
	ID     string          `json:"id"`
	Report json.RawMessage `json:"report"`
}

// ListExecutions returns the newest execution reports first.
// GET /api/executions?limit=50
func (h *ExecutionHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultExecutionLimit, maxExecutionLimit)

	msgs, err := h.log.StreamTail(r.Context(), h.stream, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list executions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}

	out := make([]executionEntry, 0, len(msgs))
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		out = append(out, executionEntry{ID: m.ID, Report: m.Payload})
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": out})
}
