// Package server exposes the trading core over HTTP: book snapshots,
// positions, order entry, the mirrored execution stream and Prometheus
// metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradecore/internal/server/handler"
	"github.com/alanyoungcy/tradecore/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Executions and Metrics are optional.
type Handlers struct {
	Health     *handler.HealthHandler
	Books      *handler.BookHandler
	Orders     *handler.OrderHandler
	Positions  *handler.PositionHandler
	Executions *handler.ExecutionHandler
	Metrics    http.Handler
}

// Server is the headless HTTP API server for the trading core.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// NewHandler builds the routed handler with the middleware chain applied.
func NewHandler(cfg Config, handlers Handlers, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/books/{symbol}", handlers.Books.GetBook)

	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/positions/{symbol}", handlers.Positions.GetPosition)

	mux.HandleFunc("POST /api/orders", handlers.Orders.PlaceOrder)
	mux.HandleFunc("DELETE /api/orders/{symbol}/{id}", handlers.Orders.CancelOrder)

	if handlers.Executions != nil {
		mux.HandleFunc("GET /api/executions", handlers.Executions.ListExecutions)
	}
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
