// Package server assembles the HTTP + WebSocket API surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantera/tradesim/internal/server/handler"
	"github.com/quantera/tradesim/internal/server/middleware"
	"github.com/quantera/tradesim/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Book       *handler.BookHandler
	Estimate   *handler.EstimateHandler
	Connection *handler.ConnectionHandler
}

// Server is the HTTP + WebSocket API server for the trade simulator.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (logging, CORS) applied. metricsHandler may be nil to
// disable the exporter endpoint.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, metricsHandler http.Handler, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Connection.Status)

	mux.HandleFunc("GET /api/book", handlers.Book.GetBook)
	mux.HandleFunc("GET /api/book/stats", handlers.Book.GetStats)

	mux.HandleFunc("POST /api/estimate", handlers.Estimate.PostEstimate)
	mux.HandleFunc("POST /api/samples", handlers.Estimate.PostSample)

	mux.HandleFunc("POST /api/connect", handlers.Connection.Connect)
	mux.HandleFunc("POST /api/disconnect", handlers.Connection.Disconnect)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	return s.httpServer.Shutdown(ctx)
}
