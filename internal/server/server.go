// Package server exposes the ops HTTP API: health, position management,
// P&L, and engine lifecycle control.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tokensniper/internal/domain"
	"tokensniper/internal/engine"
	"tokensniper/internal/position"
	"tokensniper/internal/server/handler"
	"tokensniper/internal/server/middleware"
)

// Server wraps the HTTP server and its routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds the server with all routes registered.
func New(port int, eng *engine.Engine, store *position.Store, prices domain.PriceCache, logger *slog.Logger) *Server {
	log := logger.With(slog.String("component", "server"))

	healthHandler := handler.NewHealthHandler()
	positionHandler := handler.NewPositionHandler(eng, store, prices, logger)
	engineHandler := handler.NewEngineHandler(eng, logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", healthHandler.HealthCheck)

	mux.HandleFunc("GET /api/positions", positionHandler.List)
	mux.HandleFunc("POST /api/positions", positionHandler.Open)
	mux.HandleFunc("POST /api/positions/{mint}/{wallet}/close", positionHandler.Close)
	mux.HandleFunc("PUT /api/positions/{mint}/{wallet}/triggers", positionHandler.SetTriggers)
	mux.HandleFunc("GET /api/pnl", positionHandler.PnL)

	mux.HandleFunc("GET /api/engine", engineHandler.Status)
	mux.HandleFunc("POST /api/engine/pause", engineHandler.Pause)
	mux.HandleFunc("POST /api/engine/resume", engineHandler.Resume)

	var h http.Handler = mux
	h = middleware.Logging(log)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: log,
	}
}

// Start begins serving. It blocks until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("http server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, draining in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
