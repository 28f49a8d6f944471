// Package server exposes the market views over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/matchmarket/internal/domain"
	"github.com/alanyoungcy/matchmarket/internal/server/handler"
	"github.com/alanyoungcy/matchmarket/internal/server/middleware"
	"github.com/alanyoungcy/matchmarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey, when set, is required on every route except /health.
	APIKey          string
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Odds      *handler.OddsHandler
	Positions *handler.PositionHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware
// chain. wsHub and limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      Routes(cfg, handlers, wsHub, limiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// Routes builds the handler tree. It is separate from NewServer so tests can
// mount it on httptest.
func Routes(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/pricing", handlers.Markets.GetPricing)
	mux.HandleFunc("GET /api/markets/{id}/history", handlers.Markets.GetHistory)
	mux.HandleFunc("GET /api/markets/{id}/orderbook", handlers.Markets.GetOrderBook)
	mux.HandleFunc("GET /api/markets/{id}/quote", handlers.Markets.GetQuote)
	mux.HandleFunc("GET /api/markets/{id}/sell-quote", handlers.Markets.GetSellQuote)

	mux.HandleFunc("GET /api/odds", handlers.Odds.Convert)
	mux.HandleFunc("GET /api/positions/{userID}", handlers.Positions.ListPositions)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Second
	}

	var h http.Handler = mux
	h = middleware.RateLimit(limiter, cfg.RateLimit, window, logger)(h)
	h = middleware.Auth(cfg.APIKey, "/health")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
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
