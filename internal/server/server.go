package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/lagbot/internal/domain"
	"github.com/alanyoungcy/lagbot/internal/metrics"
	"github.com/alanyoungcy/lagbot/internal/server/handler"
	"github.com/alanyoungcy/lagbot/internal/server/middleware"
	"github.com/alanyoungcy/lagbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per client per minute, 0 disables
}

// Handlers aggregates the HTTP handlers the server registers. Trades may be
// nil when no trade store is wired; its routes are then skipped.
type Handlers struct {
	Health    *handler.HealthHandler
	Prices    *handler.PriceHandler
	Lag       *handler.LagHandler
	Signals   *handler.SignalHandler
	Positions *handler.PositionHandler
	Risk      *handler.RiskHandler
	Stats     *handler.StatsHandler
	Trades    *handler.TradeHandler
}

// Server is the read-only HTTP and WebSocket query surface over the running
// pipeline. Probe endpoints and the event stream sit outside the
// authenticated API subtree.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain. The API
// subtree under /api/ is wrapped in rate limiting and authentication;
// /healthz, /metrics, and /ws are served directly so probes, scrapers, and
// browser stream consumers need no key. limiter may be nil, which disables
// rate limiting regardless of cfg.RateLimit.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	log := logger.With(slog.String("component", "server"))

	api := http.NewServeMux()

	api.HandleFunc("GET /api/v1/prices/{symbol}", handlers.Prices.GetPrices)
	api.HandleFunc("GET /api/v1/feeds", handlers.Prices.ListFeeds)
	api.HandleFunc("GET /api/v1/lag/{symbol}", handlers.Lag.GetLag)
	api.HandleFunc("GET /api/v1/signals", handlers.Signals.ListSignals)
	api.HandleFunc("GET /api/v1/positions", handlers.Positions.ListOpen)
	api.HandleFunc("GET /api/v1/positions/closed", handlers.Positions.ListClosed)
	api.HandleFunc("GET /api/v1/positions/{id}", handlers.Positions.GetPosition)
	api.HandleFunc("GET /api/v1/risk", handlers.Risk.GetStatus)
	api.HandleFunc("GET /api/v1/stats", handlers.Stats.GetStats)
	if handlers.Trades != nil {
		api.HandleFunc("GET /api/v1/trades", handlers.Trades.ListTrades)
		api.HandleFunc("GET /api/v1/positions/{id}/trades", handlers.Trades.ListByPosition)
	}

	var protected http.Handler = api
	protected = middleware.Auth(cfg.APIKey)(protected)
	if limiter != nil && cfg.RateLimit > 0 {
		protected = middleware.RateLimit(limiter, cfg.RateLimit, time.Minute, log)(protected)
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", handlers.Health.Check)
	root.Handle("GET /metrics", metrics.Handler())
	if hub != nil {
		root.HandleFunc("GET /ws", hub.HandleWS)
	}
	root.Handle("/api/", protected)

	var h http.Handler = root
	h = middleware.Logging(log)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     log,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
