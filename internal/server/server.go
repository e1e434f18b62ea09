// Package server provides the HTTP server and routing for the paper trading API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/sanbist/papertrader/internal/config"
	"github.com/sanbist/papertrader/internal/di"
	"github.com/sanbist/papertrader/internal/domain"
	"github.com/sanbist/papertrader/internal/identity"
	analyticshandlers "github.com/sanbist/papertrader/internal/modules/analytics/handlers"
	markethandlers "github.com/sanbist/papertrader/internal/modules/market/handlers"
	markethourshandlers "github.com/sanbist/papertrader/internal/modules/market_hours/handlers"
	portfoliohandlers "github.com/sanbist/papertrader/internal/modules/portfolio/handlers"
	tradinghandlers "github.com/sanbist/papertrader/internal/modules/trading/handlers"
	"github.com/sanbist/papertrader/internal/scheduler"
	"github.com/sanbist/papertrader/internal/version"
)

// requestTimeout bounds ordinary API requests. Event streams are exempt.
const requestTimeout = 60 * time.Second

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container   // DI container with all services
	Jobs      []scheduler.Job // Jobs that can be triggered manually
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	container      *di.Container
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: cfg.Container,
		systemHandlers: NewSystemHandlers(
			cfg.Container.Databases(),
			cfg.Container.Scheduler,
			cfg.Container.MarketHoursService,
			cfg.Container.SnapshotCache,
			cfg.Jobs,
			cfg.Log,
		),
	}

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second, // Streams lift this per connection
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", identity.Header},
		ExposedHeaders:   []string{"Link", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	base := domain.Currency(s.cfg.BaseCurrency)

	s.router.Route("/api", func(r chi.Router) {
		// Long-lived streams, outside the request timeout
		r.Group(func(r chi.Router) {
			r.Use(identity.Require)
			stream := NewEventsStreamHandler(s.container.EventBus, s.container.PortfolioService, s.log)
			r.Get("/events/stream", stream.ServeHTTP)
			ws := NewEventsWSHandler(s.container.EventBus, s.container.PortfolioService, s.log)
			r.Get("/events/ws", ws.ServeHTTP)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			// Public: market data, exchange calendar and operations
			markethandlers.NewHandler(s.container.MarketService, base, s.cfg.FeedTimeout, s.log).RegisterRoutes(r)
			markethourshandlers.NewHandler(s.container.MarketHoursService, s.log).RegisterRoutes(r)
			s.systemHandlers.RegisterRoutes(r)

			// Per-user routes
			r.Group(func(r chi.Router) {
				r.Use(identity.Require)
				portfoliohandlers.NewHandler(s.container.PortfolioService, s.log).RegisterRoutes(r)
				tradinghandlers.NewHandler(s.container.TradingService, s.log).RegisterRoutes(r)
				analyticshandlers.NewHandler(s.container.AnalyticsService, s.log).RegisterRoutes(r)
			})
		})
	})
}

// handleHealth reports liveness and whether the ledger database answers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]interface{}{
		"status":  "healthy",
		"version": version.Version,
	}
	if err := s.container.PortfolioDB.Conn().PingContext(ctx); err != nil {
		s.log.Error().Err(err).Msg("Health check: portfolio database unreachable")
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["error"] = "portfolio database unreachable"
	}
	writeJSON(w, status, body, s.log)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs one line per request. Health probes log at debug,
// server errors at warn. The caller's user id is included when present.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		event := s.log.Info()
		switch {
		case ww.Status() >= http.StatusInternalServerError:
			event = s.log.Warn()
		case r.URL.Path == "/health":
			event = s.log.Debug()
		}

		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("user_id", r.Header.Get(identity.Header)).
			Msg("HTTP request")
	})
}
