// Package server exposes the portfolio and watch list over HTTP while a
// simulation runs.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"fibtrader/internal/ledger"
	"fibtrader/internal/symbol"
)

// Watcher manages the watch list with provider validation.
type Watcher interface {
	Watch(ctx context.Context, ticker string) (*symbol.Symbol, error)
	Unwatch(ctx context.Context, ticker string) error
}

type Config struct {
	Addr    string
	Log     zerolog.Logger
	Ledger  *ledger.Ledger
	Watcher Watcher
	// Prices returns the latest known last price per ticker. Optional.
	Prices func() map[string]float64
}

type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	ledger  *ledger.Ledger
	watcher Watcher
	prices  func() map[string]float64
}

func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "server").Logger(),
		ledger:  cfg.Ledger,
		watcher: cfg.Watcher,
		prices:  cfg.Prices,
	}
	if s.prices == nil {
		s.prices = func() map[string]float64 { return nil }
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/portfolio", s.handlePortfolio)
		r.Get("/positions", s.handlePositions)
		r.Get("/trades", s.handleTrades)
		r.Route("/watchlist", func(r chi.Router) {
			r.Get("/", s.handleWatchList)
			r.Post("/", s.handleWatch)
			r.Delete("/{symbol}", s.handleUnwatch)
		})
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
