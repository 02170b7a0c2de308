// Package web exposes the import pipeline over HTTP: preview, import,
// history, and billing-period endpoints behind API-key auth and per-IP rate
// limiting.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/hourbook/hourbook/internal/config"
	"github.com/hourbook/hourbook/internal/core"
	"github.com/hourbook/hourbook/internal/web/middleware"
)

// Options collects the server's dependencies.
type Options struct {
	Service *core.Service
	Logger  *slog.Logger
	// Credentials maps API keys to user ids.
	Credentials map[string]uuid.UUID
	Rate        config.RateConfig
	// Ping reports database reachability for the health endpoint.
	Ping         func(ctx context.Context) error
	MaxBodyBytes int64
}

// Server is the HTTP front of the service.
type Server struct {
	svc     *core.Service
	logger  *slog.Logger
	ping    func(ctx context.Context) error
	maxBody int64
	http    *http.Server
}

// New builds the router and wraps it in an http.Server for addr.
func New(addr string, serverCfg config.ServerConfig, opts Options) *Server {
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	s := &Server{
		svc:     opts.Service,
		logger:  opts.Logger,
		ping:    opts.Ping,
		maxBody: maxBody,
	}

	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.routes(opts),
		ReadTimeout:  serverCfg.ReadTimeout,
		WriteTimeout: serverCfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(securityHeaders)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		if opts.Rate.Enabled {
			r.Use(middleware.NewRateLimiter(opts.Rate.PerMinute, opts.Rate.Burst).Handler)
		}
		r.Use(middleware.NewAPIKeyAuth(opts.Credentials).Handler)

		r.Post("/preview", s.handlePreview)
		r.Post("/import", s.handleImport)
		r.Get("/imports", s.handleListImports)
		r.Get("/imports/{key}", s.handleGetImport)
		r.Get("/entries", s.handleListEntries)
		r.Get("/period", s.handlePeriod)
	})

	return r
}

// Handler exposes the composed router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
