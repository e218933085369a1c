// Package server exposes the ragpipe HTTP API.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ForkIt369/ragpipe/internal/metrics"
	"github.com/ForkIt369/ragpipe/internal/service"
	"github.com/ForkIt369/ragpipe/internal/store"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// New builds and wires all routes.
func New(addr string, docs *service.DocumentService, search *service.SearchService, jobs *service.JobManager, st *store.Store, stats *metrics.Collector, logger *slog.Logger) *Server {
	h := &handler{
		docs:   docs,
		search: search,
		jobs:   jobs,
		store:  st,
		stats:  stats,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(loggingMiddleware(logger))

	r.Get("/healthz", h.healthz)

	r.Route("/api", func(api chi.Router) {
		api.Get("/search", h.searchHandler)
		api.Post("/documents", h.ingestDocument)
		api.Get("/documents/{documentID}", h.getDocument)
		api.Get("/jobs", h.listJobs)
		api.Get("/jobs/{documentID}", h.getJob)
		api.Get("/stats", h.getStats)
	})

	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: r,
		},
	}
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	slog.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
