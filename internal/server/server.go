// Package server is the bookkeeping and registry API: it receives the
// application statuses and job parameters reported by running jobs, serves
// the ProcessList and answers job path queries.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/ilcdirac/internal/config"
	"github.com/me/ilcdirac/internal/jobpath"
	"github.com/me/ilcdirac/internal/metrics"
	"github.com/me/ilcdirac/internal/processlist"
	"github.com/me/ilcdirac/internal/store"
)

// Server is the ILCDIRAC REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	store     store.Store
	jobpath   *jobpath.Resolver
	metrics   *metrics.Metrics   // optional
	keys      *ReporterKeyConfig // optional; nil leaves report writes open
	processes atomic.Pointer[processlist.ProcessList]
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithProcessList sets the registry served under /processes.
func WithProcessList(pl *processlist.ProcessList) Option {
	return func(s *Server) {
		s.processes.Store(pl)
	}
}

// WithMetrics counts requests and reports and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithReporterKeys requires a known X-Reporter-Key on write endpoints.
func WithReporterKeys(keys *ReporterKeyConfig) Option {
	return func(s *Server) {
		s.keys = keys
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, st store.Store, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		store:     st,
		jobpath:   jobpath.New(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.processes.Load() == nil {
		s.processes.Store(processlist.New())
	}
	s.routes()
	return s
}

// ProcessList returns the registry currently served.
func (s *Server) ProcessList() *processlist.ProcessList {
	return s.processes.Load()
}

// SetProcessList swaps the served registry, e.g. after the file changed
// on disk.
func (s *Server) SetProcessList(pl *processlist.ProcessList) {
	s.processes.Store(pl)
}

// WatchProcessList reloads the registry whenever its file changes, in a
// background goroutine, until ctx is done.
func (s *Server) WatchProcessList(ctx context.Context) {
	path := s.ProcessList().Path()
	if path == "" {
		return
	}
	go func() {
		if err := processlist.Watch(ctx, path, s.logger, s.SetProcessList); err != nil {
			s.logger.Error("process list watch stopped", "error", err)
		}
	}()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(tagRequest)
	r.Use(accessLog(s.logger, s.metrics))
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		// Job reports
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Group(func(r chi.Router) {
					r.Use(reporterAuthMiddleware(s.keys, s.logger))
					r.Put("/status", s.handleSetStatus)
					r.Put("/parameters", s.handleSetParameters)
				})
			})
		})

		// ProcessList
		r.Route("/processes", func(r chi.Router) {
			r.Get("/", s.handleListProcesses)
			r.Get("/{name}", s.handleGetProcess)
			r.With(reporterAuthMiddleware(s.keys, s.logger)).Put("/", s.handleUpdateProcesses)
		})

		r.Post("/jobpath", s.handleJobPath)
	})
}
