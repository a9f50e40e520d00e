// Package server exposes monitors, checks and alerts over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lepinkainen/og-monitor/pkg/monitor"
)

// ShutdownTimeout bounds the graceful shutdown in ListenAndServe
const ShutdownTimeout = 10 * time.Second

// Options configures a Server
type Options struct {
	Orchestrator *monitor.Orchestrator
	Batch        *monitor.BatchRunner
	// CronSecret authenticates the batch trigger. Empty disables it.
	CronSecret string
	// BaseURL is the public address used in feed links
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server holds the dependencies of the HTTP API
type Server struct {
	orchestrator *monitor.Orchestrator
	batch        *monitor.BatchRunner
	cronSecret   string
	baseURL      string
	readTimeout  time.Duration
	writeTimeout time.Duration
	router       chi.Router
}

// New creates a server and sets up its routes
func New(opts Options) *Server {
	s := &Server{
		orchestrator: opts.Orchestrator,
		batch:        opts.Batch,
		cronSecret:   opts.CronSecret,
		baseURL:      opts.BaseURL,
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
	}
	if s.batch == nil {
		s.batch = monitor.NewBatchRunner(s.orchestrator)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/check", s.handleInspect)

		r.Route("/monitors", func(r chi.Router) {
			r.Post("/", s.handleCreateMonitor)
			r.Get("/", s.handleListMonitors)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetMonitor)
				r.Patch("/", s.handleUpdateMonitor)
				r.Delete("/", s.handleDeleteMonitor)
				r.Post("/check", s.handleRunCheck)
				r.Get("/checks", s.handleListChecks)
				r.Get("/alerts", s.handleListAlerts)
				r.Get("/alerts.atom", s.handleAlertFeed)
			})
		})

		r.Post("/alerts/{id}/acknowledge", s.handleAcknowledgeAlert)
		r.Delete("/alerts/{id}", s.handleDeleteAlert)

		r.Post("/cron/check-monitors", s.handleCron)
	})

	return r
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	slog.Info("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
