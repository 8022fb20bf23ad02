package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maltedev/amazon-seller-scraper/internal/scraper"
)

const (
	pendingWarnThreshold    = 1000
	deadLetterFailThreshold = 100
)

// StatusSource reports the progress of the current run.
type StatusSource interface {
	Snapshot() scraper.Snapshot
}

// OutboxCounter reports outbox backlog for the health check.
type OutboxCounter interface {
	CountByStatus(ctx context.Context, statuses ...string) (int64, error)
}

type Options struct {
	Addr            string
	Status          StatusSource
	Registry        *prometheus.Registry
	Outbox          OutboxCounter
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// Server exposes run status, health and metrics over HTTP while a scrape
// is running.
type Server struct {
	opts   Options
	http   *http.Server
	logger *slog.Logger
}

func New(opts Options) *Server {
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		opts:   opts,
		logger: logger.With("component", "status-server"),
	}
	s.http = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.health)
	r.Get("/status", s.status)
	if s.opts.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.opts.Registry, promhttp.HandlerOpts{}))
	}

	return r
}

// Start serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server starting", "addr", s.opts.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown failed: %w", err)
	}
	s.logger.Info("status server stopped")
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	if s.opts.Outbox != nil {
		pending, err := s.opts.Outbox.CountByStatus(r.Context(), "pending", "failed")
		if err != nil {
			s.respondJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "error",
				"error":  err.Error(),
			})
			return
		}
		dead, err := s.opts.Outbox.CountByStatus(r.Context(), "dead_letter")
		if err != nil {
			s.respondJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "error",
				"error":  err.Error(),
			})
			return
		}

		health["outbox"] = map[string]any{"pending": pending, "dead_letter": dead}
		if pending > pendingWarnThreshold {
			health["status"] = "warning"
			health["message"] = "high number of pending outbox events"
		}
		if dead > deadLetterFailThreshold {
			health["status"] = "error"
			health["message"] = "high number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	s.respondJSON(w, status, health)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	if s.opts.Status == nil {
		s.respondError(w, http.StatusNotFound, "no run in progress")
		return
	}
	s.respondJSON(w, http.StatusOK, s.opts.Status.Snapshot())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
