// Package status serves live run telemetry over HTTP while a load run
// is in progress.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/opensaves/savesbench/internal/history"
	"github.com/opensaves/savesbench/internal/stats"
)

// RunHistory reads persisted run summaries. *history.Store satisfies
// it.
type RunHistory interface {
	ListRuns(ctx context.Context, limit int) ([]history.Run, error)
	GetRun(ctx context.Context, id string) (*history.Run, error)
}

// Server exposes /healthz, /status and /metrics for one running test,
// plus /runs when a history store is configured.
type Server struct {
	collector *stats.Collector
	metrics   *stats.Metrics
	history   RunHistory
	logger    *zap.Logger
	srv       *http.Server
}

type Option func(*Server)

// WithHistory registers /runs and /runs/{id} backed by h.
func WithHistory(h RunHistory) Option {
	return func(s *Server) { s.history = h }
}

// New builds the status server. metrics may be nil, in which case
// /metrics is not registered.
func New(addr string, collector *stats.Collector, metrics *stats.Metrics, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		collector: collector,
		metrics:   metrics,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}
	if s.history != nil {
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	}

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info("status server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status server failed", zap.Error(err))
		}
	}()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.collector.Live()); err != nil {
		s.logger.Warn("status encode failed", zap.Error(err))
	}
}

const defaultRunsLimit = 20

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Warn("listing runs failed", zap.Error(err))
		http.Error(w, "run history unavailable", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(runs); err != nil {
		s.logger.Warn("runs encode failed", zap.Error(err))
	}
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.history.GetRun(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Warn("fetching run failed", zap.Error(err), zap.String("id", id))
		http.Error(w, "run history unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(run); err != nil {
		s.logger.Warn("run encode failed", zap.Error(err))
	}
}
