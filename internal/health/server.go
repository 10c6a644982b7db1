package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/plantstream/core/internal/infrastructure/config"
	"github.com/plantstream/core/internal/infrastructure/logging"
	"github.com/plantstream/core/internal/pipeline"
)

// Server timeouts.
const (
	readTimeout     = 5 * time.Second
	writeTimeout    = 10 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 10 * time.Second
)

// StatusSource answers health and stats queries. The pipeline
// Coordinator satisfies it.
type StatusSource interface {
	Healthy() bool
	Stats() pipeline.Stats
}

// Server is the health/stats HTTP endpoint.
type Server struct {
	cfg    config.HealthConfig
	source StatusSource
	log    *logging.Logger
	server *http.Server
}

// New creates a Server. It does not listen until Start is called.
func New(cfg config.HealthConfig, source StatusSource, log *logging.Logger) *Server {
	return &Server{
		cfg:    cfg,
		source: source,
		log:    log.With("component", "health"),
	}
}

// Start launches the HTTP listener in a background goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	go func() {
		s.log.Info("health endpoint listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("health server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the listener.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down health server: %w", err)
	}
	return nil
}

// Handler returns the route handler, exposed for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// buildRouter creates the HTTP router.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Get("/stats", s.handleStats)
	return r
}

// handleHealthz answers 200 while the pipeline is healthy, 503 otherwise.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !s.source.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unhealthy"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleStats returns a JSON snapshot of the pipeline counters.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.source.Stats()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		pipeline.Stats
		Rate          float64 `json:"processing_rate"`
		UptimeSeconds float64 `json:"uptime_seconds"`
	}{
		Stats:         stats,
		Rate:          stats.Rate(),
		UptimeSeconds: time.Since(stats.StartTime).Seconds(),
	}); err != nil {
		s.log.Error("encoding stats failed", "error", err)
	}
}
