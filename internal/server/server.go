// Package server exposes the HTTP surface of a running study: Prometheus
// metrics, a health probe and the WebSocket hub remote workers subscribe
// to for parallel mode announcements.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/agbru/hiersurr/internal/logging"
	"github.com/agbru/hiersurr/internal/metrics"
)

const (
	// MetricsPath serves the Prometheus exposition.
	MetricsPath = "/metrics"
	// HealthPath answers liveness probes.
	HealthPath = "/healthz"
	// WorkersPath upgrades remote workers to the announcement stream.
	WorkersPath = "/workers"

	shutdownTimeout = 5 * time.Second
)

// Server serves the metrics, health and worker endpoints.
type Server struct {
	addr    string
	metrics *metrics.Metrics
	hub     *Hub
	logger  logging.Logger
	mux     *http.ServeMux
}

// New creates a server listening on addr. A nil hub leaves the worker
// endpoint unrouted.
func New(addr string, m *metrics.Metrics, hub *Hub, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Server{addr: addr, metrics: m, hub: hub, logger: logger, mux: http.NewServeMux()}
	s.mux.Handle(MetricsPath, m.Handler())
	s.mux.HandleFunc(HealthPath, s.handleHealth)
	if hub != nil {
		s.mux.Handle(WorkersPath, hub)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body := map[string]any{"status": "ok"}
	if s.hub != nil {
		body["workers"] = s.hub.Clients()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// Run serves until ctx ends, then shuts the listener down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", logging.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if s.hub != nil {
		s.hub.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}
