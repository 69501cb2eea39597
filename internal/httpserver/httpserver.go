// Package httpserver exposes the bridge's metrics and health-check
// endpoints over plain net/http, the way the teacher's server package
// wires its routes directly onto a ServeMux and drives lifecycle with
// http.Server.Shutdown.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/nwws-bridge/nwws-bridge/internal/metrics"
	"github.com/nwws-bridge/nwws-bridge/logger"
	"github.com/nwws-bridge/nwws-bridge/version"
)

// Server serves /metrics, /metrics/json, /health, /ready, and /live.
type Server struct {
	httpServer *http.Server
	registry   *metrics.Registry
	ready      atomic.Bool
	startedAt  time.Time
}

// New builds a Server bound to addr ("host:port"). It does not listen
// until Start is called.
func New(addr string, registry *metrics.Registry) *Server {
	s := &Server{registry: registry, startedAt: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/metrics/json", s.handleMetricsJSON)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/live", s.handleLive)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// SetReady flips the readiness flag returned by /ready.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Start begins listening in a background goroutine. Listen errors
// other than a clean shutdown are logged, not returned, matching the
// fire-and-forget goroutine lifecycle of the pipeline's other
// long-running components.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorw("http server stopped unexpectedly", "error", err)
		}
	}()
}

// Stop gracefully shuts down the HTTP server, waiting up to timeout
// for in-flight requests to finish.
func (s *Server) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprint(w, s.registry.ExportPrometheus())
}

func (s *Server) handleMetricsJSON(w http.ResponseWriter, _ *http.Request) {
	body, err := s.registry.ExportJSON(time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"service":       "nwws-bridge",
		"version":       version.Get().Version,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"metrics_count": len(s.registry.Snapshot()),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "ready"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": status})
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(s.startedAt).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
