// Package debug serves the sidecar used to inspect a running bridge:
// profiling, metrics, health checks and the runtime state of the config entries.
package debug

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gaetancollaud/integrations-mqtt/pkg/controller"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// EntryReporter lists the config entries with the state of their runtime.
type EntryReporter interface {
	Runtimes(ctx context.Context) ([]controller.EntryRuntime, error)
}

type Server struct {
	srv     *http.Server
	entries EntryReporter
	ready   atomic.Bool
}

func NewServer(port int, entries EntryReporter) *Server {
	s := &Server{entries: entries}
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Handler(),
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	// Readines and liveness endpoints.
	r.Get("/healthz", healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/entries", s.listEntries)
	// /debug/pprof and /debug/vars.
	r.Mount("/debug", middleware.Profiler())
	return r
}

// Start serves in the background, wg is released once the server is closed.
func (s *Server) Start(wg *sync.WaitGroup) {
	go func() {
		defer wg.Done() // Let main know we are done cleaning up

		log.Info().Msgf("Starting debug server on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Error on sidecar server for debugging")
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// healthz reports liveness.
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// readyz reports readiness.
func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	runtimes, err := s.entries.Runtimes(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Error listing entry runtimes.")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(runtimes); err != nil {
		log.Error().Err(err).Msg("Error writing entry runtimes.")
	}
}
