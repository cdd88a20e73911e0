// Package api exposes the config flows, the config entries and the entity
// states over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gaetancollaud/integrations-mqtt/pkg/controller"
	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

const (
	maxBodySize     = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// Backend is the part of the controller used by the API.
type Backend interface {
	Hub() *core.Hub
	Flows() *core.FlowManager
	Store() core.EntryStore
	ReloadEntry(ctx context.Context, entryId string) error
	RemoveEntry(ctx context.Context, entryId string) error
	Status(entryId string) controller.EntryStatus
	States() []controller.StateChangedEvent
}

type Server struct {
	backend Backend
	port    int
	hub     *Hub

	server     *http.Server
	disconnect func()
}

func NewServer(backend Backend, port int) *Server {
	return &Server{
		backend: backend,
		port:    port,
		hub:     NewHub(),
	}
}

func (s *Server) Start() error {
	s.subscribe()
	listenAddr := fmt.Sprintf("0.0.0.0:%d", s.port)
	s.server = &http.Server{
		Addr:              listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Msgf("Starting API server on %s", listenAddr)
		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Unable to start API server")
		}
	}()
	return nil
}

func (s *Server) Stop() error {
	if s.disconnect != nil {
		s.disconnect()
	}
	s.hub.Close()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down API server: %w", err)
	}
	log.Info().Msg("API server stopped")
	return nil
}

// subscribe relays the state changes to the websocket clients.
func (s *Server) subscribe() {
	s.disconnect = s.backend.Hub().Dispatcher.Connect(controller.SignalStateChanged, func(payload interface{}) {
		s.hub.Broadcast(controller.SignalStateChanged, payload)
	})
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/integrations", s.handleListIntegrations)

		r.Route("/entries", func(r chi.Router) {
			r.Get("/", s.handleListEntries)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetEntry)
				r.Delete("/", s.handleDeleteEntry)
				r.Post("/reload", s.handleReloadEntry)
				r.Post("/options", s.handleOptionsFlow)
			})
		})

		r.Route("/flows", func(r chi.Router) {
			r.Get("/", s.handleListFlows)
			r.Post("/", s.handleInitFlow)
			r.Post("/{id}", s.handleConfigureFlow)
			r.Delete("/{id}", s.handleAbortFlow)
		})

		r.Get("/states", s.handleListStates)
		r.Get("/websocket", s.handleWebSocket)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("API request.")
	})
}
