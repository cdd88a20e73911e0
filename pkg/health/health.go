package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gaetancollaud/integrations-mqtt/pkg/mqtt"
	"github.com/go-chi/chi/v5"
	healthgo "github.com/hellofresh/health-go/v5"
	"github.com/rs/zerolog/log"
)

type Health interface {
	Start() error
	Stop() error
	Handler() http.Handler
}

// Checker is a dependency whose health is checked, e.g. the entry store.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

type health struct {
	port   int
	health *healthgo.Health

	server *http.Server
}

func NewHealth(port int, version string, mqttClient mqtt.Client, database Checker) (Health, error) {
	h, err := healthgo.New(healthgo.WithComponent(healthgo.Component{
		Name:    "integrations-mqtt",
		Version: version,
	}))
	if err != nil {
		return nil, fmt.Errorf("error creating health checks: %w", err)
	}

	err = h.Register(healthgo.Config{
		Name:      "mqtt",
		Timeout:   time.Second * 2,
		SkipOnErr: false,
		Check: func(ctx context.Context) error {
			if mqttClient.IsConnected() {
				log.Trace().Msg("MQTT client is connected")
				return nil
			}
			return errors.New("MQTT client is not connected")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to register MQTT healthcheck: %w", err)
	}
	if database != nil {
		err = h.Register(healthgo.Config{
			Name:      "database",
			Timeout:   time.Second * 2,
			SkipOnErr: false,
			Check:     database.HealthCheck,
		})
		if err != nil {
			return nil, fmt.Errorf("unable to register database healthcheck: %w", err)
		}
	}

	return &health{
		port:   port,
		health: h,
	}, nil
}

func (h *health) Start() error {
	listenAddr := fmt.Sprintf("0.0.0.0:%d", h.port)
	h.server = &http.Server{Addr: listenAddr, Handler: h.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Msgf("Starting health check server on %s", listenAddr)
		err := h.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Unable to start health check server")
		}
	}()
	return nil
}

func (h *health) Stop() error {
	if h.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		return err
	}
	log.Info().Msg("Health check server stopped")
	return nil
}

func (h *health) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", h.health.HandlerFunc)
	r.Get("/health/ready", h.health.HandlerFunc)
	r.Get("/health/live", h.health.HandlerFunc)
	return r
}
