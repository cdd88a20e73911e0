package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var (
	coordinatorUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "integrations_coordinator_updates_total",
		Help: "Number of coordinator refreshes by result.",
	}, []string{"coordinator", "result"})
	coordinatorUpdateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "integrations_coordinator_update_duration_seconds",
		Help:    "Duration of coordinator refreshes.",
		Buckets: prometheus.DefBuckets,
	}, []string{"coordinator"})
)

type UpdateMethod[T any] func(ctx context.Context) (T, error)

// Coordinator polls a data source on an interval and fans the latest
// snapshot out to its listeners. An interval of zero disables polling, data
// is then pushed with SetData.
type Coordinator[T any] struct {
	name     string
	interval time.Duration
	update   UpdateMethod[T]

	mu                sync.RWMutex
	data              T
	lastUpdateSuccess bool
	lastError         error
	lastUpdate        time.Time

	listenersMu  sync.Mutex
	listeners    map[int]func()
	nextListener int

	ticker     *time.Ticker
	tickerDone chan struct{}
}

func NewCoordinator[T any](name string, interval time.Duration, update UpdateMethod[T]) *Coordinator[T] {
	return &Coordinator[T]{
		name:      name,
		interval:  interval,
		update:    update,
		listeners: map[int]func(){},
	}
}

func (c *Coordinator[T]) Name() string {
	return c.name
}

func (c *Coordinator[T]) Interval() time.Duration {
	return c.interval
}

// Data returns the last successful snapshot.
func (c *Coordinator[T]) Data() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data
}

func (c *Coordinator[T]) LastUpdateSuccess() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdateSuccess
}

func (c *Coordinator[T]) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

func (c *Coordinator[T]) LastUpdate() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}

// Refresh runs the update method once and notifies the listeners whatever
// the outcome.
func (c *Coordinator[T]) Refresh(ctx context.Context) error {
	if c.update == nil {
		return nil
	}
	start := time.Now()
	data, err := c.update(ctx)
	coordinatorUpdateDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())

	c.mu.Lock()
	if err != nil {
		var updateFailed *UpdateFailedError
		if !errors.As(err, &updateFailed) {
			err = UpdateFailed(err, "error fetching %s data", c.name)
		}
		if c.lastUpdateSuccess || c.lastError == nil {
			log.Error().Err(err).Str("coordinator", c.name).Msg("Error updating data.")
		} else {
			log.Debug().Err(err).Str("coordinator", c.name).Msg("Update still failing.")
		}
		c.lastUpdateSuccess = false
		c.lastError = err
		coordinatorUpdates.WithLabelValues(c.name, "error").Inc()
	} else {
		if !c.lastUpdateSuccess && c.lastError != nil {
			log.Info().Str("coordinator", c.name).Msg("Fetching data recovered.")
		}
		c.data = data
		c.lastUpdateSuccess = true
		c.lastError = nil
		c.lastUpdate = time.Now()
		coordinatorUpdates.WithLabelValues(c.name, "success").Inc()
	}
	c.mu.Unlock()

	c.notify()
	return err
}

// FirstRefresh refreshes once and reports a failure as ErrNotReady so the
// entry setup can be retried later.
func (c *Coordinator[T]) FirstRefresh(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	return nil
}

// SetData replaces the data with a pushed snapshot.
func (c *Coordinator[T]) SetData(data T) {
	c.mu.Lock()
	c.data = data
	c.lastUpdateSuccess = true
	c.lastError = nil
	c.lastUpdate = time.Now()
	c.mu.Unlock()
	c.notify()
}

// SetError marks a push coordinator as failed, e.g. when the device
// connection is lost.
func (c *Coordinator[T]) SetError(err error) {
	c.mu.Lock()
	if c.lastUpdateSuccess {
		log.Error().Err(err).Str("coordinator", c.name).Msg("Device unavailable.")
	}
	c.lastUpdateSuccess = false
	c.lastError = err
	c.mu.Unlock()
	c.notify()
}

// AddListener registers a callback invoked after every refresh and returns
// the function removing it.
func (c *Coordinator[T]) AddListener(listener func()) func() {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = listener
	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Coordinator[T]) notify() {
	c.listenersMu.Lock()
	listeners := make([]func(), 0, len(c.listeners))
	// Registration order.
	for i := 0; i < c.nextListener; i++ {
		if l, ok := c.listeners[i]; ok {
			listeners = append(listeners, l)
		}
	}
	c.listenersMu.Unlock()
	for _, l := range listeners {
		l()
	}
}

// Start launches the polling loop. It does nothing for push coordinators.
func (c *Coordinator[T]) Start(ctx context.Context) {
	if c.interval <= 0 || c.ticker != nil {
		return
	}
	c.ticker = time.NewTicker(c.interval)
	c.tickerDone = make(chan struct{})
	ticker := c.ticker
	done := c.tickerDone

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = c.Refresh(ctx)
			}
		}
	}()
}

func (c *Coordinator[T]) Stop() {
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	close(c.tickerDone)
	c.ticker = nil
}
