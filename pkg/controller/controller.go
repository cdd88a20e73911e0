package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gaetancollaud/integrations-mqtt/pkg/config"
	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/gateway"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
	"github.com/gaetancollaud/integrations-mqtt/pkg/mqtt"
	"github.com/rs/zerolog/log"
)

const (
	httpTimeout       = 30 * time.Second
	retryInitialDelay = 5 * time.Second
	retryMaxDelay     = 5 * time.Minute
)

// ErrSetupInProgress is returned when an entry is set up while another
// setup of the same entry is running.
var ErrSetupInProgress = errors.New("config entry setup in progress")

type EntryState string

const (
	EntrySetupInProgress EntryState = "setup_in_progress"
	EntryLoaded          EntryState = "loaded"
	EntrySetupRetry      EntryState = "setup_retry"
	EntrySetupError      EntryState = "setup_error"
	EntryNotLoaded       EntryState = "not_loaded"
)

type EntryStatus struct {
	State  EntryState `json:"state"`
	Reason string     `json:"reason,omitempty"`
}

// EntryRuntime describes a stored entry and the state of its runtime.
type EntryRuntime struct {
	EntryId string `json:"entry_id"`
	Domain  string `json:"domain"`
	Title   string `json:"title"`
	EntryStatus
	Entities     []string `json:"entities,omitempty"`
	RetryAttempt int      `json:"retry_attempt,omitempty"`
}

type loadedEntry struct {
	entry    *core.ConfigEntry
	runtime  core.Runtime
	entities []*boundEntity
}

type pendingRetry struct {
	timer   *time.Timer
	attempt int
}

// Controller sets up the stored config entries and bridges their entities to
// MQTT.
type Controller struct {
	config     *config.Config
	mqttClient mqtt.Client
	store      core.EntryStore
	hub        *core.Hub
	discovery  *homeassistant.HomeAssistantDiscovery
	flows      *core.FlowManager

	mu      sync.Mutex
	loaded  map[string]*loadedEntry
	setting map[string]bool
	status  map[string]EntryStatus
	retries map[string]*pendingRetry
	stopped bool
}

func NewController(config *config.Config, mqttClient mqtt.Client, store core.EntryStore) *Controller {
	dispatcher := core.NewDispatcher()
	hub := &core.Hub{
		Mqtt:       mqttClient,
		Gateway:    gateway.NewClient(mqttClient, config.Gateway.TopicPrefix, dispatcher),
		HTTP:       &http.Client{Timeout: httpTimeout},
		Dispatcher: dispatcher,
		CacheDir:   config.CacheDir,
	}
	controller := &Controller{
		config:     config,
		mqttClient: mqttClient,
		store:      store,
		hub:        hub,
		discovery:  homeassistant.NewHomeAssistantDiscovery(mqttClient, &config.HomeAssistant),
		loaded:     map[string]*loadedEntry{},
		setting:    map[string]bool{},
		status:     map[string]EntryStatus{},
		retries:    map[string]*pendingRetry{},
	}
	controller.flows = core.NewFlowManager(store, controller, hub)
	return controller
}

func (c *Controller) Hub() *core.Hub {
	return c.hub
}

func (c *Controller) Flows() *core.FlowManager {
	return c.flows
}

func (c *Controller) Store() core.EntryStore {
	return c.store
}

func (c *Controller) MqttClient() mqtt.Client {
	return c.mqttClient
}

func (c *Controller) Start(ctx context.Context) error {
	log.Info().Msg("Starting controller.")
	if err := c.mqttClient.Connect(); err != nil {
		return fmt.Errorf("error connecting to MQTT client: %w", err)
	}
	if err := c.ImportEntries(ctx, c.config.Integrations); err != nil {
		return fmt.Errorf("error importing config entries: %w", err)
	}

	entries, err := c.store.List(ctx)
	if err != nil {
		return fmt.Errorf("error listing config entries: %w", err)
	}
	for _, entry := range entries {
		if err := c.SetupEntry(ctx, entry); err != nil {
			log.Error().Err(err).Str("entry", entry.EntryId).Str("domain", entry.Domain).Msg("Error setting up config entry.")
		}
	}
	return nil
}

func (c *Controller) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping controller.")
	c.mu.Lock()
	c.stopped = true
	for entryId := range c.retries {
		c.cancelRetryLocked(entryId)
	}
	ids := make([]string, 0, len(c.loaded))
	for id := range c.loaded {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		if err := c.UnloadEntry(ctx, id); err != nil {
			log.Error().Err(err).Str("entry", id).Msg("Error unloading config entry.")
		}
	}
	if err := c.mqttClient.Disconnect(); err != nil {
		return fmt.Errorf("error disconnecting to MQTT client: %w", err)
	}
	return nil
}

// SetupEntry runs the integration setup of an entry and publishes its
// entities. An entry not ready is retried with a growing delay.
func (c *Controller) SetupEntry(ctx context.Context, entry *core.ConfigEntry) error {
	integration, ok := core.Lookup(entry.Domain)
	if !ok {
		c.setStatus(entry.EntryId, EntrySetupError, "unknown integration")
		return fmt.Errorf("%w: %s", core.ErrUnknownDomain, entry.Domain)
	}

	c.mu.Lock()
	if _, ok := c.loaded[entry.EntryId]; ok {
		c.mu.Unlock()
		return fmt.Errorf("config entry '%s' is already set up", entry.EntryId)
	}
	if c.setting[entry.EntryId] {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSetupInProgress, entry.EntryId)
	}
	c.setting[entry.EntryId] = true
	c.status[entry.EntryId] = EntryStatus{State: EntrySetupInProgress}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.setting, entry.EntryId)
		c.mu.Unlock()
	}()

	log.Info().Str("entry", entry.EntryId).Str("domain", entry.Domain).Str("title", entry.Title).Msg("Setting up config entry.")
	runtime, err := integration.Setup(ctx, c.hub, entry)
	if err != nil {
		if errors.Is(err, core.ErrNotReady) {
			c.setStatus(entry.EntryId, EntrySetupRetry, err.Error())
			c.scheduleRetry(entry.EntryId)
		} else {
			c.setStatus(entry.EntryId, EntrySetupError, err.Error())
		}
		return fmt.Errorf("error setting up %s entry '%s': %w", entry.Domain, entry.Title, err)
	}

	loaded := &loadedEntry{entry: entry, runtime: runtime}
	configs := []homeassistant.DiscoveryConfig{}
	for _, entity := range runtime.Entities() {
		bound := newBoundEntity(c.mqttClient, c.hub.Dispatcher, entry.Domain, entry.EntryId, entity, c.config.Mqtt.NormalizeDeviceName)
		if err := bound.attach(); err != nil {
			log.Error().Err(err).Str("entity", bound.entityId).Msg("Error attaching entity.")
			continue
		}
		loaded.entities = append(loaded.entities, bound)
		configs = append(configs, bound.discoveryConfig())
	}
	c.discovery.AddConfigs(entry.EntryId, configs)
	if err := c.discovery.PublishDiscoveryMessages(entry.EntryId); err != nil {
		log.Error().Err(err).Str("entry", entry.EntryId).Msg("Error publishing discovery messages.")
	}

	c.mu.Lock()
	c.loaded[entry.EntryId] = loaded
	c.cancelRetryLocked(entry.EntryId)
	c.status[entry.EntryId] = EntryStatus{State: EntryLoaded}
	c.mu.Unlock()

	if c.config.RefreshAtStart {
		for _, bound := range loaded.entities {
			if err := bound.publish(); err != nil {
				log.Error().Err(err).Str("entity", bound.entityId).Msg("Error publishing entity state.")
			}
		}
	}
	log.Info().Str("entry", entry.EntryId).Int("entities", len(loaded.entities)).Msg("Config entry set up.")
	return nil
}

// UnloadEntry detaches the entities of an entry and unloads its runtime.
func (c *Controller) UnloadEntry(ctx context.Context, entryId string) error {
	c.mu.Lock()
	c.cancelRetryLocked(entryId)
	loaded, ok := c.loaded[entryId]
	delete(c.loaded, entryId)
	c.status[entryId] = EntryStatus{State: EntryNotLoaded}
	c.mu.Unlock()
	if !ok {
		return nil
	}

	for _, bound := range loaded.entities {
		bound.detach()
	}
	if err := c.discovery.RemoveDiscoveryMessages(entryId); err != nil {
		log.Error().Err(err).Str("entry", entryId).Msg("Error removing discovery messages.")
	}
	if err := loaded.runtime.Unload(ctx); err != nil {
		return fmt.Errorf("error unloading entry '%s': %w", entryId, err)
	}
	log.Info().Str("entry", entryId).Msg("Config entry unloaded.")
	return nil
}

// ReloadEntry unloads the entry and sets it up again from the store.
func (c *Controller) ReloadEntry(ctx context.Context, entryId string) error {
	entry, err := c.store.Get(ctx, entryId)
	if err != nil {
		return err
	}
	if err := c.UnloadEntry(ctx, entryId); err != nil {
		log.Error().Err(err).Str("entry", entryId).Msg("Error unloading config entry before reload.")
	}
	return c.SetupEntry(ctx, entry)
}

// RemoveEntry unloads the entry and deletes it from the store.
func (c *Controller) RemoveEntry(ctx context.Context, entryId string) error {
	if _, err := c.store.Get(ctx, entryId); err != nil {
		return err
	}
	if err := c.UnloadEntry(ctx, entryId); err != nil {
		log.Error().Err(err).Str("entry", entryId).Msg("Error unloading removed config entry.")
	}
	if err := c.store.Delete(ctx, entryId); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.status, entryId)
	c.mu.Unlock()
	log.Info().Str("entry", entryId).Msg("Config entry removed.")
	return nil
}

// Status returns the setup state of an entry.
func (c *Controller) Status(entryId string) EntryStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked(entryId)
}

func (c *Controller) statusLocked(entryId string) EntryStatus {
	if status, ok := c.status[entryId]; ok {
		return status
	}
	return EntryStatus{State: EntryNotLoaded}
}

// Runtimes lists every stored entry with its setup state, its entities and
// its pending retry.
func (c *Controller) Runtimes(ctx context.Context) ([]EntryRuntime, error) {
	entries, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	runtimes := make([]EntryRuntime, 0, len(entries))
	for _, entry := range entries {
		runtime := EntryRuntime{
			EntryId:     entry.EntryId,
			Domain:      entry.Domain,
			Title:       entry.Title,
			EntryStatus: c.statusLocked(entry.EntryId),
		}
		if loaded, ok := c.loaded[entry.EntryId]; ok {
			for _, bound := range loaded.entities {
				runtime.Entities = append(runtime.Entities, bound.entityId)
			}
		}
		if retry, ok := c.retries[entry.EntryId]; ok {
			runtime.RetryAttempt = retry.attempt
		}
		runtimes = append(runtimes, runtime)
	}
	return runtimes, nil
}

// States returns the current state of every loaded entity, sorted by entity
// id.
func (c *Controller) States() []StateChangedEvent {
	c.mu.Lock()
	entities := []*boundEntity{}
	for _, loaded := range c.loaded {
		entities = append(entities, loaded.entities...)
	}
	c.mu.Unlock()

	states := make([]StateChangedEvent, 0, len(entities))
	for _, bound := range entities {
		states = append(states, bound.snapshot())
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].EntityId < states[j].EntityId
	})
	return states
}

func (c *Controller) setStatus(entryId string, state EntryState, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status[entryId] = EntryStatus{State: state, Reason: reason}
}

func (c *Controller) scheduleRetry(entryId string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	retry, ok := c.retries[entryId]
	if !ok {
		retry = &pendingRetry{}
		c.retries[entryId] = retry
	}
	delay := retryMaxDelay
	if retry.attempt < 16 {
		if d := retryInitialDelay << retry.attempt; d < retryMaxDelay {
			delay = d
		}
	}
	retry.attempt++
	if retry.timer != nil {
		retry.timer.Stop()
	}
	log.Warn().Str("entry", entryId).Dur("delay", delay).Msg("Config entry not ready, retrying later.")
	retry.timer = time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), httpTimeout)
		defer cancel()
		entry, err := c.store.Get(ctx, entryId)
		if err != nil {
			log.Error().Err(err).Str("entry", entryId).Msg("Config entry vanished before retry.")
			return
		}
		if err := c.SetupEntry(ctx, entry); err != nil {
			log.Error().Err(err).Str("entry", entryId).Msg("Error setting up config entry.")
		}
	})
}

func (c *Controller) cancelRetryLocked(entryId string) {
	retry, ok := c.retries[entryId]
	if !ok {
		return
	}
	if retry.timer != nil {
		retry.timer.Stop()
	}
	delete(c.retries, entryId)
}
