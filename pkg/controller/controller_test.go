package controller

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/gaetancollaud/integrations-mqtt/pkg/config"
	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/core/coretest"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
	"github.com/gaetancollaud/integrations-mqtt/pkg/mqtt/mqtttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDomain = "testlamp"

type lampEntity struct {
	core.EntityBase
	mu sync.Mutex
	on bool
}

func (l *lampEntity) State() core.EntityState {
	l.mu.Lock()
	defer l.mu.Unlock()
	state := "OFF"
	if l.on {
		state = "ON"
	}
	return core.EntityState{State: state, Attributes: map[string]interface{}{"model": "bulb"}}
}

func (l *lampEntity) DiscoveryConfig(topics core.EntityTopics) homeassistant.MqttConfig {
	return &homeassistant.SwitchConfig{
		BaseConfig:   l.BaseConfig(),
		StateTopic:   topics.State,
		CommandTopic: topics.Command("set"),
	}
}

func (l *lampEntity) Commands() []string {
	return []string{"set"}
}

func (l *lampEntity) HandleCommand(_ context.Context, command string, payload string) error {
	l.mu.Lock()
	switch payload {
	case "ON":
		l.on = true
	case "OFF":
		l.on = false
	default:
		l.mu.Unlock()
		return core.ErrUnsupported
	}
	l.mu.Unlock()
	return nil
}

type lampRuntime struct {
	entities []core.Entity
	unloaded bool
}

func (r *lampRuntime) Entities() []core.Entity {
	return r.entities
}

func (r *lampRuntime) Unload(context.Context) error {
	r.unloaded = true
	return nil
}

type lampIntegration struct {
	mu       sync.Mutex
	runtimes []*lampRuntime
	started  chan struct{}
	release  chan struct{}
}

// blockSetups makes the next setups of entries with data block=yes wait
// for release.
func (i *lampIntegration) blockSetups(started chan struct{}, release chan struct{}) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.started = started
	i.release = release
}

func (i *lampIntegration) count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.runtimes)
}

func (i *lampIntegration) Domain() string { return testDomain }

func (i *lampIntegration) NewConfigFlow(flowContext *core.FlowContext) core.ConfigFlow {
	return lampFlow{}
}

func (i *lampIntegration) NewOptionsFlow(*core.ConfigEntry) core.OptionsFlow { return nil }

func (i *lampIntegration) Setup(_ context.Context, _ *core.Hub, entry *core.ConfigEntry) (core.Runtime, error) {
	if entry.Data["fail"] == "not_ready" {
		return nil, core.ErrNotReady
	}
	if entry.Data["block"] == "yes" {
		i.mu.Lock()
		started, release := i.started, i.release
		i.mu.Unlock()
		if started != nil {
			started <- struct{}{}
			<-release
		}
	}
	lamp := &lampEntity{EntityBase: core.NewEntityBase(core.EntityDescription{
		UniqueId: "lamp 1",
		Name:     "Lamp",
		Domain:   homeassistant.Switch,
		Device:   homeassistant.Device{Identifiers: []string{"lamp-device"}, Name: "Lamp"},
	})}
	runtime := &lampRuntime{entities: []core.Entity{lamp}}
	i.mu.Lock()
	i.runtimes = append(i.runtimes, runtime)
	i.mu.Unlock()
	return runtime, nil
}

func (i *lampIntegration) last() *lampRuntime {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.runtimes[len(i.runtimes)-1]
}

type lampFlow struct{}

func (lampFlow) Step(_ context.Context, step string, input map[string]interface{}) (*core.FlowResult, error) {
	if input == nil {
		return core.ShowForm("user", core.Schema{{Key: "name", Type: core.FieldString, Required: true}}, nil), nil
	}
	return core.CreateEntry(core.InputString(input, "name"), input), nil
}

var lamps = &lampIntegration{}

func init() {
	core.Register(lamps)
}

func newTestController(t *testing.T, entries ...*core.ConfigEntry) (*Controller, *mqtttest.Client, *coretest.MemoryStore) {
	t.Helper()
	mqttClient := mqtttest.NewClient("integrations")
	store := coretest.NewMemoryStore(entries...)
	cfg := &config.Config{
		Mqtt: config.ConfigMqtt{TopicPrefix: "integrations", NormalizeDeviceName: true},
		HomeAssistant: config.ConfigHomeAssistant{
			DiscoveryEnabled:     true,
			DiscoveryTopicPrefix: "homeassistant",
		},
		RefreshAtStart: true,
	}
	return NewController(cfg, mqttClient, store), mqttClient, store
}

func TestStartSetsUpStoredEntries(t *testing.T) {
	entry := core.NewConfigEntry(testDomain, "Lamp", "lamp", core.SourceUser, nil)
	controller, mqttClient, _ := newTestController(t, entry)
	ctx := context.Background()

	require.NoError(t, controller.Start(ctx))
	assert.True(t, mqttClient.IsConnected())
	assert.Equal(t, EntryLoaded, controller.Status(entry.EntryId).State)

	state, ok := mqttClient.Last("integrations/testlamp/lamp_1/state")
	require.True(t, ok)
	assert.Equal(t, "OFF", state.Payload)
	assert.True(t, state.Retain)
	availability, ok := mqttClient.Last("integrations/testlamp/lamp_1/availability")
	require.True(t, ok)
	assert.Equal(t, "online", availability.Payload)
	attributes, ok := mqttClient.Last("integrations/testlamp/lamp_1/attributes")
	require.True(t, ok)
	assert.JSONEq(t, `{"model": "bulb"}`, attributes.Payload)

	discovery, ok := mqttClient.Last("homeassistant/switch/lamp-device/lamp_1/config")
	require.True(t, ok)
	config := map[string]interface{}{}
	require.NoError(t, json.Unmarshal([]byte(discovery.Payload), &config))
	assert.Equal(t, "integrations/testlamp/lamp_1/set", config["command_topic"])
	assert.Equal(t, "integrations/testlamp/lamp_1/attributes", config["json_attributes_topic"])
	assert.Len(t, config["availability"], 2)

	states := controller.States()
	require.Len(t, states, 1)
	assert.Equal(t, "switch.lamp_1", states[0].EntityId)
	assert.Equal(t, "OFF", states[0].State)
	assert.True(t, states[0].Available)
}

func TestCommandTopicRoutesToEntity(t *testing.T) {
	entry := core.NewConfigEntry(testDomain, "Lamp", "lamp", core.SourceUser, nil)
	controller, mqttClient, _ := newTestController(t, entry)
	require.NoError(t, controller.Start(context.Background()))

	events := []StateChangedEvent{}
	disconnect := controller.Hub().Dispatcher.Connect(SignalStateChanged, func(payload interface{}) {
		events = append(events, payload.(StateChangedEvent))
	})
	defer disconnect()

	require.True(t, mqttClient.Inject("integrations/testlamp/lamp_1/set", "ON"))
	state, _ := mqttClient.Last("integrations/testlamp/lamp_1/state")
	assert.Equal(t, "ON", state.Payload)
	require.Len(t, events, 1)
	assert.Equal(t, "ON", events[0].State)
	assert.Equal(t, entry.EntryId, events[0].EntryId)

	// Unsupported payloads are logged and change nothing.
	require.True(t, mqttClient.Inject("integrations/testlamp/lamp_1/set", "BLINK"))
	state, _ = mqttClient.Last("integrations/testlamp/lamp_1/state")
	assert.Equal(t, "ON", state.Payload)
	assert.Len(t, events, 1)
}

func TestUnloadEntryDetachesEntities(t *testing.T) {
	entry := core.NewConfigEntry(testDomain, "Lamp", "lamp", core.SourceUser, nil)
	controller, mqttClient, _ := newTestController(t, entry)
	ctx := context.Background()
	require.NoError(t, controller.Start(ctx))
	runtime := lamps.last()

	require.NoError(t, controller.UnloadEntry(ctx, entry.EntryId))
	assert.True(t, runtime.unloaded)
	assert.False(t, mqttClient.Subscribed("integrations/testlamp/lamp_1/set"))
	availability, _ := mqttClient.Last("integrations/testlamp/lamp_1/availability")
	assert.Equal(t, "offline", availability.Payload)
	discovery, _ := mqttClient.Last("homeassistant/switch/lamp-device/lamp_1/config")
	assert.Equal(t, "", discovery.Payload)
	assert.Empty(t, controller.States())
	assert.Equal(t, EntryNotLoaded, controller.Status(entry.EntryId).State)

	// Unloading twice is a no-op.
	require.NoError(t, controller.UnloadEntry(ctx, entry.EntryId))
}

func TestReloadAndRemoveEntry(t *testing.T) {
	entry := core.NewConfigEntry(testDomain, "Lamp", "lamp", core.SourceUser, nil)
	controller, _, store := newTestController(t, entry)
	ctx := context.Background()
	require.NoError(t, controller.Start(ctx))
	first := lamps.last()

	require.NoError(t, controller.ReloadEntry(ctx, entry.EntryId))
	assert.True(t, first.unloaded)
	assert.NotSame(t, first, lamps.last())
	assert.Equal(t, EntryLoaded, controller.Status(entry.EntryId).State)

	require.NoError(t, controller.RemoveEntry(ctx, entry.EntryId))
	_, err := store.Get(ctx, entry.EntryId)
	assert.ErrorIs(t, err, core.ErrUnknownEntry)
	assert.ErrorIs(t, controller.RemoveEntry(ctx, entry.EntryId), core.ErrUnknownEntry)
}

func TestSetupNotReadySchedulesRetry(t *testing.T) {
	entry := core.NewConfigEntry(testDomain, "Lamp", "lamp", core.SourceUser, map[string]interface{}{"fail": "not_ready"})
	controller, _, _ := newTestController(t)
	ctx := context.Background()

	err := controller.SetupEntry(ctx, entry)
	assert.ErrorIs(t, err, core.ErrNotReady)
	assert.Equal(t, EntrySetupRetry, controller.Status(entry.EntryId).State)
	controller.mu.Lock()
	assert.Contains(t, controller.retries, entry.EntryId)
	controller.mu.Unlock()

	require.NoError(t, controller.Stop(ctx))
	controller.mu.Lock()
	assert.Empty(t, controller.retries)
	controller.mu.Unlock()
}

func TestSetupUnknownDomain(t *testing.T) {
	entry := core.NewConfigEntry("nope", "Nope", "", core.SourceUser, nil)
	controller, _, _ := newTestController(t)
	assert.ErrorIs(t, controller.SetupEntry(context.Background(), entry), core.ErrUnknownDomain)
	assert.Equal(t, EntrySetupError, controller.Status(entry.EntryId).State)
}

func TestFlowCreatesAndSetsUpEntry(t *testing.T) {
	controller, mqttClient, store := newTestController(t)
	ctx := context.Background()

	result, err := controller.Flows().Init(ctx, testDomain, core.SourceUser, "", nil)
	require.NoError(t, err)
	require.Equal(t, core.FlowResultForm, result.Type)

	result, err = controller.Flows().Configure(ctx, result.FlowId, map[string]interface{}{"name": "Kitchen"})
	require.NoError(t, err)
	require.Equal(t, core.FlowResultCreateEntry, result.Type)

	stored, err := store.Get(ctx, result.EntryId)
	require.NoError(t, err)
	assert.Equal(t, "Kitchen", stored.Title)
	assert.Equal(t, EntryLoaded, controller.Status(result.EntryId).State)
	assert.True(t, mqttClient.Subscribed("integrations/testlamp/lamp_1/set"))
}

func TestImportEntries(t *testing.T) {
	existing := core.NewConfigEntry(testDomain, "Lamp", "kept", core.SourceUser, nil)
	controller, _, store := newTestController(t, existing)
	ctx := context.Background()

	err := controller.ImportEntries(ctx, []config.ConfigIntegration{
		{Domain: testDomain, UniqueId: "kept", Data: map[string]interface{}{"name": "ignored"}},
		{Domain: testDomain, UniqueId: "new", Data: map[string]interface{}{"name": "Hall"}, Options: map[string]interface{}{"x": 1}},
		{Domain: "unknown_domain", UniqueId: "other"},
	})
	require.NoError(t, err)

	entries, err := store.ListByDomain(ctx, testDomain)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	var imported *core.ConfigEntry
	for _, entry := range entries {
		if entry.UniqueId == "new" {
			imported = entry
		}
	}
	require.NotNil(t, imported)
	assert.Equal(t, core.SourceImport, imported.Source)
	assert.Equal(t, "Testlamp", imported.Title)
	assert.Equal(t, "Hall", imported.Data["name"])
	assert.Equal(t, 1, imported.Options["x"])

	// A second import is a no-op.
	require.NoError(t, controller.ImportEntries(ctx, []config.ConfigIntegration{{Domain: testDomain, UniqueId: "new"}}))
	entries, _ = store.ListByDomain(ctx, testDomain)
	assert.Len(t, entries, 2)
}

func TestConcurrentSetupRunsOnce(t *testing.T) {
	entry := core.NewConfigEntry(testDomain, "Slow lamp", "slow", core.SourceUser, map[string]interface{}{"block": "yes"})
	controller, _, _ := newTestController(t, entry)
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	lamps.blockSetups(started, release)
	defer lamps.blockSetups(nil, nil)
	before := lamps.count()

	errs := make(chan error, 1)
	go func() {
		errs <- controller.SetupEntry(context.Background(), entry)
	}()
	<-started
	assert.Equal(t, EntrySetupInProgress, controller.Status(entry.EntryId).State)

	err := controller.SetupEntry(context.Background(), entry)
	assert.ErrorIs(t, err, ErrSetupInProgress)

	close(release)
	require.NoError(t, <-errs)
	assert.Equal(t, before+1, lamps.count())
	assert.Equal(t, EntryLoaded, controller.Status(entry.EntryId).State)
	require.NoError(t, controller.UnloadEntry(context.Background(), entry.EntryId))
}

func TestRuntimes(t *testing.T) {
	lamp := core.NewConfigEntry(testDomain, "Lamp", "lamp", core.SourceUser, nil)
	pending := core.NewConfigEntry(testDomain, "Pending", "pending", core.SourceUser, map[string]interface{}{"fail": "not_ready"})
	controller, _, _ := newTestController(t, lamp, pending)
	ctx := context.Background()
	require.NoError(t, controller.Start(ctx))
	defer controller.Stop(ctx)

	runtimes, err := controller.Runtimes(ctx)
	require.NoError(t, err)
	require.Len(t, runtimes, 2)
	byId := map[string]EntryRuntime{}
	for _, runtime := range runtimes {
		byId[runtime.EntryId] = runtime
	}

	loaded := byId[lamp.EntryId]
	assert.Equal(t, testDomain, loaded.Domain)
	assert.Equal(t, EntryLoaded, loaded.State)
	assert.Equal(t, []string{"switch.lamp_1"}, loaded.Entities)
	assert.Zero(t, loaded.RetryAttempt)

	retrying := byId[pending.EntryId]
	assert.Equal(t, "Pending", retrying.Title)
	assert.Equal(t, EntrySetupRetry, retrying.State)
	assert.Empty(t, retrying.Entities)
	assert.Equal(t, 1, retrying.RetryAttempt)
}
