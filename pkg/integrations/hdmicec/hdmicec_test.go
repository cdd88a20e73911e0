package hdmicec

import (
	"context"
	"errors"
	"testing"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/core/coretest"
	"github.com/gaetancollaud/integrations-mqtt/pkg/gateway"
	"github.com/gaetancollaud/integrations-mqtt/pkg/gateway/gatewaytest"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPadPhysicalAddress(t *testing.T) {
	address, err := PadPhysicalAddress([]int{1})
	require.NoError(t, err)
	assert.Equal(t, PhysicalAddress{1, 0, 0, 0}, address)
	assert.Equal(t, "1.0.0.0", address.String())

	address, err = PadPhysicalAddress([]int{2, 3, 1})
	require.NoError(t, err)
	assert.Equal(t, "2.3.1.0", address.String())

	address, err = PadPhysicalAddress(nil)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", address.String())

	_, err = PadPhysicalAddress([]int{1, 2, 3, 4, 5})
	assert.Error(t, err)
	_, err = PadPhysicalAddress([]int{16})
	assert.Error(t, err)
}

func TestParsePhysicalAddress(t *testing.T) {
	address, err := ParsePhysicalAddress("1.2")
	require.NoError(t, err)
	assert.Equal(t, PhysicalAddress{1, 2, 0, 0}, address)

	_, err = ParsePhysicalAddress("1.x.0.0")
	assert.Error(t, err)
	_, err = ParsePhysicalAddress("1.0.0.0.0")
	assert.Error(t, err)
}

func TestParseMapping(t *testing.T) {
	named, err := ParseMapping(map[string]interface{}{
		"2": "Blu-ray",
		"1": map[string]interface{}{
			"1": "Chromecast",
			"2": map[string]interface{}{"3": "Switch"},
		},
		"3": map[interface{}]interface{}{"4": "Console"},
	})
	require.NoError(t, err)
	assert.Equal(t, []NamedAddress{
		{Name: "Chromecast", Address: PhysicalAddress{1, 1, 0, 0}},
		{Name: "Switch", Address: PhysicalAddress{1, 2, 3, 0}},
		{Name: "Blu-ray", Address: PhysicalAddress{2, 0, 0, 0}},
		{Name: "Console", Address: PhysicalAddress{3, 4, 0, 0}},
	}, named)

	_, err = ParseMapping(map[string]interface{}{"a": "TV"})
	assert.Error(t, err)
	_, err = ParseMapping(map[string]interface{}{"1": 42})
	assert.Error(t, err)
	_, err = ParseMapping(map[string]interface{}{"1": map[string]interface{}{"1": map[string]interface{}{"1": map[string]interface{}{"1": map[string]interface{}{"1": "Deep"}}}}})
	assert.Error(t, err)
}

func TestDeviceTypeOf(t *testing.T) {
	assert.Equal(t, TypeTv, DeviceTypeOf(0))
	for _, la := range []int{1, 2, 9} {
		assert.Equal(t, TypeRecorder, DeviceTypeOf(la))
	}
	for _, la := range []int{3, 6, 7, 10} {
		assert.Equal(t, TypeTuner, DeviceTypeOf(la))
	}
	for _, la := range []int{4, 8, 11} {
		assert.Equal(t, TypePlayback, DeviceTypeOf(la))
	}
	assert.Equal(t, TypeAudio, DeviceTypeOf(5))
	assert.Equal(t, TypeOther, DeviceTypeOf(14))
	assert.False(t, TypeOther.IsMedia())
	assert.True(t, TypeAudio.IsMedia())
}

func newHub() (*core.Hub, *gatewaytest.Fake) {
	dispatcher := core.NewDispatcher()
	fake := gatewaytest.New(dispatcher)
	return &core.Hub{Gateway: fake, Dispatcher: dispatcher}, fake
}

func busReply() map[string]interface{} {
	return map[string]interface{}{
		"devices": map[string]interface{}{
			"0.0.0.0": map[string]interface{}{"logical_address": 0, "power_status": 1, "vendor": "Samsung", "osd_name": "TV"},
			"1.0.0.0": map[string]interface{}{"logical_address": 4, "power_status": 0, "osd_name": "Chromecast"},
			"2.0.0.0": map[string]interface{}{"logical_address": 14},
		},
	}
}

func setup(t *testing.T) (core.Runtime, *gatewaytest.Fake) {
	hub, fake := newHub()
	fake.Responder = func(command gatewaytest.Command) (map[string]interface{}, error) {
		return busReply(), nil
	}
	entry := core.NewConfigEntry(Domain, "HDMI-CEC cec0", "cec0", core.SourceUser, map[string]interface{}{
		confAdapter: "cec0",
		confDevices: map[string]interface{}{"1": "Living room Chromecast"},
	})
	runtime, err := integration{}.Setup(context.Background(), hub, entry)
	require.NoError(t, err)
	t.Cleanup(func() { _ = runtime.Unload(context.Background()) })
	return runtime, fake
}

func find(t *testing.T, entities []core.Entity, name string, domain homeassistant.Domain) core.Entity {
	for _, e := range entities {
		if e.Device().Name == name && e.Domain() == domain {
			return e
		}
	}
	require.Failf(t, "entity not found", "%s %s", name, domain)
	return nil
}

func TestSetupEntities(t *testing.T) {
	runtime, fake := setup(t)
	assert.True(t, fake.Subscribed(namespace, "cec0"))

	entities := runtime.Entities()
	// Mapped Chromecast (switch + 3 buttons), TV (switch + 3 buttons), other (switch).
	require.Len(t, entities, 9)
	assert.Equal(t, "Living room Chromecast", entities[0].Device().Name)

	tv := find(t, entities, "TV", homeassistant.Switch)
	assert.Equal(t, stateOff, tv.State().State)
	assert.Equal(t, "Samsung", tv.Device().Manufacturer)

	chromecast := find(t, entities, "Living room Chromecast", homeassistant.Switch)
	assert.Equal(t, stateOn, chromecast.State().State)

	other := find(t, entities, "CEC Other", homeassistant.Switch)
	assert.Equal(t, "", other.State().State)

	request := fake.Requests()[0]
	assert.Equal(t, "connect", request.Payload["command"])
	assert.Equal(t, defaultOsdName, request.Payload["osd_name"])
}

func TestPushUpdatesPowerState(t *testing.T) {
	runtime, fake := setup(t)
	tv := find(t, runtime.Entities(), "TV", homeassistant.Switch)

	changes := 0
	tv.SetOnChange(func() { changes++ })
	defer tv.SetOnChange(nil)

	fake.Push(namespace, "cec0", map[string]interface{}{
		"devices": map[string]interface{}{"0.0.0.0": map[string]interface{}{"power_status": PowerTurningOn}},
	})
	assert.Equal(t, stateOn, tv.State().State)
	assert.Equal(t, "Samsung", tv.State().Attributes["vendor"])
	assert.Equal(t, 1, changes)

	fake.Push(namespace, "cec0", map[string]interface{}{
		"devices": map[string]interface{}{"0": map[string]interface{}{"power_status": PowerTurningOff}},
	})
	assert.Equal(t, stateOff, tv.State().State)
}

func TestPowerSwitchCommands(t *testing.T) {
	runtime, fake := setup(t)
	tv := find(t, runtime.Entities(), "TV", homeassistant.Switch).(*PowerSwitch)

	require.NoError(t, tv.HandleCommand(context.Background(), commandSet, "ON"))
	sent := fake.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, map[string]interface{}{"command": "power_on", "address": "0.0.0.0"}, sent[0].Payload)
	assert.Equal(t, stateOn, tv.State().State)

	require.NoError(t, tv.HandleCommand(context.Background(), commandSet, "off"))
	assert.Equal(t, "standby", fake.Sent()[1].Payload["command"])
	assert.Equal(t, stateOff, tv.State().State)

	assert.ErrorIs(t, tv.HandleCommand(context.Background(), commandSet, "toggle"), core.ErrUnsupported)

	fake.SendErr = errors.New("bus error")
	assert.Error(t, tv.HandleCommand(context.Background(), commandSet, "ON"))
	assert.Equal(t, stateOff, tv.State().State)
}

func TestKeyButtons(t *testing.T) {
	runtime, fake := setup(t)
	keys := map[string]bool{}
	for _, e := range runtime.Entities() {
		if button, ok := e.(*KeyButton); ok && button.Device().Name == "TV" {
			keys[button.key] = true
			assert.Equal(t, homeassistant.Button, button.Domain())
		}
	}
	assert.Equal(t, map[string]bool{KeyVolumeUp: true, KeyVolumeDown: true, KeyMute: true}, keys)

	for _, e := range runtime.Entities() {
		if button, ok := e.(*KeyButton); ok && button.key == KeyPause {
			require.NoError(t, button.HandleCommand(context.Background(), commandPress, "PRESS"))
		}
	}
	sent := fake.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, map[string]interface{}{"command": "key", "key": KeyPause, "address": "1.0.0.0"}, sent[0].Payload)
}

func TestConfiguredDeviceMissingFromBus(t *testing.T) {
	hub, fake := newHub()
	fake.Responder = func(gatewaytest.Command) (map[string]interface{}, error) {
		return map[string]interface{}{"devices": map[string]interface{}{}}, nil
	}
	entry := core.NewConfigEntry(Domain, "HDMI-CEC cec0", "cec0", core.SourceUser, map[string]interface{}{
		confAdapter: "cec0",
		confDevices: map[string]interface{}{"3": "Amplifier switch"},
	})
	runtime, err := integration{}.Setup(context.Background(), hub, entry)
	require.NoError(t, err)
	defer runtime.Unload(context.Background())

	entities := runtime.Entities()
	require.Len(t, entities, 1)
	power := find(t, entities, "Amplifier switch", homeassistant.Switch)
	assert.Equal(t, string(TypeOther), power.Device().Model)
	assert.Equal(t, string(TypeOther), power.State().Attributes["type"])
}

func TestSetupNotReady(t *testing.T) {
	hub, fake := newHub()
	fake.Responder = func(gatewaytest.Command) (map[string]interface{}, error) {
		return nil, &gateway.ReplyError{Code: "timeout"}
	}
	entry := core.NewConfigEntry(Domain, "cec", "cec0", core.SourceUser, map[string]interface{}{})
	_, err := integration{}.Setup(context.Background(), hub, entry)
	assert.ErrorIs(t, err, core.ErrNotReady)
}

func TestConfigFlow(t *testing.T) {
	hub, fake := newHub()
	store := coretest.NewMemoryStore()
	flow := &configFlow{flowContext: coretest.FlowContext(Domain, core.SourceUser, store, hub)}

	result, err := flow.Step(context.Background(), "user", nil)
	require.NoError(t, err)
	assert.Equal(t, core.FlowResultForm, result.Type)

	result, err = flow.Step(context.Background(), "user", map[string]interface{}{confDevices: map[string]interface{}{"x": "TV"}})
	require.NoError(t, err)
	assert.Equal(t, "invalid_mapping", result.Errors[confDevices])

	result, err = flow.Step(context.Background(), "user", map[string]interface{}{confOsdName: "A very long OSD name"})
	require.NoError(t, err)
	assert.Equal(t, "invalid_osd_name", result.Errors[confOsdName])

	fake.Responder = func(gatewaytest.Command) (map[string]interface{}, error) {
		return nil, &gateway.ReplyError{Code: "not_found"}
	}
	result, err = flow.Step(context.Background(), "user", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "adapter_not_found", result.Errors[confAdapter])

	fake.Responder = func(gatewaytest.Command) (map[string]interface{}, error) {
		return nil, errors.New("timeout")
	}
	result, err = flow.Step(context.Background(), "user", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "cannot_connect", result.Errors["base"])

	fake.Responder = nil
	result, err = flow.Step(context.Background(), "user", map[string]interface{}{confDevices: map[string]interface{}{"1": "Chromecast"}})
	require.NoError(t, err)
	require.Equal(t, core.FlowResultCreateEntry, result.Type)
	assert.Equal(t, "HDMI-CEC cec0", result.Title)
	assert.Equal(t, defaultOsdName, result.Data[confOsdName])

	require.NoError(t, store.Add(context.Background(), core.NewConfigEntry(Domain, "HDMI-CEC cec0", "cec0", core.SourceUser, result.Data)))
	flow = &configFlow{flowContext: coretest.FlowContext(Domain, core.SourceUser, store, hub)}
	result, err = flow.Step(context.Background(), "user", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "already_configured", result.Reason)
}
