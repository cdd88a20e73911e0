package daikin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/core/coretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validKey = "SGVsbG8="

type sentCommand struct {
	host    string
	payload map[string]interface{}
}

type fakeTransport struct {
	info     map[string]map[string]interface{}
	infoErr  map[string]error
	sendErr  error
	response map[string]interface{}
	sent     []sentCommand
}

func (f *fakeTransport) GetThingInfo(ctx context.Context, host string, key string, endpoint string) (map[string]interface{}, error) {
	if err := f.infoErr[endpoint]; err != nil {
		return nil, err
	}
	return f.info[endpoint], nil
}

func (f *fakeTransport) SendOperationData(ctx context.Context, host string, key string, payload map[string]interface{}) (map[string]interface{}, error) {
	f.sent = append(f.sent, sentCommand{host: host, payload: payload})
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.response, nil
}

func (f *fakeTransport) lastPayload(t *testing.T) string {
	require.NotEmpty(t, f.sent)
	content, err := json.Marshal(f.sent[len(f.sent)-1].payload)
	require.NoError(t, err)
	return string(content)
}

func TestIsValidBase64(t *testing.T) {
	assert.True(t, IsValidBase64("SGVsbG8="))
	assert.True(t, IsValidBase64("VALIDBASE64KEY=="))
	assert.True(t, IsValidBase64("dGVzdA=="))
	assert.False(t, IsValidBase64("abcde"))
	assert.False(t, IsValidBase64("not_base64!"))
	assert.False(t, IsValidBase64("INVALID_KEY!!"))
	assert.False(t, IsValidBase64("SGVs\nbG8="))
	assert.False(t, IsValidBase64(""))
}

func newClimate(t *testing.T, port map[string]interface{}) (*ClimateEntity, *fakeTransport) {
	transport := &fakeTransport{}
	coordinator := core.NewCoordinator[map[string]interface{}]("daikin_test", 0, nil)
	coordinator.SetData(map[string]interface{}{"port1": port})
	entity := newClimateEntity(coordinator, transport, Config{
		DeviceName: "TEST DEVICE",
		ApiKey:     validKey,
		Host:       "192.168.1.100",
		DeviceApn:  "TEST_APN",
	})
	return entity, transport
}

func TestSetHvacMode(t *testing.T) {
	entity, transport := newClimate(t, map[string]interface{}{"power": 1, "mode": 3})
	cases := map[string]string{
		HvacOff:     `{"port1":{"power":0}}`,
		HvacFanOnly: `{"port1":{"mode":6,"power":1}}`,
		HvacCool:    `{"port1":{"mode":3,"power":1}}`,
		HvacDry:     `{"port1":{"mode":2,"power":1}}`,
		HvacHeat:    `{"port1":{"mode":4,"power":1}}`,
		HvacAuto:    `{"port1":{"mode":1,"power":1}}`,
	}
	for mode, expected := range cases {
		require.NoError(t, entity.HandleCommand(context.Background(), commandMode, mode))
		assert.JSONEq(t, expected, transport.lastPayload(t), mode)
		assert.Equal(t, mode, entity.State().State)
	}

	count := len(transport.sent)
	assert.ErrorIs(t, entity.HandleCommand(context.Background(), commandMode, "INVALID_MODE"), core.ErrUnsupported)
	assert.Len(t, transport.sent, count)
}

func TestSetFanMode(t *testing.T) {
	entity, transport := newClimate(t, map[string]interface{}{"power": 1, "mode": 3})
	cases := map[string]int{
		FanAuto:       17,
		FanHigh:       7,
		FanMediumHigh: 6,
		FanMedium:     5,
		FanLowMedium:  4,
		FanLow:        3,
		FanQuiet:      18,
	}
	for mode, value := range cases {
		require.NoError(t, entity.SetFanMode(context.Background(), mode))
		assert.JSONEq(t, fmt.Sprintf(`{"port1":{"fan":%d}}`, value), transport.lastPayload(t))
	}

	count := len(transport.sent)
	assert.ErrorIs(t, entity.SetFanMode(context.Background(), "INVALID_MODE"), core.ErrUnsupported)
	assert.Len(t, transport.sent, count)

	dry, transport := newClimate(t, map[string]interface{}{"power": 1, "mode": 2})
	require.NoError(t, dry.SetFanMode(context.Background(), FanMedium))
	assert.Empty(t, transport.sent)

	off, transport := newClimate(t, map[string]interface{}{"power": 0, "mode": 3})
	require.NoError(t, off.SetFanMode(context.Background(), FanMedium))
	assert.Empty(t, transport.sent)
}

func TestSetTemperature(t *testing.T) {
	entity, transport := newClimate(t, map[string]interface{}{"power": 1, "mode": 3})
	require.NoError(t, entity.HandleCommand(context.Background(), commandTemperature, "22"))
	assert.JSONEq(t, `{"port1":{"temperature":22}}`, transport.lastPayload(t))
	assert.Equal(t, 22.0, entity.State().Attributes["temperature"])

	assert.ErrorIs(t, entity.SetTemperature(context.Background(), 10), errTemperatureOutOfRange)
	assert.ErrorIs(t, entity.SetTemperature(context.Background(), 35), errTemperatureOutOfRange)
	assert.Len(t, transport.sent, 1)

	fan, transport := newClimate(t, map[string]interface{}{"power": 1, "mode": 6})
	require.NoError(t, fan.SetTemperature(context.Background(), 24))
	dry, _ := newClimate(t, map[string]interface{}{"power": 1, "mode": 2})
	require.NoError(t, dry.SetTemperature(context.Background(), 25))
	assert.Empty(t, transport.sent)

	assert.Error(t, entity.HandleCommand(context.Background(), commandTemperature, "warm"))
}

func TestSetPresetMode(t *testing.T) {
	entity, transport := newClimate(t, map[string]interface{}{"power": 1, "mode": 3})

	require.NoError(t, entity.SetPresetMode(context.Background(), PresetEco))
	assert.JSONEq(t, `{"port1":{"powerchill":0,"econo":1}}`, transport.lastPayload(t))
	assert.Equal(t, PresetEco, entity.State().Attributes["preset_mode"])

	require.NoError(t, entity.SetPresetMode(context.Background(), PresetBoost))
	assert.JSONEq(t, `{"port1":{"powerchill":1,"econo":0}}`, transport.lastPayload(t))
	assert.Equal(t, PresetBoost, entity.State().Attributes["preset_mode"])

	require.NoError(t, entity.SetPresetMode(context.Background(), PresetNone))
	assert.JSONEq(t, `{"port1":{"powerchill":0,"econo":0}}`, transport.lastPayload(t))
	assert.Equal(t, PresetNone, entity.State().Attributes["preset_mode"])

	off, transport := newClimate(t, map[string]interface{}{"power": 0})
	require.NoError(t, off.SetPresetMode(context.Background(), PresetEco))
	assert.Empty(t, transport.sent)
}

func TestSetSwingMode(t *testing.T) {
	entity, transport := newClimate(t, map[string]interface{}{"power": 1, "mode": 3})
	require.NoError(t, entity.SetSwingMode(context.Background(), SwingVertical))
	assert.JSONEq(t, `{"port1":{"v_swing":1}}`, transport.lastPayload(t))
	require.NoError(t, entity.SetSwingMode(context.Background(), SwingOff))
	assert.JSONEq(t, `{"port1":{"v_swing":0}}`, transport.lastPayload(t))
	assert.ErrorIs(t, entity.SetSwingMode(context.Background(), "INVALID_MODE"), core.ErrUnsupported)
	assert.Len(t, transport.sent, 2)
}

func TestDeviceResponseUpdatesState(t *testing.T) {
	entity, transport := newClimate(t, map[string]interface{}{"power": 0})
	transport.response = map[string]interface{}{"port1": map[string]interface{}{
		"sensors":     map[string]interface{}{"room_temp": 23},
		"temperature": 22,
		"power":       1,
		"mode":        3,
		"fan":         5,
		"v_swing":     1,
		"econo":       1,
	}}
	require.NoError(t, entity.SetHvacMode(context.Background(), HvacCool))

	state := entity.State()
	assert.Equal(t, HvacCool, state.State)
	assert.Equal(t, 22.0, state.Attributes["temperature"])
	assert.Equal(t, 23.0, state.Attributes["current_temperature"])
	assert.Equal(t, FanMedium, state.Attributes["fan_mode"])
	assert.Equal(t, SwingVertical, state.Attributes["swing_mode"])
	assert.Equal(t, PresetEco, state.Attributes["preset_mode"])
}

func TestSendFailure(t *testing.T) {
	entity, transport := newClimate(t, map[string]interface{}{"power": 1, "mode": 3})
	transport.sendErr = errors.New("decrypt failed")
	assert.Error(t, entity.SetSwingMode(context.Background(), SwingOff))
	assert.Equal(t, SwingOff, entity.State().Attributes["swing_mode"])
}

func TestStatusMapping(t *testing.T) {
	status := PortStatus{Power: 0, Mode: 3, Fan: 3}
	assert.Equal(t, HvacOff, status.HvacMode())
	assert.Equal(t, FanLow, status.FanMode())
	assert.Equal(t, SwingOff, status.SwingMode())
	assert.Equal(t, PresetNone, status.PresetMode())
	assert.Equal(t, HvacOff, mapHvacMode(99))
	assert.Equal(t, FanAuto, mapFanSpeed(99))
}

func TestDiscoveryConfig(t *testing.T) {
	entity, _ := newClimate(t, map[string]interface{}{"power": 1, "mode": 3, "fw_ver": "1.0.0"})
	assert.Equal(t, "TEST_APN", entity.UniqueId())
	assert.Equal(t, "Daikin", entity.Device().Manufacturer)
	assert.Equal(t, "1.0.0", entity.Device().SwVersion)
	assert.ElementsMatch(t, []string{commandMode, commandFanMode, commandSwingMode, commandPresetMode, commandTemperature}, entity.Commands())
}

func discoveryInput(hostname string) map[string]interface{} {
	return map[string]interface{}{
		"hostname":   hostname,
		"host":       "192.168.1.100",
		"properties": map[string]interface{}{"apn": "TEST_APN"},
	}
}

func newFlow(store *coretest.MemoryStore, transport Transport, source core.Source) *configFlow {
	return &configFlow{
		flowContext: coretest.FlowContext(Domain, source, store, &core.Hub{}),
		transport:   transport,
	}
}

func TestZeroconfFlow(t *testing.T) {
	transport := &fakeTransport{}
	flow := newFlow(coretest.NewMemoryStore(), transport, core.SourceZeroconf)

	result, err := flow.Step(context.Background(), "zeroconf", discoveryInput("TestDevice.local."))
	require.NoError(t, err)
	require.Equal(t, core.FlowResultForm, result.Type)
	assert.Equal(t, "user", result.StepId)
	assert.Equal(t, "TestDevice", result.Description["host_name"])

	result, err = flow.Step(context.Background(), "user", map[string]interface{}{confApiKey: "VALIDBASE64KEY=="})
	require.NoError(t, err)
	assert.Equal(t, "required", result.Errors[confDeviceName])

	result, err = flow.Step(context.Background(), "user", map[string]interface{}{confDeviceName: "TestDevice", confApiKey: "INVALID_KEY!!"})
	require.NoError(t, err)
	assert.Equal(t, "invalid_key", result.Errors[confApiKey])

	transport.infoErr = map[string]error{endpointStatus: errors.New("decrypt failed")}
	result, err = flow.Step(context.Background(), "user", map[string]interface{}{confDeviceName: "TestDevice", confApiKey: "VALIDBASE64KEY=="})
	require.NoError(t, err)
	assert.Equal(t, "cannot_connect", result.Errors[confApiKey])

	transport.infoErr = nil
	result, err = flow.Step(context.Background(), "user", map[string]interface{}{confDeviceName: "TestDevice", confApiKey: "VALIDBASE64KEY=="})
	require.NoError(t, err)
	require.Equal(t, core.FlowResultCreateEntry, result.Type)
	assert.Equal(t, "TestDevice (SSID: TestDevice)", result.Title)
	assert.Equal(t, map[string]interface{}{
		confDeviceName: "TestDevice",
		confApiKey:     "VALIDBASE64KEY==",
		confHost:       "192.168.1.100",
		confDeviceApn:  "TEST_APN",
		confDeviceSsid: "TestDevice",
	}, result.Data)
	assert.Equal(t, "TEST_APN", flow.flowContext.UniqueId())
}

func TestZeroconfKnownDevice(t *testing.T) {
	entry := core.NewConfigEntry(Domain, "AC", "TEST_APN", core.SourceUser, map[string]interface{}{
		confHost:      "192.168.1.100",
		confDeviceApn: "TEST_APN",
	})
	store := coretest.NewMemoryStore(entry)

	result, err := newFlow(store, &fakeTransport{}, core.SourceZeroconf).Step(context.Background(), "zeroconf", discoveryInput("testdevice.local."))
	require.NoError(t, err)
	assert.Equal(t, "already_configured", result.Reason)

	input := discoveryInput("testdevice.local.")
	input["host"] = "192.168.1.150"
	result, err = newFlow(store, &fakeTransport{}, core.SourceZeroconf).Step(context.Background(), "zeroconf", input)
	require.NoError(t, err)
	assert.Equal(t, "device_ip_updated", result.Reason)
	updated, err := store.Get(context.Background(), entry.EntryId)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.150", updated.Data[confHost])

	result, err = newFlow(store, &fakeTransport{}, core.SourceZeroconf).Step(context.Background(), "zeroconf", discoveryInput(".local."))
	require.NoError(t, err)
	assert.Equal(t, "unknown_device", result.Reason)
}

func TestManualFlow(t *testing.T) {
	previous := lookupHostname
	lookupHostname = func(context.Context, string) string { return "TestHost" }
	t.Cleanup(func() { lookupHostname = previous })

	transport := &fakeTransport{info: map[string]map[string]interface{}{
		endpointStatus: {"port1": map[string]interface{}{}},
		endpointDevice: {"apn": "TEST_APN"},
	}}
	store := coretest.NewMemoryStore()
	flow := newFlow(store, transport, core.SourceUser)

	result, err := flow.Step(context.Background(), "user", nil)
	require.NoError(t, err)
	assert.Equal(t, "manual", result.StepId)

	result, err = flow.Step(context.Background(), "manual", map[string]interface{}{confDeviceName: "TestDevice", confApiKey: validKey})
	require.NoError(t, err)
	assert.Equal(t, "required", result.Errors[confDeviceIp])

	input := map[string]interface{}{confDeviceIp: "192.168.1.100", confDeviceName: "TestDevice", confApiKey: validKey}
	result, err = flow.Step(context.Background(), "manual", input)
	require.NoError(t, err)
	require.Equal(t, core.FlowResultCreateEntry, result.Type)
	assert.Equal(t, "TestDevice (SSID: TestHost)", result.Title)
	assert.Equal(t, "192.168.1.100", result.Data[confHost])
	assert.Equal(t, "TEST_APN", result.Data[confDeviceApn])

	transport.info[endpointDevice] = map[string]interface{}{}
	result, err = flow.Step(context.Background(), "manual", map[string]interface{}{confDeviceIp: "192.168.1.100", confDeviceName: "TestDevice", confApiKey: validKey})
	require.NoError(t, err)
	assert.Equal(t, "cannot_connect", result.Errors[confDeviceIp])

	transport.info[endpointDevice] = map[string]interface{}{"apn": "TEST_APN"}
	require.NoError(t, store.Add(context.Background(), core.NewConfigEntry(Domain, "AC", "TEST_APN", core.SourceUser, map[string]interface{}{confDeviceApn: "TEST_APN"})))
	result, err = flow.Step(context.Background(), "manual", map[string]interface{}{confDeviceIp: "192.168.1.100", confDeviceName: "TestDevice", confApiKey: validKey})
	require.NoError(t, err)
	assert.Equal(t, "already_configured", result.Reason)
}

func TestReconfigureFlow(t *testing.T) {
	entry := core.NewConfigEntry(Domain, "AC", "TEST_APN", core.SourceUser, map[string]interface{}{
		confHost:      "192.168.1.100",
		confDeviceApn: "TEST_APN",
		confApiKey:    "b2xk",
	})
	store := coretest.NewMemoryStore(entry)
	transport := &fakeTransport{}
	flow := &configFlow{flowContext: coretest.ReconfigureContext(entry, store, &core.Hub{}), transport: transport}

	result, err := flow.Step(context.Background(), "reconfigure", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "required", result.Errors[confApiKey])

	result, err = flow.Step(context.Background(), "reconfigure", map[string]interface{}{confApiKey: "abcde"})
	require.NoError(t, err)
	assert.Equal(t, "invalid_key", result.Errors[confApiKey])

	transport.infoErr = map[string]error{endpointStatus: errors.New("refused")}
	result, err = flow.Step(context.Background(), "reconfigure", map[string]interface{}{confApiKey: validKey})
	require.NoError(t, err)
	assert.Equal(t, "cannot_connect", result.Errors[confApiKey])

	transport.infoErr = nil
	result, err = flow.Step(context.Background(), "reconfigure", map[string]interface{}{confApiKey: validKey})
	require.NoError(t, err)
	assert.Equal(t, "reconfigure_successful", result.Reason)
	updated, err := store.Get(context.Background(), entry.EntryId)
	require.NoError(t, err)
	assert.Equal(t, validKey, updated.Data[confApiKey])
}

func TestHttpTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Device-Key") != validKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/device":
			fmt.Fprint(w, `{"apn":"TEST_APN"}`)
		case r.Method == http.MethodPost && r.URL.Path == "/acstatus":
			body := map[string]interface{}{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.NoError(t, json.NewEncoder(w).Encode(body))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()
	host := strings.TrimPrefix(server.URL, "http://")
	transport := NewHttpTransport(server.Client())

	info, err := transport.GetThingInfo(context.Background(), host, validKey, endpointDevice)
	require.NoError(t, err)
	assert.Equal(t, "TEST_APN", info["apn"])

	reply, err := transport.SendOperationData(context.Background(), host, validKey, map[string]interface{}{"port1": map[string]interface{}{"power": 1}})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"port1": map[string]interface{}{"power": float64(1)}}, reply)

	_, err = transport.GetThingInfo(context.Background(), host, "wrong", endpointDevice)
	assert.Error(t, err)
}

func TestSetup(t *testing.T) {
	transport := &fakeTransport{info: map[string]map[string]interface{}{
		endpointStatus: {"port1": map[string]interface{}{"power": 1, "mode": 4, "fw_ver": "2.1"}},
	}}
	previous := newTransport
	newTransport = func(*core.Hub) Transport { return transport }
	t.Cleanup(func() { newTransport = previous })

	entry := core.NewConfigEntry(Domain, "AC", "TEST_APN", core.SourceUser, map[string]interface{}{
		confDeviceName: "Living room",
		confHost:       "192.168.1.100",
		confDeviceApn:  "TEST_APN",
		confApiKey:     validKey,
	})
	runtime, err := integration{}.Setup(context.Background(), &core.Hub{}, entry)
	require.NoError(t, err)
	defer runtime.Unload(context.Background())
	require.Len(t, runtime.Entities(), 1)
	assert.Equal(t, HvacHeat, runtime.Entities()[0].State().State)
	assert.True(t, runtime.Entities()[0].Available())

	transport.infoErr = map[string]error{endpointStatus: errors.New("down")}
	_, err = integration{}.Setup(context.Background(), &core.Hub{}, entry)
	assert.ErrorIs(t, err, core.ErrNotReady)
}
