package hdmicec

import (
	"context"
	"fmt"
	"strings"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/gateway"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
	"github.com/rs/zerolog/log"
)

const (
	commandSet   = "set"
	commandPress = "press"

	stateOn  = "ON"
	stateOff = "OFF"
)

// cecDevice is one device of the bus as seen by its entities.
type cecDevice struct {
	coordinator *core.Coordinator[BusStatus]
	transport   gateway.Transport
	adapter     string
	address     PhysicalAddress
}

func (d *cecDevice) status() (DeviceStatus, bool) {
	status, ok := d.coordinator.Data()[d.address.String()]
	return status, ok
}

// deviceType is TypeOther for a device missing from the bus.
func (d *cecDevice) deviceType() DeviceType {
	status, ok := d.status()
	if !ok {
		return TypeOther
	}
	return DeviceTypeOf(status.LogicalAddress)
}

func (d *cecDevice) attributes() map[string]interface{} {
	status, _ := d.status()
	attributes := map[string]interface{}{
		"physical_address": d.address.String(),
		"logical_address":  status.LogicalAddress,
		"type":             string(d.deviceType()),
	}
	if status.Vendor != "" {
		attributes["vendor"] = status.Vendor
	}
	if status.OsdName != "" {
		attributes["osd_name"] = status.OsdName
	}
	if status.PowerStatus != nil {
		attributes["power_status"] = *status.PowerStatus
	}
	return attributes
}

func (d *cecDevice) send(ctx context.Context, command map[string]interface{}) error {
	command["address"] = d.address.String()
	return d.transport.Send(ctx, namespace, d.adapter, command)
}

// PowerSwitch turns a device on or puts it in standby.
type PowerSwitch struct {
	core.CoordinatorEntity[BusStatus]
	device *cecDevice
}

func (e *PowerSwitch) State() core.EntityState {
	status, _ := e.device.status()
	state := ""
	if status.PowerStatus != nil {
		switch *status.PowerStatus {
		case PowerOn, PowerTurningOn:
			state = stateOn
		case PowerStandby, PowerTurningOff:
			state = stateOff
		}
	}
	return core.EntityState{State: state, Attributes: e.device.attributes()}
}

func (e *PowerSwitch) DiscoveryConfig(topics core.EntityTopics) homeassistant.MqttConfig {
	return &homeassistant.SwitchConfig{
		BaseConfig:   e.BaseConfig(),
		StateTopic:   topics.State,
		CommandTopic: topics.Command(commandSet),
		PayloadOn:    stateOn,
		PayloadOff:   stateOff,
	}
}

func (e *PowerSwitch) Commands() []string {
	return []string{commandSet}
}

func (e *PowerSwitch) HandleCommand(ctx context.Context, command string, payload string) error {
	if command != commandSet {
		return fmt.Errorf("%w: command %s", core.ErrUnsupported, command)
	}
	var (
		request string
		power   int
	)
	switch strings.ToUpper(strings.TrimSpace(payload)) {
	case stateOn:
		request, power = "power_on", PowerOn
	case stateOff:
		request, power = "standby", PowerStandby
	default:
		return fmt.Errorf("%w: switch payload %s", core.ErrUnsupported, payload)
	}
	if err := e.device.send(ctx, map[string]interface{}{"command": request}); err != nil {
		return err
	}
	log.Debug().Str("address", e.device.address.String()).Str("command", request).Msg("CEC power command sent.")
	e.Coordinator.SetData(e.Coordinator.Data().withPower(e.device.address.String(), power))
	return nil
}

// Keys sent by the buttons, named after the CEC user control codes.
const (
	KeyVolumeUp   = "volume_up"
	KeyVolumeDown = "volume_down"
	KeyMute       = "mute"
	KeyPlay       = "play"
	KeyPause      = "pause"
	KeyStop       = "stop"
)

// KeyButton presses one remote control key on a device.
type KeyButton struct {
	core.CoordinatorEntity[BusStatus]
	device *cecDevice
	key    string
}

func (e *KeyButton) State() core.EntityState {
	return core.EntityState{}
}

func (e *KeyButton) DiscoveryConfig(topics core.EntityTopics) homeassistant.MqttConfig {
	return &homeassistant.ButtonConfig{
		BaseConfig:   e.BaseConfig(),
		CommandTopic: topics.Command(commandPress),
		PayloadPress: "PRESS",
	}
}

func (e *KeyButton) Commands() []string {
	return []string{commandPress}
}

func (e *KeyButton) HandleCommand(ctx context.Context, command string, payload string) error {
	if command != commandPress {
		return fmt.Errorf("%w: command %s", core.ErrUnsupported, command)
	}
	return e.device.send(ctx, map[string]interface{}{"command": "key", "key": e.key})
}

// keysFor returns the buttons exposed for a device type.
func keysFor(deviceType DeviceType) []string {
	switch deviceType {
	case TypeTv, TypeAudio:
		return []string{KeyVolumeUp, KeyVolumeDown, KeyMute}
	case TypeRecorder, TypeTuner, TypePlayback:
		return []string{KeyPlay, KeyPause, KeyStop}
	}
	return nil
}
