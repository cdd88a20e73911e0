package xiaomimiio

import (
	"context"
	"fmt"
	"strings"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
)

// switchKind maps an on/off property on the miIO methods switching it.
type switchKind struct {
	key        string
	icon       string
	attributes []string
	set        func(on bool) (string, []interface{})
}

func setWithParam(method string) func(on bool) (string, []interface{}) {
	return func(on bool) (string, []interface{}) {
		return method, []interface{}{onOff(on)}
	}
}

var (
	mainsSwitch = switchKind{
		key:  "power",
		icon: "mdi:power-socket",
		set:  setWithParam("set_power"),
	}
	usbSwitch = switchKind{
		key:  "usb_on",
		icon: "mdi:power-socket",
		set: func(on bool) (string, []interface{}) {
			if on {
				return "set_usb_on", nil
			}
			return "set_usb_off", nil
		},
	}
	childLockSwitch = switchKind{key: "child_lock", icon: "mdi:lock", set: setWithParam("set_child_lock")}
	buzzerSwitch    = switchKind{key: "buzzer", icon: "mdi:volume-high", set: setWithParam("set_buzzer")}
	ledSwitch       = switchKind{key: "led", icon: "mdi:led-outline", set: setWithParam("set_led")}
)

// SwitchEntity is an on/off property of a plug, power strip or purifier.
type SwitchEntity struct {
	core.CoordinatorEntity[DeviceState]
	device *device
	kind   switchKind
}

func newSwitchEntity(d *device, description core.EntityDescription, kind switchKind) *SwitchEntity {
	description.Domain = homeassistant.Switch
	return &SwitchEntity{
		CoordinatorEntity: core.NewCoordinatorEntity(d.coordinator, description),
		device:            d,
		kind:              kind,
	}
}

func (e *SwitchEntity) State() core.EntityState {
	state := ""
	if value, ok := e.device.get(e.kind.key); ok {
		state = stateOff
		if isOn(value) {
			state = stateOn
		}
	}
	attributes := map[string]interface{}{}
	for _, key := range e.kind.attributes {
		if key == confModel {
			attributes[key] = e.device.model
			continue
		}
		if value, ok := e.device.get(key); ok {
			attributes[key] = value
		}
	}
	return core.EntityState{State: state, Attributes: attributes}
}

func (e *SwitchEntity) DiscoveryConfig(topics core.EntityTopics) homeassistant.MqttConfig {
	base := e.BaseConfig()
	base.Icon = e.kind.icon
	return &homeassistant.SwitchConfig{
		BaseConfig:   base,
		StateTopic:   topics.State,
		CommandTopic: topics.Command(commandSet),
		PayloadOn:    stateOn,
		PayloadOff:   stateOff,
	}
}

func (e *SwitchEntity) Commands() []string {
	return []string{commandSet}
}

func (e *SwitchEntity) HandleCommand(ctx context.Context, command string, payload string) error {
	if command != commandSet {
		return fmt.Errorf("%w: command %s", core.ErrUnsupported, command)
	}
	var on bool
	switch strings.ToUpper(strings.TrimSpace(payload)) {
	case stateOn:
		on = true
	case stateOff:
		on = false
	default:
		return fmt.Errorf("%w: switch payload %s", core.ErrUnsupported, payload)
	}
	method, params := e.kind.set(on)
	return e.device.call(ctx, method, params, map[string]interface{}{e.kind.key: on})
}
