package localtuya

import (
	"context"
	"fmt"
	"strings"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
	"github.com/spf13/cast"
)

// SwitchEntity is an on/off DP, with optional power monitoring DPs.
type SwitchEntity struct {
	core.CoordinatorEntity[DeviceState]
	device *device
	config EntityConfig
}

func (e *SwitchEntity) State() core.EntityState {
	state := ""
	if value, ok := e.device.dp(e.config.Id); ok {
		state = stateOff
		if cast.ToBool(value) {
			state = stateOn
		}
	}
	attributes := map[string]interface{}{}
	// Tuya plugs report current in mA, power in deciwatts and voltage in decivolts.
	if value, ok := e.device.dp(e.config.CurrentDp); ok {
		attributes["current"] = cast.ToInt(value)
	}
	if value, ok := e.device.dp(e.config.CurrentConsumptionDp); ok {
		attributes["current_consumption"] = cast.ToFloat64(value) / 10
	}
	if value, ok := e.device.dp(e.config.VoltageDp); ok {
		attributes["voltage"] = cast.ToFloat64(value) / 10
	}
	return core.EntityState{State: state, Attributes: attributes}
}

func (e *SwitchEntity) DiscoveryConfig(topics core.EntityTopics) homeassistant.MqttConfig {
	return &homeassistant.SwitchConfig{
		BaseConfig:   e.BaseConfig(),
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
	switch strings.ToUpper(strings.TrimSpace(payload)) {
	case stateOn:
		return e.device.setDp(ctx, e.config.Id, true)
	case stateOff:
		return e.device.setDp(ctx, e.config.Id, false)
	}
	return fmt.Errorf("%w: switch payload %s", core.ErrUnsupported, payload)
}
