package xiaomimiio

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
	"github.com/spf13/cast"
)

const (
	commandPercentage = "percentage"
	commandPresetMode = "preset_mode"
)

var (
	presetModesMiio = []string{"Auto", "Silent", "Favorite", "Idle"}
	presetModesMiot = []string{"Auto", "Silent", "Favorite", "Fan"}

	// Operation modes standing for a speed, lowest first.
	speedModes = []string{"silent", "medium", "high", "strong"}
)

// rangedValueToPercentage maps value in 1..count onto 0..100.
func rangedValueToPercentage(count int, value int) int {
	return value * 100 / count
}

// percentageToRangedValue maps 0..100 onto 1..count, rounding up.
func percentageToRangedValue(count int, percentage int) int {
	return int(math.Ceil(float64(count) * float64(percentage) / 100))
}

// FanEntity is an air purifier. MIIO purifiers map the speed on their
// operation modes, MIOT purifiers on a fan level.
type FanEntity struct {
	core.CoordinatorEntity[DeviceState]
	device      *device
	miot        bool
	presetModes []string
	speedCount  int
}

func newFanEntity(d *device, description core.EntityDescription, miot bool) *FanEntity {
	description.Domain = homeassistant.Fan
	e := &FanEntity{
		CoordinatorEntity: core.NewCoordinatorEntity(d.coordinator, description),
		device:            d,
		miot:              miot,
		presetModes:       presetModesMiio,
		speedCount:        1,
	}
	if miot {
		e.presetModes = presetModesMiot
		e.speedCount = 3
	}
	return e
}

func (e *FanEntity) isOn() bool {
	value, _ := e.device.get("power")
	return isOn(value)
}

// PresetMode returns the operation mode as one of the preset modes.
func (e *FanEntity) PresetMode() (string, bool) {
	value, ok := e.device.get("mode")
	if !ok {
		return "", false
	}
	mode := cast.ToString(value)
	for _, preset := range e.presetModes {
		if strings.EqualFold(preset, mode) {
			return preset, true
		}
	}
	return "", false
}

// Percentage is only known while the purifier runs.
func (e *FanEntity) Percentage() (int, bool) {
	if !e.isOn() {
		return 0, false
	}
	if e.miot {
		level, ok := e.device.get("fan_level")
		if !ok {
			return 0, false
		}
		return rangedValueToPercentage(e.speedCount, cast.ToInt(level)), true
	}
	value, _ := e.device.get("mode")
	mode := cast.ToString(value)
	for i, speedMode := range speedModes[:e.speedCount] {
		if strings.EqualFold(speedMode, mode) {
			return rangedValueToPercentage(e.speedCount, i+1), true
		}
	}
	return 0, false
}

func (e *FanEntity) State() core.EntityState {
	state := ""
	if _, ok := e.device.get("power"); ok {
		state = stateOff
		if e.isOn() {
			state = stateOn
		}
	}
	attributes := map[string]interface{}{}
	if preset, ok := e.PresetMode(); ok {
		attributes["preset_mode"] = preset
	}
	if percentage, ok := e.Percentage(); ok {
		attributes["percentage"] = percentage
	}
	for _, key := range []string{"favorite_level", "led_brightness"} {
		if value, ok := e.device.get(key); ok {
			attributes[key] = value
		}
	}
	return core.EntityState{State: state, Attributes: attributes}
}

func (e *FanEntity) DiscoveryConfig(topics core.EntityTopics) homeassistant.MqttConfig {
	return &homeassistant.FanConfig{
		BaseConfig:              e.BaseConfig(),
		StateTopic:              topics.State,
		CommandTopic:            topics.Command(commandSet),
		PayloadOn:               stateOn,
		PayloadOff:              stateOff,
		PercentageStateTopic:    topics.Attributes,
		PercentageValueTemplate: "{{ value_json.percentage }}",
		PercentageCommandTopic:  topics.Command(commandPercentage),
		SpeedRangeMin:           1,
		SpeedRangeMax:           100,
		PresetModeStateTopic:    topics.Attributes,
		PresetModeValueTemplate: "{{ value_json.preset_mode }}",
		PresetModeCommandTopic:  topics.Command(commandPresetMode),
		PresetModes:             e.presetModes,
	}
}

func (e *FanEntity) Commands() []string {
	return []string{commandSet, commandPercentage, commandPresetMode}
}

func (e *FanEntity) HandleCommand(ctx context.Context, command string, payload string) error {
	payload = strings.TrimSpace(payload)
	switch command {
	case commandSet:
		switch strings.ToUpper(payload) {
		case stateOn:
			return e.setPower(ctx, true)
		case stateOff:
			return e.setPower(ctx, false)
		}
		return fmt.Errorf("%w: fan payload %s", core.ErrUnsupported, payload)
	case commandPercentage:
		percentage, err := strconv.Atoi(payload)
		if err != nil || percentage < 0 || percentage > 100 {
			return fmt.Errorf("invalid percentage '%s'", payload)
		}
		return e.SetPercentage(ctx, percentage)
	case commandPresetMode:
		return e.SetPresetMode(ctx, payload)
	}
	return fmt.Errorf("%w: command %s", core.ErrUnsupported, command)
}

func (e *FanEntity) setPower(ctx context.Context, on bool) error {
	return e.device.call(ctx, "set_power", []interface{}{onOff(on)}, map[string]interface{}{"power": onOff(on)})
}

// SetPercentage turns the purifier off at zero.
func (e *FanEntity) SetPercentage(ctx context.Context, percentage int) error {
	if percentage == 0 {
		return e.setPower(ctx, false)
	}
	speed := percentageToRangedValue(e.speedCount, percentage)
	if e.miot {
		return e.device.call(ctx, "set_fan_level", []interface{}{speed}, map[string]interface{}{"fan_level": speed})
	}
	mode := speedModes[speed-1]
	return e.device.call(ctx, "set_mode", []interface{}{mode}, map[string]interface{}{"mode": mode})
}

func (e *FanEntity) SetPresetMode(ctx context.Context, preset string) error {
	for _, p := range e.presetModes {
		if p == preset {
			mode := strings.ToLower(preset)
			return e.device.call(ctx, "set_mode", []interface{}{mode}, map[string]interface{}{"mode": mode})
		}
	}
	return fmt.Errorf("%w: preset mode %s", core.ErrUnsupported, preset)
}
