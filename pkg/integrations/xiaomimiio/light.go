package xiaomimiio

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
	"github.com/spf13/cast"
)

const (
	commandBrightness     = "brightness"
	commandColorTemp      = "color_temp"
	commandScene          = "scene"
	commandDelayedTurnOff = "delayed_turn_off"

	cctMin = 1
	cctMax = 100

	minMireds        = 175
	maxMiredsBulb    = 333
	maxMiredsCeiling = 370

	// A recomputed turn off time closer than this to the previous one keeps
	// the previous one.
	delayedTurnOffMaxDeviation = 4 * time.Second
)

var now = time.Now

// translate maps value from the left span onto the right span.
func translate(value float64, leftMin float64, leftMax float64, rightMin float64, rightMax float64) int {
	scaled := (value - leftMin) / (leftMax - leftMin)
	return int(rightMin + scaled*(rightMax-rightMin))
}

// LightEntity is a Philips bulb or ceiling lamp with brightness and colour
// temperature.
type LightEntity struct {
	core.CoordinatorEntity[DeviceState]
	device    *device
	maxMireds int
	ceiling   bool

	mu             sync.Mutex
	delayedTurnOff *time.Time
}

func newLightEntity(d *device, description core.EntityDescription, ceiling bool) *LightEntity {
	description.Domain = homeassistant.Light
	e := &LightEntity{
		CoordinatorEntity: core.NewCoordinatorEntity(d.coordinator, description),
		device:            d,
		maxMireds:         maxMiredsBulb,
		ceiling:           ceiling,
	}
	if ceiling {
		e.maxMireds = maxMiredsCeiling
	}
	return e
}

// Brightness on 0..255, from the device percentage.
func (e *LightEntity) Brightness() (int, bool) {
	value, ok := e.device.get("bright")
	if !ok {
		return 0, false
	}
	return int(math.Ceil(255 / 100.0 * cast.ToFloat64(value))), true
}

// ColorTemp in mireds, from the device CCT percentage.
func (e *LightEntity) ColorTemp() (int, bool) {
	value, ok := e.device.get("cct")
	if !ok {
		return 0, false
	}
	return translate(cast.ToFloat64(value), cctMin, cctMax, float64(e.maxMireds), minMireds), true
}

// turnOffAt converts the countdown into a timestamp, keeping the previous
// one while it stays within the allowed deviation.
func (e *LightEntity) turnOffAt(countdown int) *time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	if countdown <= 0 {
		e.delayedTurnOff = nil
		return nil
	}
	next := now().Truncate(time.Second).Add(time.Duration(countdown) * time.Second)
	if e.delayedTurnOff != nil {
		diff := e.delayedTurnOff.Sub(next)
		if diff > -delayedTurnOffMaxDeviation && diff < delayedTurnOffMaxDeviation {
			return e.delayedTurnOff
		}
	}
	e.delayedTurnOff = &next
	return e.delayedTurnOff
}

func (e *LightEntity) State() core.EntityState {
	state := ""
	if value, ok := e.device.get("power"); ok {
		state = stateOff
		if isOn(value) {
			state = stateOn
		}
	}
	attributes := map[string]interface{}{
		"color_mode":       "color_temp",
		"scene":            nil,
		"delayed_turn_off": nil,
	}
	if brightness, ok := e.Brightness(); ok {
		attributes["brightness"] = brightness
	}
	if mireds, ok := e.ColorTemp(); ok {
		attributes["color_temp"] = mireds
	}
	if value, ok := e.device.get("scene"); ok {
		attributes["scene"] = cast.ToInt(value)
	}
	countdown, _ := e.device.get("delayed_turn_off")
	if at := e.turnOffAt(cast.ToInt(countdown)); at != nil {
		attributes["delayed_turn_off"] = at.Format(time.RFC3339)
	}
	if e.ceiling {
		if value, ok := e.device.get("night_light_mode"); ok {
			attributes["night_light_mode"] = isOn(value)
		}
		if value, ok := e.device.get("automatic_color_temperature"); ok {
			attributes["automatic_color_temperature"] = isOn(value)
		}
	}
	return core.EntityState{State: state, Attributes: attributes}
}

func (e *LightEntity) DiscoveryConfig(topics core.EntityTopics) homeassistant.MqttConfig {
	return &homeassistant.LightConfig{
		BaseConfig:              e.BaseConfig(),
		StateTopic:              topics.State,
		CommandTopic:            topics.Command(commandSet),
		PayloadOn:               stateOn,
		PayloadOff:              stateOff,
		OnCommandType:           "first",
		BrightnessScale:         255,
		BrightnessStateTopic:    topics.Attributes,
		BrightnessValueTemplate: "{{ value_json.brightness }}",
		BrightnessCommandTopic:  topics.Command(commandBrightness),
		ColorTempStateTopic:     topics.Attributes,
		ColorTempValueTemplate:  "{{ value_json.color_temp }}",
		ColorTempCommandTopic:   topics.Command(commandColorTemp),
		MinMireds:               minMireds,
		MaxMireds:               e.maxMireds,
	}
}

func (e *LightEntity) Commands() []string {
	return []string{commandSet, commandBrightness, commandColorTemp, commandScene, commandDelayedTurnOff}
}

func (e *LightEntity) HandleCommand(ctx context.Context, command string, payload string) error {
	payload = strings.TrimSpace(payload)
	switch command {
	case commandSet:
		switch strings.ToUpper(payload) {
		case stateOn:
			return e.device.call(ctx, "set_power", []interface{}{"on"}, map[string]interface{}{"power": "on"})
		case stateOff:
			return e.device.call(ctx, "set_power", []interface{}{"off"}, map[string]interface{}{"power": "off"})
		}
		return fmt.Errorf("%w: light payload %s", core.ErrUnsupported, payload)
	case commandBrightness:
		brightness, err := strconv.Atoi(payload)
		if err != nil || brightness < 0 || brightness > 255 {
			return fmt.Errorf("invalid brightness '%s'", payload)
		}
		return e.SetBrightness(ctx, brightness)
	case commandColorTemp:
		mireds, err := strconv.Atoi(payload)
		if err != nil {
			return fmt.Errorf("invalid color temperature '%s'", payload)
		}
		return e.SetColorTemp(ctx, mireds)
	case commandScene:
		scene, err := strconv.Atoi(payload)
		if err != nil {
			return fmt.Errorf("invalid scene '%s'", payload)
		}
		scene = min(6, max(1, scene))
		return e.device.call(ctx, "apply_fixed_scene", []interface{}{scene}, map[string]interface{}{"scene": scene})
	case commandDelayedTurnOff:
		seconds, err := strconv.Atoi(payload)
		if err != nil || seconds < 0 {
			return fmt.Errorf("invalid delay '%s'", payload)
		}
		return e.device.call(ctx, "delay_off", []interface{}{seconds}, map[string]interface{}{"delayed_turn_off": seconds})
	}
	return fmt.Errorf("%w: command %s", core.ErrUnsupported, command)
}

// SetBrightness sends the brightness as a device percentage. Zero turns the
// light off.
func (e *LightEntity) SetBrightness(ctx context.Context, brightness int) error {
	if brightness == 0 {
		return e.device.call(ctx, "set_power", []interface{}{"off"}, map[string]interface{}{"power": "off"})
	}
	percent := int(math.Ceil(100 * float64(brightness) / 255.0))
	return e.device.call(ctx, "set_bright", []interface{}{percent}, map[string]interface{}{"power": "on", "bright": percent})
}

func (e *LightEntity) SetColorTemp(ctx context.Context, mireds int) error {
	mireds = min(e.maxMireds, max(minMireds, mireds))
	cct := translate(float64(mireds), float64(e.maxMireds), minMireds, cctMin, cctMax)
	return e.device.call(ctx, "set_cct", []interface{}{cct}, map[string]interface{}{"power": "on", "cct": cct})
}
