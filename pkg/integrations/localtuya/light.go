package localtuya

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
	"github.com/spf13/cast"
)

const (
	commandBrightness = "brightness"
	commandColorTemp  = "color_temp"
	commandHs         = "hs"

	stateOn  = "ON"
	stateOff = "OFF"

	modeWhite  = "white"
	modeColour = "colour"
)

// LightEntity is a dimmable, optionally coloured, bulb.
type LightEntity struct {
	core.CoordinatorEntity[DeviceState]
	device *device
	config EntityConfig
}

func newLightEntity(d *device, description core.EntityDescription, config EntityConfig) *LightEntity {
	if config.BrightnessLower <= 0 {
		config.BrightnessLower = defaultBrightnessLower
	}
	if config.BrightnessUpper <= 0 {
		config.BrightnessUpper = defaultBrightnessUpper
	}
	return &LightEntity{
		CoordinatorEntity: core.NewCoordinatorEntity(d.coordinator, description),
		device:            d,
		config:            config,
	}
}

func (e *LightEntity) isOn() (bool, bool) {
	value, ok := e.device.dp(e.config.Id)
	if !ok {
		return false, false
	}
	return cast.ToBool(value), true
}

func (e *LightEntity) colorMode() string {
	if value, ok := e.device.dp(e.config.ColorModeDp); ok {
		return cast.ToString(value)
	}
	return modeWhite
}

func (e *LightEntity) color() (Color, string, bool) {
	value, ok := e.device.dp(e.config.ColorDp)
	if !ok {
		return Color{}, "", false
	}
	color, format, err := UnpackColor(cast.ToString(value))
	if err != nil {
		return Color{}, "", false
	}
	return color, format, true
}

// Brightness on 0..255.
func (e *LightEntity) Brightness() (int, bool) {
	if e.config.ColorDp != "" && e.colorMode() == modeColour {
		if color, format, ok := e.color(); ok {
			upper := e.config.BrightnessUpper
			if format == ColorRgbHsv {
				upper = 255
			}
			return mapRange(float64(color.Value), 0, float64(upper), 0, 255), true
		}
	}
	value, ok := e.device.dp(e.config.BrightnessDp)
	if !ok {
		return 0, false
	}
	return mapRange(cast.ToFloat64(value), float64(e.config.BrightnessLower), float64(e.config.BrightnessUpper), 0, 255), true
}

// ColorTemp in mireds.
func (e *LightEntity) ColorTemp() (int, bool) {
	value, ok := e.device.dp(e.config.ColorTempDp)
	if !ok {
		return 0, false
	}
	dp := cast.ToFloat64(value)
	if e.config.ColorTempReverse {
		dp = float64(e.config.BrightnessUpper) - dp
	}
	return mapRange(dp, 0, float64(e.config.BrightnessUpper), maxMireds, minMireds), true
}

func (e *LightEntity) State() core.EntityState {
	on, known := e.isOn()
	state := ""
	if known {
		state = stateOff
		if on {
			state = stateOn
		}
	}
	attributes := map[string]interface{}{"color_mode": "brightness"}
	if brightness, ok := e.Brightness(); ok {
		attributes["brightness"] = brightness
	}
	if mireds, ok := e.ColorTemp(); ok {
		attributes["color_temp"] = mireds
		attributes["color_mode"] = "color_temp"
	}
	if e.config.ColorDp != "" && e.colorMode() == modeColour {
		if color, _, ok := e.color(); ok {
			attributes["hs_color"] = fmt.Sprintf("%.0f,%.0f", color.Hue, color.Saturation)
			attributes["color_mode"] = "hs"
		}
	}
	return core.EntityState{State: state, Attributes: attributes}
}

func (e *LightEntity) DiscoveryConfig(topics core.EntityTopics) homeassistant.MqttConfig {
	config := &homeassistant.LightConfig{
		BaseConfig:   e.BaseConfig(),
		StateTopic:   topics.State,
		CommandTopic: topics.Command(commandSet),
		PayloadOn:    stateOn,
		PayloadOff:   stateOff,
	}
	if e.config.BrightnessDp != "" || e.config.ColorDp != "" {
		config.OnCommandType = "first"
		config.BrightnessScale = 255
		config.BrightnessStateTopic = topics.Attributes
		config.BrightnessValueTemplate = "{{ value_json.brightness }}"
		config.BrightnessCommandTopic = topics.Command(commandBrightness)
	}
	if e.config.ColorTempDp != "" {
		config.ColorTempStateTopic = topics.Attributes
		config.ColorTempValueTemplate = "{{ value_json.color_temp }}"
		config.ColorTempCommandTopic = topics.Command(commandColorTemp)
		config.MinMireds = minMireds
		config.MaxMireds = maxMireds
	}
	if e.config.ColorDp != "" {
		config.HsStateTopic = topics.Attributes
		config.HsValueTemplate = "{{ value_json.hs_color }}"
		config.HsCommandTopic = topics.Command(commandHs)
	}
	return config
}

func (e *LightEntity) Commands() []string {
	commands := []string{commandSet}
	if e.config.BrightnessDp != "" || e.config.ColorDp != "" {
		commands = append(commands, commandBrightness)
	}
	if e.config.ColorTempDp != "" {
		commands = append(commands, commandColorTemp)
	}
	if e.config.ColorDp != "" {
		commands = append(commands, commandHs)
	}
	return commands
}

func (e *LightEntity) HandleCommand(ctx context.Context, command string, payload string) error {
	payload = strings.TrimSpace(payload)
	switch command {
	case commandSet:
		switch strings.ToUpper(payload) {
		case stateOn:
			return e.device.setDp(ctx, e.config.Id, true)
		case stateOff:
			return e.device.setDp(ctx, e.config.Id, false)
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
	case commandHs:
		parts := strings.Split(payload, ",")
		if len(parts) != 2 {
			return fmt.Errorf("invalid hs colour '%s'", payload)
		}
		hue, errH := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		sat, errS := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if errH != nil || errS != nil {
			return fmt.Errorf("invalid hs colour '%s'", payload)
		}
		return e.SetHs(ctx, hue, sat)
	}
	return fmt.Errorf("%w: command %s", core.ErrUnsupported, command)
}

func (e *LightEntity) SetBrightness(ctx context.Context, brightness int) error {
	dps := map[string]interface{}{e.config.Id: true}
	if e.config.ColorDp != "" && e.colorMode() == modeColour {
		if color, format, ok := e.color(); ok {
			upper := e.config.BrightnessUpper
			if format == ColorRgbHsv {
				upper = 255
			}
			color.Value = mapRange(float64(brightness), 0, 255, 0, float64(upper))
			dps[e.config.ColorDp] = PackColor(format, color, upper)
			return e.device.setDps(ctx, dps)
		}
	}
	if e.config.BrightnessDp == "" {
		return fmt.Errorf("%w: light %s is not dimmable", core.ErrUnsupported, e.Name())
	}
	dps[e.config.BrightnessDp] = mapRange(float64(brightness), 0, 255, float64(e.config.BrightnessLower), float64(e.config.BrightnessUpper))
	if e.config.ColorModeDp != "" {
		dps[e.config.ColorModeDp] = modeWhite
	}
	return e.device.setDps(ctx, dps)
}

func (e *LightEntity) SetColorTemp(ctx context.Context, mireds int) error {
	mireds = min(maxMireds, max(minMireds, mireds))
	dp := mapRange(float64(mireds), maxMireds, minMireds, 0, float64(e.config.BrightnessUpper))
	if e.config.ColorTempReverse {
		dp = e.config.BrightnessUpper - dp
	}
	dps := map[string]interface{}{e.config.Id: true, e.config.ColorTempDp: dp}
	if e.config.ColorModeDp != "" {
		dps[e.config.ColorModeDp] = modeWhite
	}
	return e.device.setDps(ctx, dps)
}

// SetHs switches to colour mode, keeping the current brightness.
func (e *LightEntity) SetHs(ctx context.Context, hue float64, saturation float64) error {
	format := ColorHsv
	upper := e.config.BrightnessUpper
	if _, current, ok := e.color(); ok && current == ColorRgbHsv {
		format, upper = ColorRgbHsv, 255
	}
	brightness, ok := e.Brightness()
	if !ok {
		brightness = 255
	}
	color := Color{Hue: hue, Saturation: saturation, Value: mapRange(float64(brightness), 0, 255, 0, float64(upper))}
	dps := map[string]interface{}{e.config.Id: true, e.config.ColorDp: PackColor(format, color, upper)}
	if e.config.ColorModeDp != "" {
		dps[e.config.ColorModeDp] = modeColour
	}
	return e.device.setDps(ctx, dps)
}
