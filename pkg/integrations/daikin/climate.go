package daikin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
	"github.com/rs/zerolog/log"
)

const (
	commandMode        = "mode"
	commandFanMode     = "fan_mode"
	commandSwingMode   = "swing_mode"
	commandPresetMode  = "preset_mode"
	commandTemperature = "temperature"
)

var errTemperatureOutOfRange = errors.New("temperature out of range")

// ClimateEntity controls one air conditioner.
type ClimateEntity struct {
	core.CoordinatorEntity[map[string]interface{}]
	transport Transport
	host      string
	key       string
}

func newClimateEntity(coordinator *core.Coordinator[map[string]interface{}], transport Transport, config Config) *ClimateEntity {
	status, _ := decodePort(coordinator.Data())
	return &ClimateEntity{
		CoordinatorEntity: core.NewCoordinatorEntity(coordinator, core.EntityDescription{
			UniqueId: config.DeviceApn,
			Name:     config.DeviceName,
			Domain:   homeassistant.Climate,
			Device: homeassistant.Device{
				Identifiers:  []string{config.DeviceApn},
				Name:         config.DeviceName,
				Manufacturer: "Daikin",
				Model:        "Smart AC Series",
				SwVersion:    status.FwVer,
			},
		}),
		transport: transport,
		host:      config.Host,
		key:       config.ApiKey,
	}
}

func (e *ClimateEntity) status() PortStatus {
	status, err := decodePort(e.Coordinator.Data())
	if err != nil {
		log.Warn().Err(err).Str("device", e.UniqueId()).Msg("Invalid device status.")
	}
	return status
}

func (e *ClimateEntity) State() core.EntityState {
	status := e.status()
	return core.EntityState{
		State: status.HvacMode(),
		Attributes: map[string]interface{}{
			"power":               status.Power,
			"fan_mode":            status.FanMode(),
			"swing_mode":          status.SwingMode(),
			"preset_mode":         status.PresetMode(),
			"temperature":         status.Temperature,
			"current_temperature": status.Sensors.RoomTemp,
		},
	}
}

func (e *ClimateEntity) DiscoveryConfig(topics core.EntityTopics) homeassistant.MqttConfig {
	return &homeassistant.ClimateConfig{
		BaseConfig:                 e.BaseConfig(),
		ModeCommandTopic:           topics.Command(commandMode),
		ModeStateTopic:             topics.State,
		Modes:                      hvacModeList,
		FanModeCommandTopic:        topics.Command(commandFanMode),
		FanModeStateTopic:          topics.Attributes,
		FanModeStateTemplate:       "{{ value_json.fan_mode }}",
		FanModes:                   fanModeList,
		SwingModeCommandTopic:      topics.Command(commandSwingMode),
		SwingModeStateTopic:        topics.Attributes,
		SwingModeStateTemplate:     "{{ value_json.swing_mode }}",
		SwingModes:                 []string{SwingVertical, SwingOff},
		PresetModeCommandTopic:     topics.Command(commandPresetMode),
		PresetModeStateTopic:       topics.Attributes,
		PresetModeValueTemplate:    "{{ value_json.preset_mode }}",
		PresetModes:                []string{PresetEco, PresetBoost, PresetNone},
		TemperatureCommandTopic:    topics.Command(commandTemperature),
		TemperatureStateTopic:      topics.Attributes,
		TemperatureStateTemplate:   "{{ value_json.temperature }}",
		CurrentTemperatureTopic:    topics.Attributes,
		CurrentTemperatureTemplate: "{{ value_json.current_temperature }}",
		MinTemp:                    minTemp,
		MaxTemp:                    maxTemp,
		TempStep:                   1,
		TemperatureUnit:            "C",
	}
}

func (e *ClimateEntity) Commands() []string {
	return []string{commandMode, commandFanMode, commandSwingMode, commandPresetMode, commandTemperature}
}

func (e *ClimateEntity) HandleCommand(ctx context.Context, command string, payload string) error {
	payload = strings.TrimSpace(payload)
	switch command {
	case commandMode:
		return e.SetHvacMode(ctx, payload)
	case commandFanMode:
		return e.SetFanMode(ctx, payload)
	case commandSwingMode:
		return e.SetSwingMode(ctx, payload)
	case commandPresetMode:
		return e.SetPresetMode(ctx, payload)
	case commandTemperature:
		temperature, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return fmt.Errorf("invalid temperature %q: %w", payload, err)
		}
		return e.SetTemperature(ctx, temperature)
	}
	return fmt.Errorf("%w: command %s", core.ErrUnsupported, command)
}

func (e *ClimateEntity) SetHvacMode(ctx context.Context, mode string) error {
	if mode == HvacOff {
		return e.setThingState(ctx, map[string]interface{}{"power": 0})
	}
	value, ok := hvacValues[mode]
	if !ok {
		log.Error().Msgf("Unsupported HVAC mode: %s", mode)
		return fmt.Errorf("%w: hvac mode %s", core.ErrUnsupported, mode)
	}
	return e.setThingState(ctx, map[string]interface{}{"mode": value, "power": 1})
}

func (e *ClimateEntity) SetFanMode(ctx context.Context, mode string) error {
	hvacMode := e.status().HvacMode()
	if hvacMode == HvacDry || hvacMode == HvacOff {
		log.Debug().Str("hvac_mode", hvacMode).Msg("Fan mode cannot be changed in this HVAC mode.")
		return nil
	}
	value, ok := fanValues[mode]
	if !ok {
		log.Error().Msgf("Unsupported fan mode: %s", mode)
		return fmt.Errorf("%w: fan mode %s", core.ErrUnsupported, mode)
	}
	return e.setThingState(ctx, map[string]interface{}{"fan": value})
}

func (e *ClimateEntity) SetSwingMode(ctx context.Context, mode string) error {
	switch mode {
	case SwingVertical:
		return e.setThingState(ctx, map[string]interface{}{"v_swing": 1})
	case SwingOff:
		return e.setThingState(ctx, map[string]interface{}{"v_swing": 0})
	}
	log.Error().Msgf("Unsupported swing mode: %s", mode)
	return fmt.Errorf("%w: swing mode %s", core.ErrUnsupported, mode)
}

func (e *ClimateEntity) SetPresetMode(ctx context.Context, mode string) error {
	if e.status().Power != 1 {
		log.Debug().Str("preset_mode", mode).Msg("Ignoring preset while the unit is off.")
		return nil
	}
	var powerchill, econo int
	switch mode {
	case PresetEco:
		econo = 1
	case PresetBoost:
		powerchill = 1
	case PresetNone:
	default:
		log.Error().Msgf("Unsupported preset mode: %s", mode)
		return fmt.Errorf("%w: preset mode %s", core.ErrUnsupported, mode)
	}
	return e.setThingState(ctx, map[string]interface{}{"powerchill": powerchill, "econo": econo})
}

func (e *ClimateEntity) SetTemperature(ctx context.Context, temperature float64) error {
	hvacMode := e.status().HvacMode()
	if hvacMode != HvacCool && hvacMode != HvacHeat && hvacMode != HvacAuto {
		log.Debug().Str("hvac_mode", hvacMode).Msg("Temperature cannot be set in this HVAC mode.")
		return nil
	}
	if temperature < minSetpointTemp || temperature > maxSetpointTemp {
		log.Error().Float64("temperature", temperature).Msg("Temperature out of range.")
		return fmt.Errorf("%w: %.1f not in %.0f..%.0f", errTemperatureOutOfRange, temperature, minSetpointTemp, maxSetpointTemp)
	}
	return e.setThingState(ctx, map[string]interface{}{"temperature": temperature})
}

// setThingState sends the port1 payload and applies the device response.
func (e *ClimateEntity) setThingState(ctx context.Context, values map[string]interface{}) error {
	payload := map[string]interface{}{port: values}
	response, err := e.transport.SendOperationData(ctx, e.host, e.key, payload)
	if err != nil {
		log.Error().Err(err).Str("device", e.UniqueId()).Msg("Error sending command to the device.")
		return fmt.Errorf("error sending command to %s: %w", e.Name(), err)
	}
	if _, ok := response[port]; !ok {
		// Without a status in the reply, assume the command was applied.
		response = payload
	}
	e.Coordinator.SetData(mergePort(e.Coordinator.Data(), response))
	return nil
}
