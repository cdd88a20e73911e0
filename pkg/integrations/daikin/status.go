package daikin

import (
	"github.com/mitchellh/mapstructure"
)

// PortStatus is the state reported by the indoor unit.
type PortStatus struct {
	Power       int     `mapstructure:"power"`
	Mode        int     `mapstructure:"mode"`
	Fan         int     `mapstructure:"fan"`
	Temperature float64 `mapstructure:"temperature"`
	VSwing      int     `mapstructure:"v_swing"`
	Econo       int     `mapstructure:"econo"`
	Powerchill  int     `mapstructure:"powerchill"`
	FwVer       string  `mapstructure:"fw_ver"`
	Sensors     struct {
		RoomTemp float64 `mapstructure:"room_temp"`
	} `mapstructure:"sensors"`
}

func (s PortStatus) HvacMode() string {
	if s.Power == 0 {
		return HvacOff
	}
	return mapHvacMode(s.Mode)
}

func (s PortStatus) FanMode() string {
	return mapFanSpeed(s.Fan)
}

func (s PortStatus) SwingMode() string {
	if s.VSwing == 1 {
		return SwingVertical
	}
	return SwingOff
}

func (s PortStatus) PresetMode() string {
	switch {
	case s.Econo == 1:
		return PresetEco
	case s.Powerchill == 1:
		return PresetBoost
	default:
		return PresetNone
	}
}

// decodePort reads the port1 section of a device response.
func decodePort(data map[string]interface{}) (PortStatus, error) {
	status := PortStatus{}
	raw, ok := data[port].(map[string]interface{})
	if !ok {
		return status, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &status,
	})
	if err != nil {
		return status, err
	}
	return status, decoder.Decode(raw)
}

// mergePort overlays the port1 keys of update onto data.
func mergePort(data map[string]interface{}, update map[string]interface{}) map[string]interface{} {
	merged := map[string]interface{}{}
	current, _ := data[port].(map[string]interface{})
	for k, v := range current {
		merged[k] = v
	}
	if fresh, ok := update[port].(map[string]interface{}); ok {
		for k, v := range fresh {
			merged[k] = v
		}
	}
	return map[string]interface{}{port: merged}
}
