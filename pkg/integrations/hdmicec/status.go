package hdmicec

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
)

// DeviceStatus is what the gateway reports for one device on the bus.
type DeviceStatus struct {
	LogicalAddress int    `mapstructure:"logical_address"`
	PowerStatus    *int   `mapstructure:"power_status"`
	OsdName        string `mapstructure:"osd_name"`
	Vendor         string `mapstructure:"vendor"`
	CecVersion     string `mapstructure:"cec_version"`
}

// BusStatus maps physical addresses to device status.
type BusStatus map[string]DeviceStatus

// applyPayload returns a copy of bus updated with a gateway payload of the
// form {"devices": {"1.0.0.0": {...}}}. Keys missing from a device entry
// keep their previous value.
func (bus BusStatus) applyPayload(payload map[string]interface{}) (BusStatus, error) {
	updated := BusStatus{}
	for k, v := range bus {
		updated[k] = v
	}
	if payload["devices"] == nil {
		return updated, nil
	}
	devices, err := cast.ToStringMapE(payload["devices"])
	if err != nil {
		return nil, fmt.Errorf("invalid devices: %w", err)
	}
	for key, raw := range devices {
		address, err := ParsePhysicalAddress(key)
		if err != nil {
			return nil, err
		}
		status := updated[address.String()]
		if status.PowerStatus != nil {
			power := *status.PowerStatus
			status.PowerStatus = &power
		}
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &status,
		})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(raw); err != nil {
			return nil, fmt.Errorf("invalid status for %s: %w", key, err)
		}
		updated[address.String()] = status
	}
	return updated, nil
}

// withPower returns a copy of bus with the power status of one device set.
func (bus BusStatus) withPower(address string, power int) BusStatus {
	updated := BusStatus{}
	for k, v := range bus {
		updated[k] = v
	}
	status := updated[address]
	status.PowerStatus = &power
	updated[address] = status
	return updated
}
