package xiaomimiio

import (
	"context"
	"fmt"
	"strings"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/gateway"
	"github.com/spf13/cast"
)

// DeviceState is the last status reported by a device. Gateways also carry
// the status of their sub-devices keyed by sid.
type DeviceState struct {
	Status     map[string]interface{}
	Subdevices map[string]map[string]interface{}
}

func (s DeviceState) Get(key string) (interface{}, bool) {
	v, ok := s.Status[key]
	return v, ok
}

func (s DeviceState) Subdevice(sid string, key string) (interface{}, bool) {
	v, ok := s.Subdevices[sid][key]
	return v, ok
}

// merged returns a copy of the state with the given values replaced.
func (s DeviceState) merged(status map[string]interface{}, subdevices map[string]interface{}) DeviceState {
	result := DeviceState{
		Status:     make(map[string]interface{}, len(s.Status)+len(status)),
		Subdevices: make(map[string]map[string]interface{}, len(s.Subdevices)),
	}
	for k, v := range s.Status {
		result.Status[k] = v
	}
	for k, v := range status {
		result.Status[k] = v
	}
	for sid, values := range s.Subdevices {
		result.Subdevices[sid] = values
	}
	for sid, raw := range subdevices {
		values, err := cast.ToStringMapE(raw)
		if err != nil {
			continue
		}
		copied := map[string]interface{}{}
		for k, v := range result.Subdevices[sid] {
			copied[k] = v
		}
		for k, v := range values {
			copied[k] = v
		}
		result.Subdevices[sid] = copied
	}
	return result
}

// isOn reads an on/off property, reported either as a bool or as "on"/"off".
func isOn(value interface{}) bool {
	if s, ok := value.(string); ok {
		return strings.EqualFold(s, "on")
	}
	return cast.ToBool(value)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// device is the handle shared by the entities of one miIO device.
type device struct {
	coordinator *core.Coordinator[DeviceState]
	transport   gateway.Transport
	id          string
	model       string
}

func (d *device) state() DeviceState {
	return d.coordinator.Data()
}

func (d *device) get(key string) (interface{}, bool) {
	return d.state().Get(key)
}

// call runs a miIO method on the device and applies the expected status
// change locally.
func (d *device) call(ctx context.Context, method string, params []interface{}, expected map[string]interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	if err := d.transport.Send(ctx, namespace, d.id, map[string]interface{}{
		"command": "call",
		"method":  method,
		"params":  params,
	}); err != nil {
		return fmt.Errorf("error calling %s on %s: %w", method, d.id, err)
	}
	if len(expected) > 0 {
		d.coordinator.SetData(d.state().merged(expected, nil))
	}
	return nil
}

// applyPayload handles a gateway push
// {"connected": bool, "status": {...}, "subdevices": {"<sid>": {...}}}.
func (d *device) applyPayload(payload map[string]interface{}) {
	if connected, ok := payload["connected"]; ok && !cast.ToBool(connected) {
		d.coordinator.SetError(fmt.Errorf("%w: miio device %s disconnected", core.ErrCannotConnect, d.id))
		return
	}
	status, err := cast.ToStringMapE(payload["status"])
	if err != nil {
		status = map[string]interface{}{}
	}
	subdevices, err := cast.ToStringMapE(payload["subdevices"])
	if err != nil {
		subdevices = map[string]interface{}{}
	}
	d.coordinator.SetData(d.state().merged(status, subdevices))
}
