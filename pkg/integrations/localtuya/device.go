package localtuya

import (
	"context"
	"fmt"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/gateway"
	"github.com/spf13/cast"
)

// DeviceState holds the last known value of every DP of a device.
type DeviceState struct {
	Dps map[string]interface{}
}

func (s DeviceState) Get(dp string) (interface{}, bool) {
	v, ok := s.Dps[dp]
	return v, ok
}

// withDps returns a copy of the state with the given DPs replaced.
func (s DeviceState) withDps(dps map[string]interface{}) DeviceState {
	merged := make(map[string]interface{}, len(s.Dps)+len(dps))
	for k, v := range s.Dps {
		merged[k] = v
	}
	for k, v := range dps {
		merged[k] = v
	}
	return DeviceState{Dps: merged}
}

// device is the handle shared by the entities of one Tuya device.
type device struct {
	coordinator *core.Coordinator[DeviceState]
	transport   gateway.Transport
	id          string
}

func (d *device) state() DeviceState {
	return d.coordinator.Data()
}

func (d *device) dp(id string) (interface{}, bool) {
	if id == "" {
		return nil, false
	}
	return d.state().Get(id)
}

// setDps writes DPs on the device and applies them to the local state.
func (d *device) setDps(ctx context.Context, dps map[string]interface{}) error {
	if err := d.transport.Send(ctx, namespace, d.id, map[string]interface{}{
		"command": "set_dps",
		"dps":     dps,
	}); err != nil {
		return fmt.Errorf("error setting dps on %s: %w", d.id, err)
	}
	d.coordinator.SetData(d.state().withDps(dps))
	return nil
}

func (d *device) setDp(ctx context.Context, id string, value interface{}) error {
	return d.setDps(ctx, map[string]interface{}{id: value})
}

// applyPayload handles a gateway push {"connected": bool, "dps": {...}}.
func (d *device) applyPayload(payload map[string]interface{}) {
	if connected, ok := payload["connected"]; ok && !cast.ToBool(connected) {
		d.coordinator.SetError(fmt.Errorf("%w: tuya device %s disconnected", core.ErrCannotConnect, d.id))
		return
	}
	dps, err := cast.ToStringMapE(payload["dps"])
	if err != nil {
		dps = map[string]interface{}{}
	}
	d.coordinator.SetData(d.state().withDps(dps))
}
