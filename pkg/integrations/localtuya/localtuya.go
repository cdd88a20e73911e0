// Package localtuya controls Tuya devices on the local network. The Tuya
// protocol and its encryption are handled by the Tuya gateway.
package localtuya

import (
	"context"
	"fmt"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/gateway"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
	"github.com/gaetancollaud/integrations-mqtt/pkg/utils"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

type integration struct{}

func (integration) Domain() string {
	return Domain
}

func (integration) NewConfigFlow(flowContext *core.FlowContext) core.ConfigFlow {
	return &configFlow{flowContext: flowContext}
}

func (integration) NewOptionsFlow(entry *core.ConfigEntry) core.OptionsFlow {
	return nil
}

func (integration) Setup(ctx context.Context, hub *core.Hub, entry *core.ConfigEntry) (core.Runtime, error) {
	config := Config{ProtocolVersion: defaultProtocolVersion}
	if err := core.DecodeData(entry, &config); err != nil {
		return nil, err
	}
	if config.DeviceId == "" {
		return nil, fmt.Errorf("tuya entry %s has no device_id", entry.EntryId)
	}

	r := &runtime{transport: hub.Gateway, deviceId: utils.NormalizeForTopicName(config.DeviceId)}
	reply, err := r.transport.Request(ctx, namespace, r.deviceId, map[string]interface{}{
		"command":          "connect",
		"host":             config.Host,
		"local_key":        config.LocalKey,
		"protocol_version": config.ProtocolVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: tuya device %s: %w", core.ErrNotReady, config.DeviceId, err)
	}

	r.coordinator = core.NewCoordinator[DeviceState](Domain+"_"+r.deviceId, 0, nil)
	dps, _ := cast.ToStringMapE(reply["dps"])
	r.coordinator.SetData(DeviceState{}.withDps(dps))
	d := &device{coordinator: r.coordinator, transport: r.transport, id: r.deviceId}

	r.disconnect = hub.Dispatcher.Connect(gateway.Signal(namespace, r.deviceId), func(payload interface{}) {
		if values, ok := payload.(map[string]interface{}); ok {
			d.applyPayload(values)
		}
	})
	if err := r.transport.Subscribe(namespace, r.deviceId, nil); err != nil {
		r.disconnect()
		return nil, fmt.Errorf("error subscribing to tuya device: %w", err)
	}

	haDevice := homeassistant.Device{
		Identifiers:  []string{config.DeviceId},
		Name:         config.FriendlyName,
		Manufacturer: "Tuya",
		Model:        "Protocol " + config.ProtocolVersion,
	}
	for _, entityConfig := range config.Entities {
		description := core.EntityDescription{
			UniqueId: fmt.Sprintf("local_%s_%s", config.DeviceId, entityConfig.Id),
			Name:     entityConfig.FriendlyName,
			Device:   haDevice,
		}
		switch entityConfig.Platform {
		case PlatformSwitch:
			description.Domain = homeassistant.Switch
			r.entities = append(r.entities, &SwitchEntity{
				CoordinatorEntity: core.NewCoordinatorEntity(r.coordinator, description),
				device:            d,
				config:            entityConfig,
			})
		case PlatformCover:
			description.Domain = homeassistant.Cover
			r.entities = append(r.entities, newCoverEntity(d, description, entityConfig))
		case PlatformLight:
			description.Domain = homeassistant.Light
			r.entities = append(r.entities, newLightEntity(d, description, entityConfig))
		default:
			log.Warn().Str("platform", entityConfig.Platform).Str("device_id", config.DeviceId).Msg("Unsupported Tuya platform.")
		}
	}
	return r, nil
}

type runtime struct {
	transport   gateway.Transport
	deviceId    string
	coordinator *core.Coordinator[DeviceState]
	entities    []core.Entity
	disconnect  func()
}

func (r *runtime) Entities() []core.Entity {
	return r.entities
}

func (r *runtime) Unload(ctx context.Context) error {
	r.disconnect()
	if err := r.transport.Unsubscribe(namespace, r.deviceId); err != nil {
		return err
	}
	return r.transport.Send(ctx, namespace, r.deviceId, map[string]interface{}{"command": "disconnect"})
}

func init() {
	core.Register(integration{})
}
