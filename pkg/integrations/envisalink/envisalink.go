// Package envisalink exposes alarm panels reached through an Envisalink
// module. The TPI protocol itself is spoken by the gateway.
package envisalink

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/gateway"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
	"github.com/gaetancollaud/integrations-mqtt/pkg/utils"
	"github.com/rs/zerolog/log"
)

type integration struct{}

func (integration) Domain() string {
	return Domain
}

func (integration) NewConfigFlow(flowContext *core.FlowContext) core.ConfigFlow {
	return &configFlow{flowContext: flowContext}
}

func (integration) NewOptionsFlow(entry *core.ConfigEntry) core.OptionsFlow {
	return &optionsFlow{entry: entry}
}

func (integration) Setup(ctx context.Context, hub *core.Hub, entry *core.ConfigEntry) (core.Runtime, error) {
	config := defaultConfig()
	if err := core.DecodeData(entry, &config); err != nil {
		return nil, err
	}
	zones, ok := ParseRangeString(config.ZoneSet, 1, maxZones(config.EvlVersion))
	if !ok {
		return nil, fmt.Errorf("invalid zone set '%s'", config.ZoneSet)
	}
	partitions, ok := ParseRangeString(config.PartitionSet, 1, maxPartitions)
	if !ok {
		return nil, fmt.Errorf("invalid partition set '%s'", config.PartitionSet)
	}

	r := &runtime{
		transport: hub.Gateway,
		device:    utils.NormalizeForTopicName(config.Host),
	}
	_, err := r.transport.Request(ctx, namespace, r.device, map[string]interface{}{
		"command":            "connect",
		"host":               config.Host,
		"port":               config.Port,
		"user_name":          config.UserName,
		"password":           config.Password,
		"panel_type":         config.PanelType,
		"evl_version":        config.EvlVersion,
		"keepalive_interval": config.KeepaliveInterval,
		"zones":              zones,
		"partitions":         partitions,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: envisalink %s: %w", core.ErrNotReady, config.Host, err)
	}

	r.coordinator = core.NewCoordinator[PanelStatus](Domain+"_"+r.device, 0, nil)
	r.disconnect = hub.Dispatcher.Connect(gateway.Signal(namespace, r.device), func(payload interface{}) {
		values, ok := payload.(map[string]interface{})
		if !ok {
			return
		}
		status, err := decodeStatus(values)
		if err != nil {
			log.Error().Err(err).Str("host", config.Host).Msg("Invalid envisalink status.")
			return
		}
		if !status.Connected {
			r.coordinator.SetError(fmt.Errorf("%w: envisalink %s disconnected", core.ErrCannotConnect, config.Host))
			return
		}
		r.coordinator.SetData(status)
	})
	if err := r.transport.Subscribe(namespace, r.device, nil); err != nil {
		r.disconnect()
		return nil, fmt.Errorf("error subscribing to envisalink status: %w", err)
	}

	device := homeassistant.Device{
		Identifiers:  []string{entry.EntryId},
		Name:         config.AlarmName,
		Manufacturer: "EyezOn",
		Model:        "Envisalink " + strconv.Itoa(config.EvlVersion) + " (" + config.PanelType + ")",
	}
	for _, partition := range partitions {
		r.entities = append(r.entities,
			newPartitionEntity(r.coordinator, r.transport, entry.EntryId, device, r.device, partition, config),
			newKeypadEntity(r.coordinator, entry.EntryId, device, partition, config))
	}
	for _, zone := range zones {
		r.entities = append(r.entities, newZoneEntity(r.coordinator, entry.EntryId, device, zone, config))
	}
	return r, nil
}

type runtime struct {
	transport   gateway.Transport
	device      string
	coordinator *core.Coordinator[PanelStatus]
	entities    []core.Entity
	disconnect  func()
}

func (r *runtime) Entities() []core.Entity {
	return r.entities
}

func (r *runtime) Unload(ctx context.Context) error {
	r.disconnect()
	if err := r.transport.Unsubscribe(namespace, r.device); err != nil {
		return err
	}
	return r.transport.Send(ctx, namespace, r.device, map[string]interface{}{"command": "disconnect"})
}

func init() {
	core.Register(integration{})
}
