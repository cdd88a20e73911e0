// Package hdmicec controls the devices of an HDMI-CEC bus. Frames are
// encoded by the CEC gateway which owns the adapter.
package hdmicec

import (
	"context"
	"fmt"
	"sort"

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
	return nil
}

func (integration) Setup(ctx context.Context, hub *core.Hub, entry *core.ConfigEntry) (core.Runtime, error) {
	config := defaultConfig()
	if err := core.DecodeData(entry, &config); err != nil {
		return nil, err
	}
	mapped, err := ParseMapping(config.Devices)
	if err != nil {
		return nil, fmt.Errorf("invalid devices for %s: %w", config.Adapter, err)
	}

	r := &runtime{
		transport: hub.Gateway,
		adapter:   utils.NormalizeForTopicName(config.Adapter),
	}
	reply, err := r.transport.Request(ctx, namespace, r.adapter, map[string]interface{}{
		"command":  "connect",
		"osd_name": config.OsdName,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: cec adapter %s: %w", core.ErrNotReady, config.Adapter, err)
	}
	bus, err := BusStatus{}.applyPayload(reply)
	if err != nil {
		return nil, fmt.Errorf("invalid cec bus status: %w", err)
	}

	r.coordinator = core.NewCoordinator[BusStatus](Domain+"_"+r.adapter, 0, nil)
	r.coordinator.SetData(bus)
	r.disconnect = hub.Dispatcher.Connect(gateway.Signal(namespace, r.adapter), func(payload interface{}) {
		values, ok := payload.(map[string]interface{})
		if !ok {
			return
		}
		updated, err := r.coordinator.Data().applyPayload(values)
		if err != nil {
			log.Error().Err(err).Str("adapter", config.Adapter).Msg("Invalid CEC status.")
			return
		}
		r.coordinator.SetData(updated)
	})
	if err := r.transport.Subscribe(namespace, r.adapter, nil); err != nil {
		r.disconnect()
		return nil, fmt.Errorf("error subscribing to cec status: %w", err)
	}

	for _, named := range devicesOf(mapped, bus) {
		r.entities = append(r.entities, r.deviceEntities(entry.EntryId, named)...)
	}
	return r, nil
}

// devicesOf merges the configured names with the devices found on the bus.
func devicesOf(mapped []NamedAddress, bus BusStatus) []NamedAddress {
	devices := append([]NamedAddress{}, mapped...)
	known := map[PhysicalAddress]bool{}
	for _, d := range mapped {
		known[d.Address] = true
	}
	found := []NamedAddress{}
	for key, status := range bus {
		address, err := ParsePhysicalAddress(key)
		if err != nil || known[address] {
			continue
		}
		name := status.OsdName
		if name == "" {
			name = "CEC " + utils.TitleCase(string(DeviceTypeOf(status.LogicalAddress)))
		}
		found = append(found, NamedAddress{Name: name, Address: address})
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].Address.less(found[j].Address)
	})
	return append(devices, found...)
}

func (r *runtime) deviceEntities(entryId string, named NamedAddress) []core.Entity {
	device := &cecDevice{
		coordinator: r.coordinator,
		transport:   r.transport,
		adapter:     r.adapter,
		address:     named.Address,
	}
	status, _ := device.status()
	deviceType := device.deviceType()
	idPrefix := fmt.Sprintf("%s_%s", entryId, utils.NormalizeForTopicName(named.Address.String()))
	haDevice := homeassistant.Device{
		Identifiers:  []string{idPrefix},
		Name:         named.Name,
		Manufacturer: status.Vendor,
		Model:        string(deviceType),
		SwVersion:    status.CecVersion,
	}

	entities := []core.Entity{&PowerSwitch{
		CoordinatorEntity: core.NewCoordinatorEntity(r.coordinator, core.EntityDescription{
			UniqueId: idPrefix + "_power",
			Name:     "Power",
			Domain:   homeassistant.Switch,
			Device:   haDevice,
		}),
		device: device,
	}}
	if !deviceType.IsMedia() {
		return entities
	}
	for _, key := range keysFor(deviceType) {
		entities = append(entities, &KeyButton{
			CoordinatorEntity: core.NewCoordinatorEntity(r.coordinator, core.EntityDescription{
				UniqueId: idPrefix + "_" + key,
				Name:     utils.TitleCase(key),
				Domain:   homeassistant.Button,
				Device:   haDevice,
			}),
			device: device,
			key:    key,
		})
	}
	return entities
}

type runtime struct {
	transport   gateway.Transport
	adapter     string
	coordinator *core.Coordinator[BusStatus]
	entities    []core.Entity
	disconnect  func()
}

func (r *runtime) Entities() []core.Entity {
	return r.entities
}

func (r *runtime) Unload(ctx context.Context) error {
	r.disconnect()
	if err := r.transport.Unsubscribe(namespace, r.adapter); err != nil {
		return err
	}
	return r.transport.Send(ctx, namespace, r.adapter, map[string]interface{}{"command": "disconnect"})
}

func init() {
	core.Register(integration{})
}
