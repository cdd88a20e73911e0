// Package xiaomimiio controls Xiaomi devices speaking the miIO protocol:
// plugs, power strips, Philips lights, air purifiers, air quality monitors
// and the sub-devices of Aqara gateways. The encrypted UDP protocol is
// handled by the miIO gateway.
package xiaomimiio

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
	return &optionsFlow{entry: entry}
}

func (integration) Setup(ctx context.Context, hub *core.Hub, entry *core.ConfigEntry) (core.Runtime, error) {
	config := Config{FlowType: flowTypeDevice}
	if err := core.DecodeData(entry, &config); err != nil {
		return nil, err
	}
	if config.Host == "" || config.Token == "" {
		return nil, fmt.Errorf("miio entry %s has no host or token", entry.EntryId)
	}
	if !supportedModel(config.Model) {
		return nil, fmt.Errorf("%w: miio model %s", core.ErrUnsupported, config.Model)
	}
	uniqueId := entry.UniqueId
	if uniqueId == "" {
		uniqueId = config.Host
	}

	r := &runtime{transport: hub.Gateway, deviceId: utils.NormalizeForTopicName(uniqueId)}
	request := map[string]interface{}{
		"command": "connect",
		"host":    config.Host,
		"token":   config.Token,
		"model":   config.Model,
	}
	gatewayEntry := config.FlowType == flowTypeGateway || isGatewayModel(config.Model)
	if gatewayEntry && config.CloudSubdevices {
		request[confCloudUsername] = config.CloudUsername
		request[confCloudPassword] = config.CloudPassword
		request[confCloudCountry] = config.CloudCountry
	}
	reply, err := r.transport.Request(ctx, namespace, r.deviceId, request)
	if err != nil {
		return nil, fmt.Errorf("%w: miio device %s: %w", core.ErrNotReady, config.Host, err)
	}

	r.coordinator = core.NewCoordinator[DeviceState](Domain+"_"+r.deviceId, 0, nil)
	d := &device{coordinator: r.coordinator, transport: r.transport, id: r.deviceId, model: config.Model}
	status, _ := cast.ToStringMapE(reply["status"])
	subdevices := map[string]interface{}{}
	for _, raw := range cast.ToSlice(reply["subdevices"]) {
		sub := cast.ToStringMap(raw)
		if sid := cast.ToString(sub["sid"]); sid != "" {
			subdevices[sid] = sub["status"]
		}
	}
	r.coordinator.SetData(DeviceState{}.merged(status, subdevices))

	r.disconnect = hub.Dispatcher.Connect(gateway.Signal(namespace, r.deviceId), func(payload interface{}) {
		if values, ok := payload.(map[string]interface{}); ok {
			d.applyPayload(values)
		}
	})
	if err := r.transport.Subscribe(namespace, r.deviceId, nil); err != nil {
		r.disconnect()
		return nil, fmt.Errorf("error subscribing to miio device: %w", err)
	}

	haDevice := homeassistant.Device{
		Identifiers:  []string{uniqueId},
		Name:         entry.Title,
		Manufacturer: "Xiaomi",
		Model:        config.Model,
		SwVersion:    cast.ToString(reply["fw_ver"]),
	}
	describe := func(id string, name string) core.EntityDescription {
		return core.EntityDescription{UniqueId: id, Name: name, Device: haDevice}
	}

	switch modelFamily(config.Model) {
	case familyPlugUsb:
		r.entities = append(r.entities,
			newSwitchEntity(d, describe(uniqueId, entry.Title), mainsSwitch),
			newSwitchEntity(d, describe(uniqueId+"-usb", entry.Title+" USB"), usbSwitch))
	case familyPlug:
		kind := mainsSwitch
		kind.attributes = []string{"temperature", confModel}
		r.entities = append(r.entities, newSwitchEntity(d, describe(uniqueId, entry.Title), kind))
	case familyPowerStrip:
		kind := mainsSwitch
		kind.attributes = []string{"temperature", "load_power", "wifi_led", "power_price"}
		if config.Model == "qmi.powerstrip.v1" {
			kind.attributes = append(kind.attributes, "power_mode")
		}
		r.entities = append(r.entities, newSwitchEntity(d, describe(uniqueId, entry.Title), kind))
	case familyLightBulb, familyLightCeiling:
		ceiling := modelFamily(config.Model) == familyLightCeiling
		r.entities = append(r.entities, newLightEntity(d, describe(uniqueId, entry.Title), ceiling))
	case familyPurifierMiio, familyPurifierMiot:
		miot := modelFamily(config.Model) == familyPurifierMiot
		r.entities = append(r.entities, newFanEntity(d, describe(uniqueId, entry.Title), miot))
		for _, kind := range []switchKind{childLockSwitch, buzzerSwitch, ledSwitch} {
			if _, ok := status[kind.key]; ok {
				r.entities = append(r.entities, newSwitchEntity(d, describe(kind.key+"_"+uniqueId, entry.Title+" "+utils.TitleCase(kind.key)), kind))
			}
		}
		for _, kind := range purifierSensors {
			if _, ok := status[kind.key]; ok {
				r.entities = append(r.entities, newSensorEntity(d, describe(kind.key+"_"+uniqueId, entry.Title+" "+kind.name), kind, ""))
			}
		}
	case familyAirMonitor:
		r.entities = append(r.entities, newSensorEntity(d, describe(uniqueId, entry.Title), airMonitorSensor, ""))
	default:
		r.entities = append(r.entities, subdeviceEntities(d, haDevice, reply)...)
	}
	return r, nil
}

// subdeviceEntities exposes the sensors of the gateway sub-devices listed
// in the connect reply.
func subdeviceEntities(d *device, gatewayDevice homeassistant.Device, reply map[string]interface{}) []core.Entity {
	entities := []core.Entity{}
	for _, raw := range cast.ToSlice(reply["subdevices"]) {
		sub := cast.ToStringMap(raw)
		sid := cast.ToString(sub["sid"])
		if sid == "" {
			continue
		}
		name := cast.ToString(sub["name"])
		if name == "" {
			name = sid
		}
		subDevice := homeassistant.Device{
			Identifiers:  []string{sid},
			Name:         name,
			Manufacturer: "Xiaomi",
			Model:        cast.ToString(sub["model"]),
			ViaDevice:    gatewayDevice.Identifiers[0],
		}
		status := cast.ToStringMap(sub["status"])
		for _, kind := range subdeviceSensors {
			if _, ok := status[kind.key]; !ok {
				continue
			}
			entities = append(entities, newSensorEntity(d, core.EntityDescription{
				UniqueId: kind.key + "_" + sid,
				Name:     name + " " + kind.name,
				Device:   subDevice,
			}, kind, sid))
		}
		if len(status) == 0 {
			log.Debug().Str("sid", sid).Msg("Gateway sub-device without status.")
		}
	}
	return entities
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
