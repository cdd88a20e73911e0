package envisalink

import (
	"fmt"
	"time"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
)

const (
	payloadOn  = "ON"
	payloadOff = "OFF"
)

// ZoneEntity is the binary sensor of one zone.
type ZoneEntity struct {
	core.CoordinatorEntity[PanelStatus]
	zone        int
	deviceClass string
}

func newZoneEntity(coordinator *core.Coordinator[PanelStatus], entryId string, device homeassistant.Device, zone int, config Config) *ZoneEntity {
	deviceClass := config.ZoneTypes[fmt.Sprint(zone)]
	if deviceClass == "" {
		deviceClass = defaultZoneType
	}
	return &ZoneEntity{
		CoordinatorEntity: core.NewCoordinatorEntity(coordinator, core.EntityDescription{
			UniqueId: fmt.Sprintf("%s_zone_%d", entryId, zone),
			Name:     fmt.Sprintf("Zone %d", zone),
			Domain:   homeassistant.BinarySensor,
			Device:   device,
		}),
		zone:        zone,
		deviceClass: deviceClass,
	}
}

func (e *ZoneEntity) State() core.EntityState {
	data := e.Coordinator.Data()
	status := data.Zones[e.zone]
	state := payloadOff
	if status.Open {
		state = payloadOn
	}
	attributes := map[string]interface{}{
		"zone":     e.zone,
		"alarm":    status.Alarm,
		"tamper":   status.Tamper,
		"bypassed": status.Bypassed,
	}
	if status.LastFault > 0 && !data.ReceivedAt.IsZero() {
		tripped := data.ReceivedAt.Add(-time.Duration(status.LastFault * float64(time.Second)))
		attributes["last_tripped_time"] = tripped.UTC().Format(time.RFC3339)
	}
	return core.EntityState{State: state, Attributes: attributes}
}

func (e *ZoneEntity) DiscoveryConfig(topics core.EntityTopics) homeassistant.MqttConfig {
	return &homeassistant.BinarySensorConfig{
		BaseConfig:  e.BaseConfig(),
		StateTopic:  topics.State,
		DeviceClass: e.deviceClass,
		PayloadOn:   payloadOn,
		PayloadOff:  payloadOff,
	}
}
