package rest

import (
	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
)

// Sensor publishes the processed body of the resource.
type Sensor struct {
	core.CoordinatorEntity[Reading]
	config Config
}

func (e *Sensor) Available() bool {
	return e.CoordinatorEntity.Available() && e.Coordinator.Data().Available
}

func (e *Sensor) State() core.EntityState {
	reading := e.Coordinator.Data()
	return core.EntityState{State: reading.Value, Attributes: reading.Attributes}
}

func (e *Sensor) DiscoveryConfig(topics core.EntityTopics) homeassistant.MqttConfig {
	return &homeassistant.SensorConfig{
		BaseConfig:        e.BaseConfig(),
		StateTopic:        topics.State,
		UnitOfMeasurement: e.config.UnitOfMeasurement,
		DeviceClass:       e.config.DeviceClass,
		StateClass:        e.config.StateClass,
	}
}
