package iss

import (
	"fmt"
	"time"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
)

type PeopleEntity struct {
	core.CoordinatorEntity[People]
}

func (e *PeopleEntity) State() core.EntityState {
	people := e.Coordinator.Data()
	names := people.OnIss()
	return core.EntityState{
		State: fmt.Sprint(len(names)),
		Attributes: map[string]interface{}{
			"people":          names,
			"people_in_space": people.Number,
		},
	}
}

func (e *PeopleEntity) DiscoveryConfig(topics core.EntityTopics) homeassistant.MqttConfig {
	config := &homeassistant.SensorConfig{
		BaseConfig:        e.BaseConfig(),
		StateTopic:        topics.State,
		UnitOfMeasurement: "people",
		StateClass:        "measurement",
	}
	config.Icon = "mdi:account-multiple"
	return config
}

type PositionEntity struct {
	core.CoordinatorEntity[Position]
	showOnMap bool
}

func (e *PositionEntity) State() core.EntityState {
	position := e.Coordinator.Data()
	attributes := map[string]interface{}{
		"timestamp": position.Timestamp.Format(time.RFC3339),
	}
	if e.showOnMap {
		attributes["latitude"] = position.Latitude
		attributes["longitude"] = position.Longitude
	} else {
		attributes["lat"] = position.Latitude
		attributes["long"] = position.Longitude
	}
	return core.EntityState{
		State:      fmt.Sprintf("%.4f, %.4f", position.Latitude, position.Longitude),
		Attributes: attributes,
	}
}

func (e *PositionEntity) DiscoveryConfig(topics core.EntityTopics) homeassistant.MqttConfig {
	config := &homeassistant.SensorConfig{
		BaseConfig: e.BaseConfig(),
		StateTopic: topics.State,
	}
	config.Icon = "mdi:space-station"
	return config
}

type TleEntity struct {
	core.CoordinatorEntity[CachedTLE]
}

func (e *TleEntity) State() core.EntityState {
	cached := e.Coordinator.Data()
	elements, err := cached.Elements()
	if err != nil {
		return core.EntityState{}
	}
	return core.EntityState{
		State: elements.Epoch.Format(time.RFC3339),
		Attributes: map[string]interface{}{
			"name":        cached.Name,
			"inclination": elements.Inclination,
			"mean_motion": elements.MeanMotion,
			"period":      fmt.Sprintf("%.2f", elements.Period),
			"fetched_at":  cached.FetchedAt.Format(time.RFC3339),
			"line1":       cached.Line1,
			"line2":       cached.Line2,
		},
	}
}

func (e *TleEntity) DiscoveryConfig(topics core.EntityTopics) homeassistant.MqttConfig {
	return &homeassistant.SensorConfig{
		BaseConfig:  e.BaseConfig(),
		StateTopic:  topics.State,
		DeviceClass: "timestamp",
	}
}
