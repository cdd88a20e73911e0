package xiaomimiio

import (
	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
	"github.com/spf13/cast"
)

type sensorKind struct {
	key         string
	name        string
	unit        string
	deviceClass string
	stateClass  string
	icon        string
	// attributes are read as booleans.
	attributes []string
}

var (
	purifierSensors = []sensorKind{
		{key: "filter_life_remaining", name: "Filter life remaining", unit: "%", stateClass: "measurement", icon: "mdi:air-filter"},
		{key: "filter_hours_used", name: "Filter use", unit: "h", stateClass: "measurement", icon: "mdi:clock-outline"},
		{key: "humidity", name: "Humidity", unit: "%", deviceClass: "humidity", stateClass: "measurement"},
		{key: "motor_speed", name: "Motor speed", unit: "rpm", stateClass: "measurement", icon: "mdi:fast-forward"},
		{key: "aqi", name: "PM2.5", unit: "µg/m³", deviceClass: "pm25", stateClass: "measurement"},
		{key: "temperature", name: "Temperature", unit: "°C", deviceClass: "temperature", stateClass: "measurement"},
		{key: "use_time", name: "Use time", unit: "s", stateClass: "total_increasing", icon: "mdi:progress-clock"},
		{key: "purify_volume", name: "Purify volume", unit: "m³", deviceClass: "volume", stateClass: "total_increasing"},
	}
	airMonitorSensor = sensorKind{
		key:        "aqi",
		name:       "Air quality",
		unit:       "AQI",
		stateClass: "measurement",
		icon:       "mdi:cloud",
		attributes: []string{"power", "charging"},
	}
	subdeviceSensors = []sensorKind{
		{key: "temperature", name: "Temperature", unit: "°C", deviceClass: "temperature", stateClass: "measurement"},
		{key: "humidity", name: "Humidity", unit: "%", deviceClass: "humidity", stateClass: "measurement"},
		{key: "pressure", name: "Pressure", unit: "hPa", deviceClass: "pressure", stateClass: "measurement"},
		{key: "illuminance", name: "Illuminance", unit: "lx", deviceClass: "illuminance", stateClass: "measurement"},
	}
)

// SensorEntity reads one status value of the device or of a gateway
// sub-device.
type SensorEntity struct {
	core.CoordinatorEntity[DeviceState]
	device *device
	kind   sensorKind
	sid    string
}

func newSensorEntity(d *device, description core.EntityDescription, kind sensorKind, sid string) *SensorEntity {
	description.Domain = homeassistant.Sensor
	return &SensorEntity{
		CoordinatorEntity: core.NewCoordinatorEntity(d.coordinator, description),
		device:            d,
		kind:              kind,
		sid:               sid,
	}
}

func (e *SensorEntity) value(key string) (interface{}, bool) {
	if e.sid != "" {
		return e.device.state().Subdevice(e.sid, key)
	}
	return e.device.get(key)
}

func (e *SensorEntity) State() core.EntityState {
	state := ""
	if value, ok := e.value(e.kind.key); ok && value != nil {
		state = cast.ToString(value)
	}
	attributes := map[string]interface{}{}
	for _, key := range e.kind.attributes {
		if value, ok := e.value(key); ok {
			attributes[key] = isOn(value)
		}
	}
	if value, ok := e.value("battery"); ok && len(e.kind.attributes) > 0 {
		attributes["battery"] = cast.ToInt(value)
	}
	return core.EntityState{State: state, Attributes: attributes}
}

func (e *SensorEntity) DiscoveryConfig(topics core.EntityTopics) homeassistant.MqttConfig {
	config := &homeassistant.SensorConfig{
		BaseConfig:        e.BaseConfig(),
		StateTopic:        topics.State,
		UnitOfMeasurement: e.kind.unit,
		DeviceClass:       e.kind.deviceClass,
		StateClass:        e.kind.stateClass,
	}
	config.Icon = e.kind.icon
	return config
}
