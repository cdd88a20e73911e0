package homeassistant

import (
	"encoding/json"
	"fmt"
	"path"
	"sync"

	"github.com/gaetancollaud/integrations-mqtt/pkg/config"
	"github.com/gaetancollaud/integrations-mqtt/pkg/mqtt"
	"github.com/gaetancollaud/integrations-mqtt/pkg/utils"
)

type Domain string

const (
	Sensor            Domain = "sensor"
	BinarySensor      Domain = "binary_sensor"
	Light             Domain = "light"
	Cover             Domain = "cover"
	Switch            Domain = "switch"
	Button            Domain = "button"
	Climate           Domain = "climate"
	Fan               Domain = "fan"
	AlarmControlPanel Domain = "alarm_control_panel"
	Scene             Domain = "scene"
	DeviceTrigger     Domain = "device_automation"
)

type DiscoveryConfig struct {
	Domain   Domain
	DeviceId string
	ObjectId string
	Config   MqttConfig
}

// Topic returns the retained topic the config is published on.
func (d DiscoveryConfig) Topic(prefix string) string {
	return path.Join(
		prefix,
		string(d.Domain),
		utils.NormalizeForTopicName(d.DeviceId),
		utils.NormalizeForTopicName(d.ObjectId),
		"config")
}

// HomeAssistantDiscovery keeps the discovery configs published per config
// entry so they can be withdrawn when the entry is unloaded.
type HomeAssistantDiscovery struct {
	mqttClient mqtt.Client
	config     *config.ConfigHomeAssistant

	mu               sync.Mutex
	discoveryConfigs map[string][]DiscoveryConfig
}

func NewHomeAssistantDiscovery(mqttClient mqtt.Client, config *config.ConfigHomeAssistant) *HomeAssistantDiscovery {
	return &HomeAssistantDiscovery{
		mqttClient:       mqttClient,
		config:           config,
		discoveryConfigs: map[string][]DiscoveryConfig{},
	}
}

// AddConfigs registers the configs of an entry, replacing previous ones.
func (hass *HomeAssistantDiscovery) AddConfigs(entryId string, configs []DiscoveryConfig) {
	systemAvailability := Availability{
		Topic:               hass.mqttClient.ServerStatusTopic(),
		PayloadAvailable:    mqtt.Online,
		PayloadNotAvailable: mqtt.Offline,
	}
	for _, config := range configs {
		entityName := config.Config.GetName()
		config.Config.
			SetName(
				utils.RemoveRegexp(
					entityName,
					hass.config.RemoveRegexpFromName)).
			SetRetain(hass.config.Retain).
			AddAvailability(systemAvailability).
			SetAvailabilityMode("all")
	}

	hass.mu.Lock()
	defer hass.mu.Unlock()
	hass.discoveryConfigs[entryId] = configs
}

// Configs returns the configs registered for an entry.
func (hass *HomeAssistantDiscovery) Configs(entryId string) []DiscoveryConfig {
	hass.mu.Lock()
	defer hass.mu.Unlock()
	return append([]DiscoveryConfig{}, hass.discoveryConfigs[entryId]...)
}

func (hass *HomeAssistantDiscovery) PublishDiscoveryMessages(entryId string) error {
	if !hass.config.DiscoveryEnabled {
		return nil
	}

	for _, config := range hass.Configs(entryId) {
		json, err := json.Marshal(config.Config)
		if err != nil {
			return fmt.Errorf("error serializing dicovery config to JSON: %w", err)
		}
		if err := hass.mqttClient.PublishRaw(config.Topic(hass.config.DiscoveryTopicPrefix), true, json); err != nil {
			return fmt.Errorf("error publishing discovery message to MQTT: %w", err)
		}
	}
	return nil
}

// RemoveDiscoveryMessages clears the retained configs of an entry so Home
// Assistant drops its entities.
func (hass *HomeAssistantDiscovery) RemoveDiscoveryMessages(entryId string) error {
	configs := hass.Configs(entryId)
	hass.mu.Lock()
	delete(hass.discoveryConfigs, entryId)
	hass.mu.Unlock()

	if !hass.config.DiscoveryEnabled {
		return nil
	}
	for _, config := range configs {
		if err := hass.mqttClient.PublishRaw(config.Topic(hass.config.DiscoveryTopicPrefix), true, ""); err != nil {
			return fmt.Errorf("error removing discovery message from MQTT: %w", err)
		}
	}
	return nil
}
