package controller

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"strings"
	"sync"
	"time"

	mqtt_base "github.com/eclipse/paho.mqtt.golang"
	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
	"github.com/gaetancollaud/integrations-mqtt/pkg/mqtt"
	"github.com/gaetancollaud/integrations-mqtt/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

const (
	// Published for entities without a known state.
	unknownState   = "None"
	commandTimeout = 30 * time.Second
)

var entityCommands = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "integrations_entity_commands_total",
	Help: "Number of commands received on entity command topics by result.",
}, []string{"domain", "result"})

// StateChangedEvent is sent on SignalStateChanged every time an entity
// publishes its state.
type StateChangedEvent struct {
	EntityId   string                 `json:"entity_id"`
	EntryId    string                 `json:"entry_id"`
	Domain     string                 `json:"domain"`
	Name       string                 `json:"name"`
	State      string                 `json:"state"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	Available  bool                   `json:"available"`
	Timestamp  time.Time              `json:"timestamp"`
}

const SignalStateChanged = "state_changed"

// boundEntity ties an entity to its MQTT topics.
type boundEntity struct {
	entity     core.Entity
	entryId    string
	domain     string
	entityId   string
	base       string
	topics     core.EntityTopics
	mqttClient mqtt.Client
	dispatcher *core.Dispatcher

	mu   sync.Mutex
	last StateChangedEvent
}

func newBoundEntity(mqttClient mqtt.Client, dispatcher *core.Dispatcher, domain string, entryId string, entity core.Entity, normalize bool) *boundEntity {
	objectId := entity.UniqueId()
	if normalize {
		objectId = utils.NormalizeForTopicName(objectId)
	}
	base := path.Join(domain, objectId)
	b := &boundEntity{
		entity:     entity,
		entryId:    entryId,
		domain:     domain,
		entityId:   string(entity.Domain()) + "." + utils.NormalizeForTopicName(entity.UniqueId()),
		base:       base,
		mqttClient: mqttClient,
		dispatcher: dispatcher,
	}
	b.topics = core.EntityTopics{
		State:        mqttClient.GetFullTopic(path.Join(base, mqtt.State)),
		Attributes:   mqttClient.GetFullTopic(path.Join(base, mqtt.Attributes)),
		Availability: mqttClient.GetFullTopic(path.Join(base, mqtt.Availability)),
		Commands:     map[string]string{},
	}
	if handler, ok := entity.(core.CommandHandler); ok {
		for _, command := range handler.Commands() {
			b.topics.Commands[command] = mqttClient.GetFullTopic(path.Join(base, command))
		}
	}
	return b
}

func (b *boundEntity) discoveryConfig() homeassistant.DiscoveryConfig {
	config := b.entity.DiscoveryConfig(b.topics)
	config.SetJsonAttributesTopic(b.topics.Attributes).
		AddAvailability(homeassistant.Availability{
			Topic:               b.topics.Availability,
			PayloadAvailable:    mqtt.Online,
			PayloadNotAvailable: mqtt.Offline,
		})
	log.Trace().Str("entity", b.entityId).Str("config", utils.PrettyPrint(config)).Msg("Discovery config.")
	deviceId := b.entryId
	if device := b.entity.Device(); len(device.Identifiers) > 0 {
		deviceId = device.Identifiers[0]
	}
	return homeassistant.DiscoveryConfig{
		Domain:   b.entity.Domain(),
		DeviceId: deviceId,
		ObjectId: b.entity.UniqueId(),
		Config:   config,
	}
}

// attach subscribes the command topics and starts publishing on changes.
func (b *boundEntity) attach() error {
	if handler, ok := b.entity.(core.CommandHandler); ok {
		for command, topic := range b.topics.Commands {
			command := command
			log.Trace().Str("topic", topic).Str("entity", b.entityId).Msg("Subscribing for topic.")
			if err := b.mqttClient.SubscribeRaw(topic, func(client mqtt_base.Client, message mqtt_base.Message) {
				b.onCommand(handler, command, string(message.Payload()))
			}); err != nil {
				return err
			}
		}
	}
	b.entity.SetOnChange(func() {
		if err := b.publish(); err != nil {
			log.Error().Err(err).Str("entity", b.entityId).Msg("Error publishing entity state.")
		}
	})
	return nil
}

func (b *boundEntity) detach() {
	b.entity.SetOnChange(nil)
	for _, topic := range b.topics.Commands {
		if err := b.mqttClient.Unsubscribe(topic); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("Error unsubscribing command topic.")
		}
	}
	if err := b.mqttClient.PublishRaw(b.topics.Availability, true, mqtt.Offline); err != nil {
		log.Error().Err(err).Str("entity", b.entityId).Msg("Error publishing entity availability.")
	}
}

func (b *boundEntity) onCommand(handler core.CommandHandler, command string, payload string) {
	log.Trace().
		Str("entity", b.entityId).
		Str("command", command).
		Str("payload", payload).
		Msg("Message Received.")
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := handler.HandleCommand(ctx, command, payload); err != nil {
		result := "error"
		if errors.Is(err, core.ErrUnsupported) {
			result = "unsupported"
		}
		entityCommands.WithLabelValues(b.domain, result).Inc()
		log.Error().
			Err(err).
			Str("entity", b.entityId).
			Str("command", command).
			Msg("Error handling MQTT Message.")
		return
	}
	entityCommands.WithLabelValues(b.domain, "success").Inc()
	if err := b.publish(); err != nil {
		log.Error().Err(err).Str("entity", b.entityId).Msg("Error publishing entity state.")
	}
}

// publish sends the state, attributes and availability of the entity.
func (b *boundEntity) publish() error {
	state := b.entity.State()
	available := b.entity.Available()
	value := state.State
	if strings.TrimSpace(value) == "" {
		value = unknownState
	}
	availability := mqtt.Offline
	if available {
		availability = mqtt.Online
	}
	if err := b.mqttClient.PublishRaw(b.topics.Availability, true, availability); err != nil {
		return err
	}
	if err := b.mqttClient.PublishRaw(b.topics.State, true, value); err != nil {
		return err
	}
	attributes := state.Attributes
	if attributes == nil {
		attributes = map[string]interface{}{}
	}
	encoded, err := json.Marshal(attributes)
	if err != nil {
		return err
	}
	if err := b.mqttClient.PublishRaw(b.topics.Attributes, true, encoded); err != nil {
		return err
	}

	event := StateChangedEvent{
		EntityId:   b.entityId,
		EntryId:    b.entryId,
		Domain:     b.domain,
		Name:       b.entity.Name(),
		State:      state.State,
		Attributes: state.Attributes,
		Available:  available,
		Timestamp:  time.Now().UTC(),
	}
	b.mu.Lock()
	b.last = event
	b.mu.Unlock()
	if b.dispatcher != nil {
		b.dispatcher.Send(SignalStateChanged, event)
	}
	return nil
}

// snapshot returns the current state without publishing it.
func (b *boundEntity) snapshot() StateChangedEvent {
	state := b.entity.State()
	return StateChangedEvent{
		EntityId:   b.entityId,
		EntryId:    b.entryId,
		Domain:     b.domain,
		Name:       b.entity.Name(),
		State:      state.State,
		Attributes: state.Attributes,
		Available:  b.entity.Available(),
		Timestamp:  time.Now().UTC(),
	}
}
