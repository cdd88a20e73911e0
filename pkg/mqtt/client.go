package mqtt

import (
	"fmt"
	"path"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const QOS byte = 0

const (
	Online  string = "online"
	Offline string = "offline"
)

// Topics.
const (
	State        string = "state"
	Attributes   string = "attributes"
	Availability string = "availability"
	Command      string = "command"
	serverStatus string = "server/status"
)

type SubscriptionHandler struct {
	Topic          string
	MessageHandler mqtt.MessageHandler
}

type Client interface {
	// Connect to the MQTT server.
	Connect() error
	// Disconnect from the MQTT server.
	Disconnect() error
	// Whether the connection with the broker is currently open.
	IsConnected() bool

	// Publishes a message under the topic prefix.
	Publish(topic string, message interface{}) error
	// Same as publish but force the retain flag regardless of what is in the config
	PublishAndRetain(topic string, message interface{}) error
	// Publishes a message on an absolute topic, ignoring the prefix.
	PublishRaw(topic string, retain bool, message interface{}) error
	// Subscribe to a topic under the prefix and calls the given handler when
	// a message is received.
	Subscribe(topic string, messageHandler mqtt.MessageHandler) error
	// Subscribe to an absolute topic, ignoring the prefix.
	SubscribeRaw(topic string, messageHandler mqtt.MessageHandler) error
	// Unsubscribe from an absolute topic.
	Unsubscribe(topic string) error

	// Return the full topic for a given subpath.
	GetFullTopic(topic string) string
	// Returns the topic used to publish the server status.
	ServerStatusTopic() string
}

type client struct {
	mqttClient    mqtt.Client
	options       ClientOptions
	subscriptions *Subscriptions
}

type Subscriptions struct {
	mu              sync.Mutex
	shouldReconnect bool
	list            []SubscriptionHandler
}

func (s *Subscriptions) add(topic string, handler mqtt.MessageHandler) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = append(s.list, SubscriptionHandler{Topic: topic, MessageHandler: handler})
	return len(s.list)
}

func (s *Subscriptions) remove(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.list[:0]
	for _, sub := range s.list {
		if sub.Topic != topic {
			kept = append(kept, sub)
		}
	}
	s.list = kept
}

func (s *Subscriptions) snapshot() []SubscriptionHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SubscriptionHandler{}, s.list...)
}

func NewClient(options *ClientOptions) Client {
	subscriptions := &Subscriptions{
		list: []SubscriptionHandler{},
	}
	mqttOptions := mqtt.NewClientOptions().
		AddBroker(options.MqttUrl).
		SetClientID("integrations-mqtt-"+uuid.New().String()).
		SetOrderMatters(false).
		SetUsername(options.Username).
		SetPassword(options.Password).
		SetAutoReconnect(true).
		SetWill(path.Join(options.TopicPrefix, serverStatus), Offline, QOS, true).
		SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
			log.Info().Str("url", options.MqttUrl).Msg("Reconnecting to MQTT server.")
			subscriptions.mu.Lock()
			subscriptions.shouldReconnect = true
			subscriptions.mu.Unlock()
		}).
		SetOnConnectHandler(func(client mqtt.Client) {
			log.Info().Str("url", options.MqttUrl).Msg("Connected to MQTT server.")

			subscriptions.mu.Lock()
			resubscribe := subscriptions.shouldReconnect
			subscriptions.shouldReconnect = false
			subscriptions.mu.Unlock()
			if !resubscribe {
				return
			}
			list := subscriptions.snapshot()
			log.Info().Int("count", len(list)).Msg("Re-subscribing to topics")
			for _, sub := range list {
				log.Debug().Str("topic", sub.Topic).Msg("Re-subscribing to topic")
				t := client.Subscribe(
					sub.Topic,
					QOS,
					sub.MessageHandler)
				<-t.Done()
				if t.Error() != nil {
					log.Error().Err(t.Error()).Str("topic", sub.Topic).Msg("Error re-subscribing to topic")
				}
			}
		})

	return &client{
		mqttClient:    mqtt.NewClient(mqttOptions),
		options:       *options,
		subscriptions: subscriptions,
	}
}

func (c *client) Connect() error {
	t := c.mqttClient.Connect()
	<-t.Done()
	if t.Error() != nil {
		return fmt.Errorf("error connecting to MQTT broker: %w", t.Error())
	}

	if err := c.publishServerStatus(Online); err != nil {
		return err
	}
	return nil
}

func (c *client) Disconnect() error {
	log.Info().Msg("Publishing Offline status to MQTT server.")
	if err := c.publishServerStatus(Offline); err != nil {
		return err
	}
	c.mqttClient.Disconnect(uint(c.options.DisconnectTimeout.Milliseconds()))
	log.Info().Msg("Disconnected from MQTT server.")
	return nil
}

func (c *client) IsConnected() bool {
	return c.mqttClient.IsConnectionOpen()
}

func (c *client) publish(topic string, message interface{}, retain bool) error {
	t := c.mqttClient.Publish(
		topic,
		c.options.QoS,
		retain,
		message)
	<-t.Done()
	return t.Error()
}

func (c *client) Publish(topic string, message interface{}) error {
	return c.publish(c.GetFullTopic(topic), message, c.options.Retain)
}

func (c *client) PublishAndRetain(topic string, message interface{}) error {
	return c.publish(c.GetFullTopic(topic), message, true)
}

func (c *client) PublishRaw(topic string, retain bool, message interface{}) error {
	return c.publish(topic, message, retain)
}

func (c *client) Subscribe(topic string, messageHandler mqtt.MessageHandler) error {
	return c.SubscribeRaw(c.GetFullTopic(topic), messageHandler)
}

func (c *client) SubscribeRaw(topic string, messageHandler mqtt.MessageHandler) error {
	count := c.subscriptions.add(topic, messageHandler)
	log.Debug().Int("count", count).Str("topic", topic).Msg("Subscribing to topic")
	t := c.mqttClient.Subscribe(
		topic,
		c.options.QoS,
		messageHandler)
	<-t.Done()
	return t.Error()
}

func (c *client) Unsubscribe(topic string) error {
	c.subscriptions.remove(topic)
	t := c.mqttClient.Unsubscribe(topic)
	<-t.Done()
	return t.Error()
}

// Publish the current binary status into the MQTT topic.
func (c *client) publishServerStatus(message string) error {
	log.Info().Str("status", message).Str("topic", serverStatus).Msg("Updating server status topic")
	return c.PublishAndRetain(serverStatus, message)
}

func (c *client) ServerStatusTopic() string {
	return c.GetFullTopic(serverStatus)
}

func (c *client) GetFullTopic(topic string) string {
	return path.Join(c.options.TopicPrefix, topic)
}
