// Package mqtttest provides an in-memory mqtt.Client for tests.
package mqtttest

import (
	"fmt"
	"path"
	"strings"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/gaetancollaud/integrations-mqtt/pkg/mqtt"
)

type Published struct {
	Topic   string
	Retain  bool
	Payload string
}

// Client records publications and lets tests inject messages on subscribed
// topics.
type Client struct {
	Prefix string
	// SubscribeHook runs before a subscription is registered.
	SubscribeHook func(topic string)

	mu            sync.Mutex
	connected     bool
	published     []Published
	subscriptions map[string]paho.MessageHandler
}

func NewClient(prefix string) *Client {
	return &Client{
		Prefix:        prefix,
		subscriptions: map[string]paho.MessageHandler{},
	}
}

func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) Publish(topic string, message interface{}) error {
	return c.PublishRaw(c.GetFullTopic(topic), false, message)
}

func (c *Client) PublishAndRetain(topic string, message interface{}) error {
	return c.PublishRaw(c.GetFullTopic(topic), true, message)
}

func (c *Client) PublishRaw(topic string, retain bool, message interface{}) error {
	var payload string
	switch m := message.(type) {
	case string:
		payload = m
	case []byte:
		payload = string(m)
	default:
		payload = fmt.Sprintf("%v", m)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, Published{Topic: topic, Retain: retain, Payload: payload})
	return nil
}

func (c *Client) Subscribe(topic string, messageHandler paho.MessageHandler) error {
	return c.SubscribeRaw(c.GetFullTopic(topic), messageHandler)
}

func (c *Client) SubscribeRaw(topic string, messageHandler paho.MessageHandler) error {
	if c.SubscribeHook != nil {
		c.SubscribeHook(topic)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[topic] = messageHandler
	return nil
}

func (c *Client) Unsubscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, topic)
	return nil
}

func (c *Client) GetFullTopic(topic string) string {
	return path.Join(c.Prefix, topic)
}

func (c *Client) ServerStatusTopic() string {
	return c.GetFullTopic("server/status")
}

// Inject delivers a message to the handler subscribed on the absolute topic.
// Subscriptions ending with the "+" or "#" wildcards match as well.
func (c *Client) Inject(topic string, payload string) bool {
	c.mu.Lock()
	var handler paho.MessageHandler
	for pattern, h := range c.subscriptions {
		if matches(pattern, topic) {
			handler = h
			break
		}
	}
	c.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(nil, &message{topic: topic, payload: []byte(payload)})
	return true
}

// Subscribed reports whether a handler is registered on the topic.
func (c *Client) Subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscriptions[topic]
	return ok
}

func (c *Client) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published{}, c.published...)
}

// Last returns the last payload published on the topic.
func (c *Client) Last(topic string) (Published, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.published) - 1; i >= 0; i-- {
		if c.published[i].Topic == topic {
			return c.published[i], true
		}
	}
	return Published{}, false
}

func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = nil
}

func matches(pattern string, topic string) bool {
	if pattern == topic {
		return true
	}
	p := strings.Split(pattern, "/")
	t := strings.Split(topic, "/")
	for i, part := range p {
		if part == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if part != "+" && part != t[i] {
			return false
		}
	}
	return len(p) == len(t)
}

type message struct {
	topic   string
	payload []byte
}

func (m *message) Duplicate() bool   { return false }
func (m *message) Qos() byte         { return mqtt.QOS }
func (m *message) Retained() bool    { return false }
func (m *message) Topic() string     { return m.topic }
func (m *message) MessageID() uint16 { return 0 }
func (m *message) Payload() []byte   { return m.payload }
func (m *message) Ack()              {}

var _ mqtt.Client = (*Client)(nil)
