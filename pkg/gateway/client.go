// Package gateway talks to the processes bridging binary vendor protocols
// (Envisalink TPI, CEC, Tuya) to MQTT.
//
// Topic layout under the gateway prefix:
//
//	<prefix>/<namespace>/<device>/state  JSON pushed by the gateway
//	<prefix>/<namespace>/<device>/set    JSON commands
//	<prefix>/<namespace>/<device>/reply  JSON replies to requests, keyed by id
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/gaetancollaud/integrations-mqtt/pkg/mqtt"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	stateTopic string = "state"
	setTopic   string = "set"
	replyTopic string = "reply"

	DefaultRequestTimeout = 10 * time.Second
)

type Handler func(payload map[string]interface{})

// Notifier receives every payload pushed by a gateway.
type Notifier interface {
	Send(signal string, payload interface{})
}

// ReplyError is an error reported by the gateway in a reply.
type ReplyError struct {
	Code    string
	Message string
}

func (e *ReplyError) Error() string {
	if e.Message == "" {
		return "gateway error: " + e.Code
	}
	return fmt.Sprintf("gateway error: %s: %s", e.Code, e.Message)
}

type Client struct {
	mqttClient mqtt.Client
	prefix     string
	notifier   Notifier
	timeout    time.Duration

	mu      sync.Mutex
	pending map[string]chan map[string]interface{}
	replies map[string]bool

	// Held while a reply subscription is in flight.
	subscribeMu sync.Mutex
}

func NewClient(mqttClient mqtt.Client, prefix string, notifier Notifier) *Client {
	return &Client{
		mqttClient: mqttClient,
		prefix:     prefix,
		notifier:   notifier,
		timeout:    DefaultRequestTimeout,
		pending:    map[string]chan map[string]interface{}{},
		replies:    map[string]bool{},
	}
}

// SetTimeout changes how long Request waits for a reply.
func (c *Client) SetTimeout(timeout time.Duration) *Client {
	c.timeout = timeout
	return c
}

// Signal is the dispatcher signal a device's pushed payloads are sent on.
func Signal(namespace string, device string) string {
	return path.Join("gateway", namespace, device)
}

func (c *Client) Topic(namespace string, device string, leaf string) string {
	return path.Join(c.prefix, namespace, device, leaf)
}

// Subscribe registers a handler for the payloads pushed by a device. The
// device "+" subscribes to every device of the namespace.
func (c *Client) Subscribe(namespace string, device string, handler Handler) error {
	topic := c.Topic(namespace, device, stateTopic)
	return c.mqttClient.SubscribeRaw(topic, func(_ paho.Client, message paho.Message) {
		payload := map[string]interface{}{}
		if err := json.Unmarshal(message.Payload(), &payload); err != nil {
			log.Error().Err(err).Str("topic", message.Topic()).Msg("Invalid gateway payload.")
			return
		}
		log.Trace().Str("topic", message.Topic()).Msg("Gateway payload received.")
		if c.notifier != nil {
			c.notifier.Send(Signal(namespace, device), payload)
		}
		if handler != nil {
			handler(payload)
		}
	})
}

func (c *Client) Unsubscribe(namespace string, device string) error {
	return c.mqttClient.Unsubscribe(c.Topic(namespace, device, stateTopic))
}

// Send publishes a command without waiting for an answer.
func (c *Client) Send(ctx context.Context, namespace string, device string, command map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(command)
	if err != nil {
		return fmt.Errorf("error serializing gateway command: %w", err)
	}
	if err := c.mqttClient.PublishRaw(c.Topic(namespace, device, setTopic), false, payload); err != nil {
		return fmt.Errorf("error publishing gateway command: %w", err)
	}
	return nil
}

// Request sends a command tagged with a fresh id and waits for the reply
// carrying the same id.
func (c *Client) Request(ctx context.Context, namespace string, device string, command map[string]interface{}) (map[string]interface{}, error) {
	if err := c.ensureReplySubscription(namespace, device); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	tagged := make(map[string]interface{}, len(command)+1)
	for k, v := range command {
		tagged[k] = v
	}
	tagged["id"] = id

	ch := make(chan map[string]interface{}, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.Send(ctx, namespace, device, tagged); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("no reply from gateway %s/%s after %s", namespace, device, c.timeout)
	case reply := <-ch:
		if code, ok := reply["error"].(string); ok && code != "" {
			message, _ := reply["message"].(string)
			return nil, &ReplyError{Code: code, Message: message}
		}
		return reply, nil
	}
}

func (c *Client) ensureReplySubscription(namespace string, device string) error {
	topic := c.Topic(namespace, device, replyTopic)
	c.subscribeMu.Lock()
	defer c.subscribeMu.Unlock()
	c.mu.Lock()
	subscribed := c.replies[topic]
	c.mu.Unlock()
	if subscribed {
		return nil
	}
	err := c.mqttClient.SubscribeRaw(topic, func(_ paho.Client, message paho.Message) {
		reply := map[string]interface{}{}
		if err := json.Unmarshal(message.Payload(), &reply); err != nil {
			log.Error().Err(err).Str("topic", message.Topic()).Msg("Invalid gateway reply.")
			return
		}
		id, _ := reply["id"].(string)
		c.mu.Lock()
		ch, ok := c.pending[id]
		c.mu.Unlock()
		if !ok {
			log.Debug().Str("id", id).Msg("Dropping unexpected gateway reply.")
			return
		}
		select {
		case ch <- reply:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("error subscribing to gateway replies: %w", err)
	}
	c.mu.Lock()
	c.replies[topic] = true
	c.mu.Unlock()
	return nil
}

// Transport is the part of the gateway client used by integrations.
type Transport interface {
	Subscribe(namespace string, device string, handler Handler) error
	Unsubscribe(namespace string, device string) error
	Send(ctx context.Context, namespace string, device string, command map[string]interface{}) error
	Request(ctx context.Context, namespace string, device string, command map[string]interface{}) (map[string]interface{}, error)
}

var _ Transport = (*Client)(nil)
