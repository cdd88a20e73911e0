// Package gatewaytest provides an in-memory gateway.Transport.
package gatewaytest

import (
	"context"
	"sync"

	"github.com/gaetancollaud/integrations-mqtt/pkg/gateway"
)

type Command struct {
	Namespace string
	Device    string
	Payload   map[string]interface{}
}

// Fake records commands and answers requests with Responder.
type Fake struct {
	Notifier  gateway.Notifier
	Responder func(command Command) (map[string]interface{}, error)
	SendErr   error

	mu       sync.Mutex
	sent     []Command
	requests []Command
	handlers map[string]gateway.Handler
}

func New(notifier gateway.Notifier) *Fake {
	return &Fake{
		Notifier: notifier,
		handlers: map[string]gateway.Handler{},
	}
}

func key(namespace string, device string) string {
	return namespace + "/" + device
}

func (f *Fake) Subscribe(namespace string, device string, handler gateway.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[key(namespace, device)] = handler
	return nil
}

func (f *Fake) Unsubscribe(namespace string, device string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, key(namespace, device))
	return nil
}

func (f *Fake) Subscribed(namespace string, device string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[key(namespace, device)]
	return ok
}

func (f *Fake) Send(_ context.Context, namespace string, device string, command map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.sent = append(f.sent, Command{Namespace: namespace, Device: device, Payload: command})
	return nil
}

func (f *Fake) Request(_ context.Context, namespace string, device string, command map[string]interface{}) (map[string]interface{}, error) {
	c := Command{Namespace: namespace, Device: device, Payload: command}
	f.mu.Lock()
	f.requests = append(f.requests, c)
	responder := f.Responder
	f.mu.Unlock()
	if responder == nil {
		return map[string]interface{}{"status": "ok"}, nil
	}
	return responder(c)
}

// Push delivers a payload as if the gateway had published it.
func (f *Fake) Push(namespace string, device string, payload map[string]interface{}) {
	f.mu.Lock()
	handler, ok := f.handlers[key(namespace, device)]
	f.mu.Unlock()
	if !ok {
		return
	}
	if f.Notifier != nil {
		f.Notifier.Send(gateway.Signal(namespace, device), payload)
	}
	if handler != nil {
		handler(payload)
	}
}

func (f *Fake) Sent() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command{}, f.sent...)
}

func (f *Fake) Requests() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command{}, f.requests...)
}

var _ gateway.Transport = (*Fake)(nil)
