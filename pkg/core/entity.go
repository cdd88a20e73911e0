package core

import (
	"context"
	"sync"

	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
)

// EntityState is the state published for an entity.
type EntityState struct {
	State      string                 `json:"state"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// EntityTopics are the absolute MQTT topics assigned to an entity.
type EntityTopics struct {
	State        string
	Attributes   string
	Availability string
	Commands     map[string]string
}

func (t EntityTopics) Command(name string) string {
	return t.Commands[name]
}

type Entity interface {
	UniqueId() string
	Name() string
	Domain() homeassistant.Domain
	Device() homeassistant.Device
	Available() bool
	State() EntityState
	DiscoveryConfig(topics EntityTopics) homeassistant.MqttConfig
	// SetOnChange registers the callback run whenever the state may have
	// changed. Nil detaches the entity.
	SetOnChange(func())
}

// CommandHandler is implemented by entities accepting commands. Each name
// returned by Commands gets its own command topic.
type CommandHandler interface {
	Commands() []string
	HandleCommand(ctx context.Context, command string, payload string) error
}

// EntityBase holds the identity of an entity and its change notification.
type EntityBase struct {
	uniqueId string
	name     string
	domain   homeassistant.Domain
	device   homeassistant.Device

	mu          sync.RWMutex
	unavailable bool
	onChange    func()
}

// EntityDescription identifies an entity.
type EntityDescription struct {
	UniqueId string
	Name     string
	Domain   homeassistant.Domain
	Device   homeassistant.Device
}

func NewEntityBase(d EntityDescription) EntityBase {
	return EntityBase{
		uniqueId: d.UniqueId,
		name:     d.Name,
		domain:   d.Domain,
		device:   d.Device,
	}
}

func (e *EntityBase) UniqueId() string {
	return e.uniqueId
}

func (e *EntityBase) Name() string {
	return e.name
}

func (e *EntityBase) Domain() homeassistant.Domain {
	return e.domain
}

func (e *EntityBase) Device() homeassistant.Device {
	return e.device
}

func (e *EntityBase) Available() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.unavailable
}

func (e *EntityBase) SetAvailable(available bool) {
	e.mu.Lock()
	e.unavailable = !available
	e.mu.Unlock()
}

func (e *EntityBase) SetOnChange(onChange func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChange = onChange
}

// WriteState asks the publisher to publish the current state.
func (e *EntityBase) WriteState() {
	e.mu.RLock()
	onChange := e.onChange
	e.mu.RUnlock()
	if onChange != nil {
		onChange()
	}
}

// BaseConfig fills the common discovery fields.
func (e *EntityBase) BaseConfig() homeassistant.BaseConfig {
	return homeassistant.BaseConfig{
		Device:   e.device,
		Name:     e.name,
		UniqueId: e.uniqueId,
	}
}

// CoordinatorEntity is an entity whose state derives from a coordinator.
type CoordinatorEntity[T any] struct {
	EntityBase
	Coordinator *Coordinator[T]

	removeListener func()
}

func NewCoordinatorEntity[T any](coordinator *Coordinator[T], d EntityDescription) CoordinatorEntity[T] {
	return CoordinatorEntity[T]{
		EntityBase:  NewEntityBase(d),
		Coordinator: coordinator,
	}
}

// Available is true while the last refresh succeeded.
func (e *CoordinatorEntity[T]) Available() bool {
	return e.Coordinator.LastUpdateSuccess() && e.EntityBase.Available()
}

func (e *CoordinatorEntity[T]) SetOnChange(onChange func()) {
	e.EntityBase.SetOnChange(onChange)
	if onChange == nil {
		if e.removeListener != nil {
			e.removeListener()
			e.removeListener = nil
		}
		return
	}
	if e.removeListener == nil {
		e.removeListener = e.Coordinator.AddListener(e.WriteState)
	}
}
