package core

import (
	"sync"
)

// Dispatcher delivers payloads to the callbacks connected to a signal.
// Callbacks run in connection order and one delivery per signal runs at a
// time, so a callback must not Send on its own signal.
type Dispatcher struct {
	mu          sync.Mutex
	next        int
	subscribers map[string][]subscriber
	deliver     map[string]*sync.Mutex
}

type subscriber struct {
	id       int
	callback func(payload interface{})
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: map[string][]subscriber{},
		deliver:     map[string]*sync.Mutex{},
	}
}

// Connect registers a callback and returns the function disconnecting it.
func (d *Dispatcher) Connect(signal string, callback func(payload interface{})) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.next
	d.next++
	d.subscribers[signal] = append(d.subscribers[signal], subscriber{id: id, callback: callback})
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		subs := d.subscribers[signal]
		for i, s := range subs {
			if s.id == id {
				d.subscribers[signal] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(d.subscribers[signal]) == 0 {
			delete(d.subscribers, signal)
		}
	}
}

func (d *Dispatcher) Send(signal string, payload interface{}) {
	d.mu.Lock()
	subs := append([]subscriber{}, d.subscribers[signal]...)
	deliver, ok := d.deliver[signal]
	if !ok {
		deliver = &sync.Mutex{}
		d.deliver[signal] = deliver
	}
	d.mu.Unlock()

	deliver.Lock()
	defer deliver.Unlock()
	for _, s := range subs {
		s.callback(payload)
	}
}
