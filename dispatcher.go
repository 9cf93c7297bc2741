package ripple

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// ============================================================================
// Event Dispatcher
// ============================================================================

// Handler is the callback signature for inbound server events.
type Handler func(payload json.RawMessage)

type subscription struct {
	id string
	fn Handler
}

// Dispatcher routes inbound server events to registered handlers by event
// name. It is the only path by which transport frames reach domain
// consumers. Handlers for one event run in registration order; delivery is
// synchronous, so events are observed in the exact order the transport
// received them.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]subscription),
	}
}

// On registers a handler for an event name and returns its unsubscribe
// function. Calling the returned function more than once is harmless, and
// unsubscribing during a dispatch pass does not affect handlers already
// scheduled for that pass.
func (d *Dispatcher) On(event string, fn Handler) func() {
	id := uuid.NewString()

	d.mu.Lock()
	d.handlers[event] = append(d.handlers[event], subscription{id: id, fn: fn})
	d.mu.Unlock()

	return func() { d.off(event, id) }
}

func (d *Dispatcher) off(event, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	subs := d.handlers[event]
	for i, s := range subs {
		if s.id == id {
			d.handlers[event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(d.handlers[event]) == 0 {
		delete(d.handlers, event)
	}
}

// Dispatch delivers a payload to every handler registered for the event.
// Unknown event names simply match nothing.
func (d *Dispatcher) Dispatch(event string, payload json.RawMessage) {
	d.mu.RLock()
	subs := d.handlers[event]
	snapshot := make([]subscription, len(subs))
	copy(snapshot, subs)
	d.mu.RUnlock()

	for _, s := range snapshot {
		s.fn(payload)
	}
}

// HandlerCount reports how many handlers are registered for an event.
func (d *Dispatcher) HandlerCount(event string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[event])
}
