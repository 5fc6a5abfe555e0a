package signaling

import "sync"

// Handler consumes one inbound message. Handlers for a given connection are
// invoked sequentially in delivery order.
type Handler func(*Message)

// Bus is the channel surface components program against: send an event,
// subscribe to an event name, and learn the local origin identifier used for
// echo suppression. The websocket Client implements it; tests use in-memory
// fakes.
type Bus interface {
	Origin() string
	Send(*Message) error
	Subscribe(event string, h Handler) (cancel func())
}

type registration struct {
	seq uint64
	h   Handler
}

// Dispatcher routes inbound messages to at most one handler per event name.
// Re-subscribing to an event replaces the previous handler rather than
// stacking a second one, so a component re-registering on reattach can never
// cause duplicate delivery.
type Dispatcher struct {
	mu       sync.RWMutex
	seq      uint64
	handlers map[string]registration
}

// Subscribe installs h for event, replacing any previous handler. The
// returned cancel func removes the handler unless it has already been
// replaced by a newer subscription.
func (d *Dispatcher) Subscribe(event string, h Handler) func() {
	d.mu.Lock()
	if d.handlers == nil {
		d.handlers = make(map[string]registration)
	}
	d.seq++
	seq := d.seq
	d.handlers[event] = registration{seq: seq, h: h}
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		if reg, ok := d.handlers[event]; ok && reg.seq == seq {
			delete(d.handlers, event)
		}
		d.mu.Unlock()
	}
}

// Dispatch invokes the handler registered for the message's event, if any.
func (d *Dispatcher) Dispatch(msg *Message) {
	d.mu.RLock()
	reg, ok := d.handlers[msg.Event]
	d.mu.RUnlock()
	if ok {
		reg.h(msg)
	}
}
