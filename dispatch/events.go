package dispatch

import (
	"sync/atomic"

	"copro-rpc/codec"
)

// Listener receives decoded payloads for one (group, opcode) event. Events
// are delivered in transport-arrival order on C; when the queue is full the
// receive loop drops the event instead of blocking, and the drop is counted.
//
// C is closed when the listener is replaced, removed, or the dispatcher
// shuts down.
type Listener struct {
	C <-chan []any

	ch      chan []any
	schema  []codec.Type
	dropped atomic.Uint64
}

// Dropped reports how many events were discarded because the queue was full.
func (l *Listener) Dropped() uint64 {
	return l.dropped.Load()
}

// Listen registers a listener for the (group, opcode) event with the given
// positional payload schema and queue depth. A listener already registered
// for that key is replaced and its channel closed; there is never more than
// one listener per key.
//
// Listen on a closed dispatcher returns a listener whose channel is already
// closed.
func (d *Dispatcher) Listen(group, opcode byte, schema []codec.Type, depth int) *Listener {
	if depth <= 0 {
		depth = DefaultEventQueueDepth
	}
	l := &Listener{
		ch:     make(chan []any, depth),
		schema: schema,
	}
	l.C = l.ch

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		close(l.ch)
		return l
	}
	k := eventKey{group, opcode}
	if prev, ok := d.listeners[k]; ok {
		close(prev.ch)
	}
	d.listeners[k] = l
	return l
}

// Unlisten removes the listener for (group, opcode), if any, closing its
// channel. Events arriving afterwards are discarded as unknown.
func (d *Dispatcher) Unlisten(group, opcode byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := eventKey{group, opcode}
	if l, ok := d.listeners[k]; ok {
		close(l.ch)
		delete(d.listeners, k)
	}
}
