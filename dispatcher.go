package channels

import (
	"sync"
)

// Handler is a callback invoked with every message matching its selector.
type Handler func(msg *Message)

// Selector is a partial-match filter over a message's correlation fields.
// A nil field matches anything; a set field must equal the corresponding
// message field. The zero-value Selector matches every message.
//
// Example:
//
//	// Match every update to todo 5
//	pk := int64(5)
//	sel := channels.Selector{
//	    Stream: channels.String("todos"),
//	    Action: channels.ActionPtr(channels.ActionUpdate),
//	    PK:     &pk,
//	}
type Selector struct {
	// Stream matches the message's stream name
	Stream *string
	// Action matches the message's action
	Action *Action
	// PK matches the message's primary key
	PK *int64
	// RequestID matches the message's correlation id
	RequestID *string
}

// Matches reports whether every set selector field is present and equal in
// the message. Fields of the message not named by the selector are ignored.
func (s Selector) Matches(msg *Message) bool {
	if msg == nil {
		return false
	}
	if s.Stream != nil && msg.Stream != *s.Stream {
		return false
	}
	if s.Action != nil && msg.Action != *s.Action {
		return false
	}
	if s.PK != nil && (msg.PK == nil || *msg.PK != *s.PK) {
		return false
	}
	if s.RequestID != nil && msg.RequestID != *s.RequestID {
		return false
	}
	return true
}

// String returns a pointer to s, for use in selector literals.
func String(s string) *string { return &s }

// ActionPtr returns a pointer to a, for use in selector literals.
func ActionPtr(a Action) *Action { return &a }

// PK returns a pointer to pk, for use in selector literals and Subscribe.
func PK(pk int64) *int64 { return &pk }

// matchRequestID builds the selector used for request/response correlation
func matchRequestID(id string) Selector {
	return Selector{RequestID: &id}
}

// listener is one registered selector/handler pair
type listener struct {
	id       int64
	selector Selector
	handler  Handler
	once     bool
	active   bool
}

// Dispatcher routes inbound messages to zero or more interested listeners.
// Listeners are matched by selector and invoked in registration order.
//
// Dispatcher is safe for concurrent use. Handlers may register or cancel
// listeners from within a dispatch: the active set is snapshotted when
// Dispatch starts, so reentrant mutation never affects the in-flight pass
// but does affect future passes.
type Dispatcher struct {
	mu        sync.Mutex
	nextID    int64
	listeners []*listener
	observer  Observer
}

// NewDispatcher creates a dispatcher. The observer receives handler panic
// notifications; pass nil for no reporting.
func NewDispatcher(observer Observer) *Dispatcher {
	if observer == nil {
		observer = &NoopObserver{}
	}
	return &Dispatcher{observer: observer}
}

// Listen registers a persistent listener and returns its id. Ids are unique
// and strictly increasing for the lifetime of the dispatcher; they are
// never reused.
func (d *Dispatcher) Listen(selector Selector, handler Handler) int64 {
	return d.register(selector, handler, false)
}

// Once registers a listener that is deactivated right after its first
// invocation. It fires at most once ever, not once per message.
func (d *Dispatcher) Once(selector Selector, handler Handler) int64 {
	return d.register(selector, handler, true)
}

func (d *Dispatcher) register(selector Selector, handler Handler, once bool) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	d.listeners = append(d.listeners, &listener{
		id:       d.nextID,
		selector: selector,
		handler:  handler,
		once:     once,
		active:   true,
	})
	return d.nextID
}

// Cancel deactivates the listener with the given id. It returns true
// exactly once per listener: the first call after creation. Later calls,
// calls with unknown ids, and calls for once-listeners that already fired
// all return false.
func (d *Dispatcher) Cancel(id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, l := range d.listeners {
		if l.id == id {
			if !l.active {
				return false
			}
			l.active = false
			return true
		}
	}
	return false
}

// Dispatch invokes every active listener whose selector matches msg, in
// registration order, and returns the count of listeners invoked.
//
// The active set is snapshotted at call start: listeners registered or
// canceled by a handler during this pass take effect on the next pass.
// A once-listener is claimed before its handler runs, so it can never fire
// twice even across overlapping dispatches. A handler that panics is
// isolated: the panic is recovered, reported to the observer, and the
// remaining listeners still run.
func (d *Dispatcher) Dispatch(msg *Message) int {
	d.mu.Lock()
	snapshot := make([]*listener, 0, len(d.listeners))
	for _, l := range d.listeners {
		if l.active {
			snapshot = append(snapshot, l)
		}
	}
	d.mu.Unlock()

	invoked := 0
	for _, l := range snapshot {
		if !l.selector.Matches(msg) {
			continue
		}
		if l.once {
			// Claim the listener so it fires once ever.
			d.mu.Lock()
			claimed := l.active
			l.active = false
			d.mu.Unlock()
			if !claimed {
				continue
			}
		}
		invoked++
		d.invoke(l, msg)
	}

	d.sweep()
	return invoked
}

// invoke runs one handler with panic isolation
func (d *Dispatcher) invoke(l *listener, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			d.observer.OnHandlerPanic(r)
		}
	}()
	l.handler(msg)
}

// sweep drops deactivated listeners from the table. Ids are never reused,
// so removal cannot resurrect a canceled id.
func (d *Dispatcher) sweep() {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.listeners[:0]
	for _, l := range d.listeners {
		if l.active {
			kept = append(kept, l)
		}
	}
	for i := len(kept); i < len(d.listeners); i++ {
		d.listeners[i] = nil
	}
	d.listeners = kept
}

// Len returns the number of active listeners.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, l := range d.listeners {
		if l.active {
			n++
		}
	}
	return n
}
