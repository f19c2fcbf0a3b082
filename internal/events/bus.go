// Package events provides the asynchronous pub/sub bus that connects
// the orchestrator with its workers.
//
// The bus guarantees serialized delivery: subscribers never see two
// events concurrently, and events published while a dispatch is in
// progress are queued and delivered in publish order.  Point-to-point
// requests to workers are delivered asynchronously via [Bus.Send].
package events

import "sync"

// Event is implemented by every message carried on the bus.
type Event interface {
	// EventType is the subscription key, unique per concrete type.
	EventType() string
}

// Handler receives events.
type Handler interface {
	HandleEvent(Event)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(Event)

// HandleEvent calls f(e).
func (f HandlerFunc) HandleEvent(e Event) { f(e) }

// Filter restricts a subscription to events it returns true for.
type Filter func(Event) bool

type subscriber struct {
	handler Handler
	filter  Filter // nil means no filtering
}

// Bus is an in-process event bus with serialized dispatch.
// The zero value is not usable; call New.
type Bus struct {
	mu          sync.Mutex
	subs        map[string][]subscriber
	queue       []Event
	dispatching bool
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]subscriber)}
}

// Subscribe registers h for all events of the given type.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.SubscribeFiltered(eventType, h, nil)
}

// SubscribeFiltered registers h for events of the given type that pass
// the filter.  A nil filter accepts everything.
func (b *Bus) SubscribeFiltered(eventType string, h Handler, f Filter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventType] = append(b.subs[eventType], subscriber{handler: h, filter: f})
}

// Unsubscribe removes every subscription of h for the given type.
// h is matched by identity and must be of a comparable type (use a
// pointer receiver rather than a HandlerFunc).
func (b *Bus) Unsubscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	kept := subs[:0]
	for _, s := range subs {
		if s.handler != h {
			kept = append(kept, s)
		}
	}
	b.subs[eventType] = kept
}

// Publish delivers e to every matching subscriber.  Delivery is
// serialized: if a dispatch is already running (including the case of
// a handler publishing from within its own handler), the event is
// queued and delivered when the current dispatch completes.  The
// publishing goroutine that starts a dispatch drains the queue before
// returning.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	b.queue = append(b.queue, e)
	if b.dispatching {
		b.mu.Unlock()
		return
	}
	b.dispatching = true

	for len(b.queue) > 0 {
		next := b.queue[0]
		b.queue = b.queue[1:]
		subs := append([]subscriber(nil), b.subs[next.EventType()]...)
		b.mu.Unlock()

		for _, s := range subs {
			if s.filter != nil && !s.filter(next) {
				continue
			}
			s.handler.HandleEvent(next)
		}

		b.mu.Lock()
	}

	b.dispatching = false
	b.mu.Unlock()
}

// Send delivers e directly to target on a fresh goroutine, bypassing
// subscriptions.  Used for requests addressed to a specific worker;
// the worker replies by publishing a response event.
func (b *Bus) Send(target Handler, e Event) {
	go target.HandleEvent(e)
}
