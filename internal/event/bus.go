// Package event implements the Core's Event Bus: an in-process
// publish/subscribe primitive with synchronous, per-name-ordered delivery
// and a scoped unsubscribe primitive. It is built on watermill's gochannel
// pub/sub for its transport plumbing, while keeping direct (non-channel)
// dispatch so payload types are never lost to serialization and so Emit's
// ordering guarantee is trivial to state.
package event

import (
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
)

// Event is one emission on a Bus: a name (e.g. "llmservice:thinking" or
// "saiki:conversationReset") and an arbitrary, event-specific payload.
type Event struct {
	Name    string `json:"name"`
	Payload any    `json:"payload"`
}

// Handler receives events. Panics inside a Handler are recovered and logged
// by the Bus; they never prevent delivery to subsequent handlers for the
// same event.
type Handler func(Event)

type subscriberEntry struct {
	id uint64
	fn Handler
}

// Handle is a scoped-unsubscribe token: Cancel detaches every Handler that
// was registered through this Handle, across however many event names it
// spans. This backs a scoped unsubscribe primitive: aborting the handle
// detaches all handlers registered with it. Used, in this module, by the
// Chat Session's local-to-global forwarder to tear down cleanly on session
// end.
type Handle struct {
	bus *Bus
	mu  sync.Mutex
	ids []registeredID
}

type registeredID struct {
	name string // empty string means "global" (OnAll) subscription
	id   uint64
}

// Cancel detaches every handler registered through this Handle. Safe to
// call more than once; later calls are no-ops.
func (h *Handle) Cancel() {
	h.mu.Lock()
	ids := h.ids
	h.ids = nil
	h.mu.Unlock()

	for _, r := range ids {
		if r.name == "" {
			h.bus.unsubscribeGlobal(r.id)
		} else {
			h.bus.unsubscribe(r.name, r.id)
		}
	}
}

func (h *Handle) track(r registeredID) {
	h.mu.Lock()
	h.ids = append(h.ids, r)
	h.mu.Unlock()
}

// Bus is an in-process event bus. Delivery via Emit is synchronous and,
// within a single event name, preserves registration order.
// Construct with New; the zero value is not usable.
type Bus struct {
	mu sync.RWMutex

	// pubsub is retained as a hook for future out-of-process forwarding.
	// All ordering-sensitive dispatch below bypasses it and calls handlers
	// directly, which is what lets Emit be synchronous and strictly
	// ordered per name.
	pubsub *gochannel.GoChannel

	subscribers map[string][]subscriberEntry
	global      []subscriberEntry

	nextID uint64
	log    zerolog.Logger
	closed bool
}

// New constructs a standalone Bus. Every Chat Session (C7) owns exactly one
// of these as its local bus; the Agent Façade (C9) owns the process-wide
// global bus, built the same way.
func New(log zerolog.Logger) *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 100, Persistent: false},
			watermill.NopLogger{},
		),
		subscribers: make(map[string][]subscriberEntry),
		log:         log,
	}
}

func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// On registers fn against a single event name and returns a new Handle
// scoped to just this subscription.
func (b *Bus) On(name string, fn Handler) *Handle {
	h := &Handle{bus: b}
	b.OnWithHandle(h, name, fn)
	return h
}

// OnWithHandle registers fn against name under an existing Handle, so a
// single later Cancel tears down every subscription sharing that Handle.
func (b *Bus) OnWithHandle(h *Handle, name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	id := b.newID()
	b.subscribers[name] = append(b.subscribers[name], subscriberEntry{id: id, fn: fn})
	h.track(registeredID{name: name, id: id})
}

// OnAll registers fn against every event name and returns a new scoped
// Handle.
func (b *Bus) OnAll(fn Handler) *Handle {
	h := &Handle{bus: b}
	b.OnAllWithHandle(h, fn)
	return h
}

// OnAllWithHandle registers fn against every event name under an existing
// Handle.
func (b *Bus) OnAllWithHandle(h *Handle, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	id := b.newID()
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})
	h.track(registeredID{name: "", id: id})
}

func (b *Bus) unsubscribe(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[name]
	for i, e := range subs {
		if e.id == id {
			b.subscribers[name] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.global {
		if e.id == id {
			b.global = append(b.global[:i:i], b.global[i+1:]...)
			return
		}
	}
}

// Emit delivers event synchronously to every handler registered for its
// name, in registration order, followed by every OnAll handler in
// registration order. A handler that panics is recovered and logged;
// delivery continues to the remaining handlers.
func (b *Bus) Emit(event Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	named := append([]subscriberEntry(nil), b.subscribers[event.Name]...)
	global := append([]subscriberEntry(nil), b.global...)
	b.mu.RUnlock()

	for _, e := range named {
		b.invoke(e.fn, event)
	}
	for _, e := range global {
		b.invoke(e.fn, event)
	}
}

func (b *Bus) invoke(fn Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("event", event.Name).
				Interface("panic", r).
				Msg("event handler panicked, continuing delivery to remaining handlers")
		}
	}()
	fn(event)
}

// Close detaches every subscriber and marks the bus closed; subsequent
// On/OnAll calls are no-ops and Emit becomes a no-op.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.subscribers = make(map[string][]subscriberEntry)
	b.global = nil
	return b.pubsub.Close()
}
