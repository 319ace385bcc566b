/*
Package event implements the Core's Event Bus: in-process
publish/subscribe with synchronous, per-name-ordered delivery and a scoped
unsubscribe primitive.

# Architecture

Built on top of watermill's gochannel for transport plumbing while keeping
direct-call dispatch, so payload types are never lost to serialization and
Emit's ordering guarantee is easy to state: within one event name, handlers
run in registration order; OnAll handlers run after named handlers, also in
registration order.

# Two buses per Chat Session

Every Chat Session owns a local *Bus; the Agent Façade owns one process-wide
global *Bus. Forward wires the two together so that every event the session
emits locally is also delivered on the global bus with sessionId merged into
its payload (see forward.go), preserving order.

# Event names

See types.go for the full llmservice:* and saiki:* vocabulary and their payload
shapes.

# Basic usage

	bus := event.New(logger)
	defer bus.Close()

	h := bus.On(event.LLMServiceResponse, func(e event.Event) {
	    p := e.Payload.(event.ResponsePayload)
	    log.Info().Str("text", p.Text).Msg("lm responded")
	})
	defer h.Cancel()

	bus.Emit(event.Event{Name: event.LLMServiceResponse, Payload: event.ResponsePayload{Text: "hi"}})

# Scoped unsubscribe

A single Handle can span several On/OnAll registrations via OnWithHandle and
OnAllWithHandle; Cancel detaches all of them together. This is how a Chat
Session's local-to-global forwarder (and any future per-session subscriber
group, such as a WebSocket front-end) tears itself down without needing to
track each individual subscription.

# Handler safety

Emit calls every handler synchronously in the caller's goroutine. A handler
that panics is recovered and logged; delivery continues to the remaining
handlers. Handlers that need to do real work should hand off to their own
goroutine rather than block Emit's caller.
*/
package event
