package event

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func newTestBus() *Bus {
	return New(zerolog.Nop())
}

func TestBus_On(t *testing.T) {
	bus := newTestBus()

	var received Event
	h := bus.On("session.created", func(e Event) {
		received = e
	})
	defer h.Cancel()

	bus.Emit(Event{Name: "session.created", Payload: "test-session"})

	if received.Name != "session.created" {
		t.Errorf("expected session.created, got %v", received.Name)
	}
	if received.Payload != "test-session" {
		t.Errorf("expected 'test-session', got %v", received.Payload)
	}
}

func TestBus_OnAll(t *testing.T) {
	bus := newTestBus()

	var count int32
	h := bus.OnAll(func(e Event) {
		atomic.AddInt32(&count, 1)
	})
	defer h.Cancel()

	bus.Emit(Event{Name: "session.created"})
	bus.Emit(Event{Name: "message.created"})
	bus.Emit(Event{Name: "file.edited"})

	if atomic.LoadInt32(&count) != 3 {
		t.Errorf("expected 3 events, got %d", count)
	}
}

func TestBus_HandleCancel(t *testing.T) {
	bus := newTestBus()

	var count int32
	h := bus.On("session.created", func(e Event) {
		atomic.AddInt32(&count, 1)
	})

	bus.Emit(Event{Name: "session.created"})
	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("expected 1 event before cancel, got %d", count)
	}

	h.Cancel()

	bus.Emit(Event{Name: "session.created"})
	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("expected still 1 event after cancel, got %d", count)
	}
}

func TestBus_HandleCancelGlobal(t *testing.T) {
	bus := newTestBus()

	var count int32
	h := bus.OnAll(func(e Event) {
		atomic.AddInt32(&count, 1)
	})

	bus.Emit(Event{Name: "session.created"})
	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("expected 1 event before cancel, got %d", count)
	}

	h.Cancel()

	bus.Emit(Event{Name: "message.created"})
	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("expected still 1 event after cancel, got %d", count)
	}
}

func TestBus_SharedHandleCancelsBoth(t *testing.T) {
	bus := newTestBus()

	var aCount, bCount int32
	h := &Handle{bus: bus}
	bus.OnWithHandle(h, "a", func(e Event) { atomic.AddInt32(&aCount, 1) })
	bus.OnWithHandle(h, "b", func(e Event) { atomic.AddInt32(&bCount, 1) })

	bus.Emit(Event{Name: "a"})
	bus.Emit(Event{Name: "b"})
	if aCount != 1 || bCount != 1 {
		t.Fatalf("expected both to fire once, got a=%d b=%d", aCount, bCount)
	}

	h.Cancel()

	bus.Emit(Event{Name: "a"})
	bus.Emit(Event{Name: "b"})
	if aCount != 1 || bCount != 1 {
		t.Fatalf("expected neither to fire after cancel, got a=%d b=%d", aCount, bCount)
	}
}

// TestBus_EmitOrderedWithinName asserts that delivery preserves registration
// order within a single event name.
func TestBus_EmitOrderedWithinName(t *testing.T) {
	bus := newTestBus()

	var mu sync.Mutex
	var order []int

	for i := 0; i < 5; i++ {
		i := i
		bus.On("x", func(e Event) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	bus.Emit(Event{Name: "x"})

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("expected strictly increasing registration order, got %v", order)
		}
	}
}

// TestBus_NamedBeforeGlobal documents that named handlers run before OnAll
// handlers for the same Emit; this module relies on no particular ordering
// between the two groups beyond "named, then global" being internally
// consistent on every call.
func TestBus_NamedBeforeGlobal(t *testing.T) {
	bus := newTestBus()

	var order []string
	bus.OnAll(func(e Event) { order = append(order, "global") })
	bus.On("x", func(e Event) { order = append(order, "named") })

	bus.Emit(Event{Name: "x"})

	if len(order) != 2 || order[0] != "named" || order[1] != "global" {
		t.Fatalf("expected [named global], got %v", order)
	}
}

func TestBus_HandlerPanicDoesNotStopDelivery(t *testing.T) {
	bus := newTestBus()

	var secondCalled bool
	bus.On("x", func(e Event) { panic("boom") })
	bus.On("x", func(e Event) { secondCalled = true })

	bus.Emit(Event{Name: "x"})

	if !secondCalled {
		t.Fatal("expected second handler to run despite first handler panicking")
	}
}

func TestBus_NoSubscribers(t *testing.T) {
	bus := newTestBus()
	bus.Emit(Event{Name: "nothing.listens"})
}

func TestBus_Close(t *testing.T) {
	bus := newTestBus()

	var count int32
	bus.On("x", func(e Event) { atomic.AddInt32(&count, 1) })

	if err := bus.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	bus.Emit(Event{Name: "x"})
	if atomic.LoadInt32(&count) != 0 {
		t.Errorf("expected no delivery after close, got %d", count)
	}

	h := bus.On("y", func(e Event) {})
	h.Cancel() // must not panic on a closed bus
}

func TestForward_AttachesSessionID(t *testing.T) {
	local := newTestBus()
	global := newTestBus()

	var gotPayload map[string]any
	global.On(LLMServiceResponse, func(e Event) {
		gotPayload, _ = e.Payload.(map[string]any)
	})

	h := Forward(local, global, "sess-123")
	defer h.Cancel()

	local.Emit(Event{Name: LLMServiceResponse, Payload: ResponsePayload{Text: "hi"}})

	if gotPayload == nil {
		t.Fatal("expected forwarded payload")
	}
	if gotPayload["sessionId"] != "sess-123" {
		t.Errorf("expected sessionId attribution, got %v", gotPayload["sessionId"])
	}
	if gotPayload["text"] != "hi" {
		t.Errorf("expected original payload fields preserved, got %v", gotPayload)
	}
}

func TestForward_SynthesizesPayloadWhenNil(t *testing.T) {
	local := newTestBus()
	global := newTestBus()

	var got Event
	global.On(LLMServiceThinking, func(e Event) { got = e })

	h := Forward(local, global, "sess-456")
	defer h.Cancel()

	local.Emit(Event{Name: LLMServiceThinking})

	payload, ok := got.Payload.(struct {
		SessionID string `json:"sessionId"`
	})
	if !ok {
		t.Fatalf("expected synthesized {sessionId} payload, got %#v", got.Payload)
	}
	if payload.SessionID != "sess-456" {
		t.Errorf("expected sessionId sess-456, got %v", payload.SessionID)
	}
}

func TestForward_StopsAfterCancel(t *testing.T) {
	local := newTestBus()
	global := newTestBus()

	var count int32
	global.OnAll(func(e Event) { atomic.AddInt32(&count, 1) })

	h := Forward(local, global, "sess-789")
	local.Emit(Event{Name: "x"})
	if atomic.LoadInt32(&count) != 1 {
		t.Fatalf("expected 1 forwarded event, got %d", count)
	}

	h.Cancel()
	local.Emit(Event{Name: "x"})
	if atomic.LoadInt32(&count) != 1 {
		t.Fatalf("expected forwarding to stop after cancel, got %d", count)
	}
}
