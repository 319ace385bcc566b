package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestDecodeToolArgs_StructuredObject(t *testing.T) {
	args, err := decodeToolArgs(json.RawMessage(`{"a":2,"b":3}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if args["a"] != float64(2) || args["b"] != float64(3) {
		t.Fatalf("unexpected args: %#v", args)
	}
}

func TestDecodeToolArgs_JSONStringOfObject(t *testing.T) {
	args, err := decodeToolArgs(json.RawMessage(`"{\"a\":2}"`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if args["a"] != float64(2) {
		t.Fatalf("expected parsed object from JSON string, got %#v", args)
	}
}

// TestDecodeToolArgs_UnparseableStringWrapped covers component behavior:
// "unparseable strings are wrapped as {input: str}".
func TestDecodeToolArgs_UnparseableStringWrapped(t *testing.T) {
	args, err := decodeToolArgs(json.RawMessage(`"not json at all"`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if args["input"] != "not json at all" {
		t.Fatalf("expected {input: ...} wrapping, got %#v", args)
	}
}

func TestDecodeToolArgs_Empty(t *testing.T) {
	args, err := decodeToolArgs(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if args != nil {
		t.Fatalf("expected nil args for empty input, got %#v", args)
	}
}

func TestManager_InitializeFromConfig_DisabledServersSkipped(t *testing.T) {
	mgr := NewManager(zerolog.Nop())
	configs := map[string]*Config{
		"disabled-one": {Enabled: false},
	}

	if err := mgr.InitializeFromConfig(context.Background(), configs, ModeLenient); err != nil {
		t.Fatalf("expected no error for an all-disabled config set, got %v", err)
	}

	status := mgr.Status()
	if len(status) != 1 || status[0].Status != StatusIdle {
		t.Fatalf("expected one idle connection for the disabled server, got %#v", status)
	}
}

func TestManager_InitializeFromConfig_StrictFailsOnBadTransport(t *testing.T) {
	mgr := NewManager(zerolog.Nop())
	configs := map[string]*Config{
		"bad": {Enabled: true, Type: "not-a-real-transport"},
	}

	err := mgr.InitializeFromConfig(context.Background(), configs, ModeStrict)
	if err == nil {
		t.Fatal("expected strict mode to fail when its only server fails to connect")
	}
}

func TestManager_ExecuteTool_UnknownToolIsHumanReadableError(t *testing.T) {
	mgr := NewManager(zerolog.Nop())

	_, err := mgr.ExecuteTool(context.Background(), "nonexistent", nil)
	if err == nil {
		t.Fatal("expected an error for an unknown tool")
	}
}

func TestManager_DisconnectAll_ClearsState(t *testing.T) {
	mgr := NewManager(zerolog.Nop())
	mgr.connections["x"] = newConnection("x", &Config{Enabled: false})

	mgr.DisconnectAll()

	if len(mgr.Status()) != 0 {
		t.Fatalf("expected no connections after DisconnectAll, got %#v", mgr.Status())
	}
}

// TestManager_GetAllTools_LastRegistrantWinsOnCollision exercises the
// last-registrant-wins collision policy through GetAllTools, using two
// connections marked live with pre-filled tool caches so that no session is
// queried; the merge/collision logic is independent of transport so this
// isolates it.
func TestManager_GetAllTools_LastRegistrantWinsOnCollision(t *testing.T) {
	mgr := NewManager(zerolog.Nop())

	connA := newConnection("serverA", &Config{})
	connA.state = StatusLive
	connA.cachedTools = []Tool{{Name: "shared", Description: "from A"}}
	connA.toolsCached = true

	connB := newConnection("serverB", &Config{})
	connB.state = StatusLive
	connB.cachedTools = []Tool{{Name: "shared", Description: "from B"}}
	connB.toolsCached = true

	mgr.connections["serverA"] = connA
	mgr.connections["serverB"] = connB

	merged, err := mgr.GetAllTools(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := merged["shared"]; !ok {
		t.Fatal("expected the colliding tool name to survive under one of the two connections")
	}
	// Go map iteration order is randomized, so either connection may be
	// "last"; what matters is exactly one definition survives, not which.
	if len(merged) != 1 {
		t.Fatalf("expected exactly one merged tool for the colliding name, got %d", len(merged))
	}
}
