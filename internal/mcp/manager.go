package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

// InitMode controls initializeFromConfig's failure policy.
type InitMode string

const (
	// ModeStrict requires every configured server to connect successfully.
	ModeStrict InitMode = "strict"
	// ModeLenient requires at least one success if any server is configured.
	ModeLenient InitMode = "lenient"
)

// Manager is the MCP Client Manager: it maintains a dictionary
// name -> Connection and a derived name-index for tools,
// shared across every Chat Session in the process.
type Manager struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	sdkClient   *sdkmcp.Client
	log         zerolog.Logger

	// toolIndex maps an unprefixed tool name to the connection that last
	// claimed it. Rebuilt by every getAllTools call.
	toolIndex map[string]*Connection
}

// NewManager constructs an empty Manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		connections: make(map[string]*Connection),
		sdkClient: sdkmcp.NewClient(&sdkmcp.Implementation{
			Name:    "agentcore",
			Version: "1.0.0",
		}, nil),
		log:       log,
		toolIndex: make(map[string]*Connection),
	}
}

// InitializeFromConfig attempts each configured server in turn. In
// ModeStrict every server must succeed; in ModeLenient at least one must
// succeed if any server was configured at all. The first failure is
// returned as the reported error under strict mode; under lenient mode, an
// error is returned only if every server failed.
func (m *Manager) InitializeFromConfig(ctx context.Context, configs map[string]*Config, mode InitMode) error {
	var firstErr error
	succeeded := 0

	for name, cfg := range configs {
		conn := newConnection(name, cfg)

		m.mu.Lock()
		m.connections[name] = conn
		m.mu.Unlock()

		if !cfg.Enabled {
			continue
		}

		if err := conn.connect(ctx, m.sdkClient); err != nil {
			m.log.Warn().Str("server", name).Err(err).Msg("mcp server failed to connect")
			if firstErr == nil {
				firstErr = fmt.Errorf("mcp server %q: %w", name, err)
			}
			if mode == ModeStrict {
				return firstErr
			}
			continue
		}
		succeeded++
	}

	if mode == ModeLenient && len(configs) > 0 && succeeded == 0 {
		return firstErr
	}
	return nil
}

// GetFailedConnections returns the name and last error of every connection
// currently in the failed state.
func (m *Manager) GetFailedConnections() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string)
	for name, conn := range m.connections {
		if s := conn.status(); s.Status == StatusFailed && s.Error != nil {
			out[name] = *s.Error
		}
	}
	return out
}

// GetAllTools queries every live connection for its tools and rebuilds the
// name -> connection index, returning a merged map keyed by the tool's own
// (unprefixed) name. On a name collision across servers, the last
// iteration's connection wins and a warning is logged — an explicit,
// testable property.
func (m *Manager) GetAllTools(ctx context.Context) (map[string]Tool, error) {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	merged := make(map[string]Tool)
	index := make(map[string]*Connection)

	for _, conn := range conns {
		if !conn.isLive() {
			continue
		}
		tools, err := conn.tools(ctx)
		if err != nil {
			m.log.Warn().Str("server", conn.name).Err(err).Msg("failed to list tools")
			continue
		}
		for _, t := range tools {
			if _, exists := merged[t.Name]; exists {
				m.log.Warn().Str("tool", t.Name).Str("server", conn.name).
					Msg("tool name collision across mcp servers; last registrant wins")
			}
			merged[t.Name] = t
			index[t.Name] = conn
		}
	}

	m.mu.Lock()
	m.toolIndex = index
	m.mu.Unlock()

	return merged, nil
}

// ExecuteTool looks up the owning connection for name and forwards the
// call. Failures are returned as a human-readable error string rather than
// surfaced via panic, so the Chat Session's tool loop can hand the error
// back to the LM and continue.
func (m *Manager) ExecuteTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	m.mu.RLock()
	conn, ok := m.toolIndex[name]
	m.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("no mcp server provides tool %q", name)
	}
	return conn.callTool(ctx, name, args)
}

// DisconnectAll best-effort closes every connection and clears all
// indexes. An individual connection's close failure is logged but never
// surfaced.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, conn := range m.connections {
		if err := conn.close(); err != nil {
			m.log.Warn().Str("server", name).Err(err).Msg("error closing mcp connection")
		}
	}
	m.connections = make(map[string]*Connection)
	m.toolIndex = make(map[string]*Connection)
}

// Status returns the status of every configured connection.
func (m *Manager) Status() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ServerStatus, 0, len(m.connections))
	for _, conn := range m.connections {
		out = append(out, conn.status())
	}
	return out
}

// ListResources lists resources from every live connection, prefixing
// their URIs with the owning server's name.
func (m *Manager) ListResources(ctx context.Context) ([]Resource, error) {
	m.mu.RLock()
	conns := make(map[string]*Connection, len(m.connections))
	for name, c := range m.connections {
		conns[name] = c
	}
	m.mu.RUnlock()

	var all []Resource
	for name, conn := range conns {
		if !conn.isLive() {
			continue
		}
		session := conn.session
		if session == nil {
			continue
		}
		result, err := session.ListResources(ctx, nil)
		if err != nil {
			continue
		}
		for _, r := range result.Resources {
			res := FromSDKResource(r)
			all = append(all, Resource{
				URI:         fmt.Sprintf("mcp://%s/%s", name, res.URI),
				Name:        res.Name,
				Description: res.Description,
				MimeType:    res.MimeType,
			})
		}
	}
	return all, nil
}
