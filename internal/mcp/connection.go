package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Connection is a single MCP Connection: it owns a transport
// instance and a client session handle with lifecycle states idle ->
// connecting -> live (on handshake) -> closed (explicit disconnect) or ->
// failed (error captured). Cached tools/prompts are invalidated on any
// transition out of live.
type Connection struct {
	mu sync.RWMutex

	name    string
	config  *Config
	session *sdkmcp.ClientSession

	state      Status
	lastError  string
	serverInfo *ServerInfo

	cachedTools   []Tool
	cachedPrompts []Prompt
	toolsCached   bool
	promptsCached bool
}

// newConnection constructs an idle Connection; it does not connect.
func newConnection(name string, config *Config) *Connection {
	return &Connection{name: name, config: config, state: StatusIdle}
}

// connect dials the configured transport and performs the MCP handshake,
// transitioning idle -> connecting -> live, or -> failed with lastError set.
func (c *Connection) connect(ctx context.Context, sdkClient *sdkmcp.Client) error {
	c.mu.Lock()
	c.state = StatusConnecting
	c.mu.Unlock()

	timeout := time.Duration(c.config.Timeout) * time.Millisecond
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	transport, err := c.buildTransport(timeout)
	if err != nil {
		c.fail(err)
		return err
	}

	session, err := sdkClient.Connect(dialCtx, transport, nil)
	if err != nil {
		c.fail(fmt.Errorf("connect: %w", err))
		return err
	}

	c.mu.Lock()
	c.session = session
	if res := session.InitializeResult(); res != nil {
		c.serverInfo = &ServerInfo{Name: res.ServerInfo.Name, Version: res.ServerInfo.Version}
	}
	c.state = StatusLive
	c.mu.Unlock()
	return nil
}

func (c *Connection) buildTransport(timeout time.Duration) (sdkmcp.Transport, error) {
	switch c.config.Type {
	case TransportTypeSSE:
		return &sdkmcp.SSEClientTransport{
			Endpoint:   c.config.URL,
			HTTPClient: &http.Client{Timeout: timeout},
		}, nil

	case TransportTypeHTTP:
		return &sdkmcp.SSEClientTransport{
			Endpoint:   c.config.URL,
			HTTPClient: &http.Client{Timeout: timeout},
		}, nil

	case TransportTypeStdio:
		if len(c.config.Command) == 0 {
			return nil, fmt.Errorf("empty command")
		}
		cmd := exec.Command(c.config.Command[0], c.config.Command[1:]...)
		cmd.Env = os.Environ()
		for k, v := range c.config.Environment {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
		return &sdkmcp.CommandTransport{Command: cmd}, nil

	default:
		return nil, fmt.Errorf("unknown transport type: %s", c.config.Type)
	}
}

func (c *Connection) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StatusFailed
	c.lastError = err.Error()
	c.invalidateCacheLocked()
}

func (c *Connection) invalidateCacheLocked() {
	c.cachedTools = nil
	c.cachedPrompts = nil
	c.toolsCached = false
	c.promptsCached = false
}

// close disconnects the session and transitions to closed, invalidating
// caches.
func (c *Connection) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		_ = c.session.Close()
	}
	c.state = StatusClosed
	c.invalidateCacheLocked()
	return nil
}

func (c *Connection) isLive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StatusLive
}

// tools returns this connection's tools, using the cache populated on first
// successful fetch.
func (c *Connection) tools(ctx context.Context) ([]Tool, error) {
	c.mu.RLock()
	if c.toolsCached {
		t := c.cachedTools
		c.mu.RUnlock()
		return t, nil
	}
	session := c.session
	c.mu.RUnlock()

	if session == nil {
		return nil, fmt.Errorf("not connected")
	}
	result, err := session.ListTools(ctx, nil)
	if err != nil {
		return nil, err
	}
	tools := make([]Tool, len(result.Tools))
	for i, t := range result.Tools {
		tools[i] = FromSDKTool(t)
	}

	c.mu.Lock()
	c.cachedTools = tools
	c.toolsCached = true
	c.mu.Unlock()
	return tools, nil
}

func (c *Connection) prompts(ctx context.Context) ([]Prompt, error) {
	c.mu.RLock()
	if c.promptsCached {
		p := c.cachedPrompts
		c.mu.RUnlock()
		return p, nil
	}
	session := c.session
	c.mu.RUnlock()

	if session == nil {
		return nil, fmt.Errorf("not connected")
	}
	result, err := session.ListPrompts(ctx, nil)
	if err != nil {
		return nil, err
	}
	prompts := make([]Prompt, len(result.Prompts))
	for i, p := range result.Prompts {
		prompts[i] = FromSDKPrompt(p)
	}

	c.mu.Lock()
	c.cachedPrompts = prompts
	c.promptsCached = true
	c.mu.Unlock()
	return prompts, nil
}

// callTool invokes toolName with args, which may be a structured JSON
// object or a bare JSON string; an unparseable string is wrapped as
// {"input": str}.
func (c *Connection) callTool(ctx context.Context, toolName string, args json.RawMessage) (string, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session == nil {
		return "", fmt.Errorf("server not connected: %s", c.name)
	}

	argsMap, err := decodeToolArgs(args)
	if err != nil {
		return "", err
	}

	result, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: toolName, Arguments: argsMap})
	if err != nil {
		return "", err
	}

	if result.IsError {
		for _, content := range result.Content {
			if tc, ok := content.(*sdkmcp.TextContent); ok {
				return "", fmt.Errorf("tool error: %s", tc.Text)
			}
		}
		return "", fmt.Errorf("tool execution failed")
	}

	var out strings.Builder
	for _, content := range result.Content {
		if tc, ok := content.(*sdkmcp.TextContent); ok {
			out.WriteString(tc.Text)
		}
	}
	return out.String(), nil
}

// decodeToolArgs accepts either a JSON object or a bare JSON string,
// wrapping an unparseable string as {"input": str}.
func decodeToolArgs(args json.RawMessage) (map[string]any, error) {
	if len(args) == 0 {
		return nil, nil
	}

	var asObject map[string]any
	if err := json.Unmarshal(args, &asObject); err == nil {
		return asObject, nil
	}

	var asString string
	if err := json.Unmarshal(args, &asString); err == nil {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(asString), &parsed); err == nil {
			return parsed, nil
		}
		return map[string]any{"input": asString}, nil
	}

	return nil, fmt.Errorf("unparseable tool arguments: %s", string(args))
}

func (c *Connection) status() ServerStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := ServerStatus{Name: c.name, Status: c.state, ToolCount: len(c.cachedTools)}
	if c.lastError != "" {
		s.Error = &c.lastError
	}
	return s
}
