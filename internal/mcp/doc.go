// Package mcp implements the MCP Client Manager: a pool of
// live connections to external tool servers speaking the Model Context
// Protocol, shared across every Chat Session in the process, using the
// official MCP Go SDK (modelcontextprotocol/go-sdk/mcp) for the wire
// protocol and transports.
//
// # Key pieces
//
// A Connection (connection.go) owns one transport (stdio, sse, or http)
// and a client session handle, with lifecycle states idle -> connecting ->
// live -> {failed, closed}; its tool/prompt listings are cached on first
// successful fetch and invalidated on any transition out of live.
//
// A Manager (manager.go) owns a name -> Connection dictionary plus a
// derived tool-name index rebuilt by every GetAllTools call. Tool names are
// NOT prefixed by server name: on a collision across servers, the last
// connection iterated wins and a warning is logged — an explicit, testable
// tool-collision property.
//
// EinoTools (tool_wrapper.go) adapts a Manager's tool set into Eino's
// InvokableTool interface so the Chat Session's tool-calling loop can hand
// MCP tools to the LM service the same way it hands native tools.
//
// # Basic usage
//
//	mgr := mcp.NewManager(logger)
//	err := mgr.InitializeFromConfig(ctx, configs, mcp.ModeLenient)
//	tools, _ := mgr.GetAllTools(ctx)
//	result, err := mgr.ExecuteTool(ctx, "add", json.RawMessage(`{"a":2,"b":3}`))
//	mgr.DisconnectAll()
package mcp
