// Package nativetool adapts the in-process file/shell/search tools (the
// native tool surface supplement) to chatsession.ToolSource, so a Chat Session can merge
// them into its tool-calling loop alongside MCP-sourced tools with no
// special-casing: GetAllTools/ExecuteTool are the only contact surface.
package nativetool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dexto-ai/dexto-core/internal/mcp"
	"github.com/dexto-ai/dexto-core/internal/permission"
	"github.com/dexto-ai/dexto-core/internal/tool"
)

// Provider wraps a fixed slice of native tools - read, write, edit, bash,
// grep, glob, list - and dispatches calls to them by name. It does not need
// external server round-trips, unlike an mcp.Connection.
type Provider struct {
	tools map[string]tool.Tool
	log   zerolog.Logger
}

// Options configures the tools that need more than a bare working
// directory: bash's permission checker and its configured patterns.
type Options struct {
	WorkDir         string
	PermChecker     *permission.Checker
	BashPermissions map[string]permission.PermissionAction
	ExternalDir     permission.PermissionAction
}

// New builds a Provider over the native tool set, rooted at opts.WorkDir.
func New(opts Options, log zerolog.Logger) *Provider {
	bashOpts := []tool.BashToolOption{
		tool.WithPermissionChecker(opts.PermChecker),
	}
	if opts.BashPermissions != nil {
		bashOpts = append(bashOpts, tool.WithBashPermissions(opts.BashPermissions))
	}
	if opts.ExternalDir != "" {
		bashOpts = append(bashOpts, tool.WithExternalDirAction(opts.ExternalDir))
	}

	tools := []tool.Tool{
		tool.NewReadTool(opts.WorkDir),
		tool.NewWriteTool(opts.WorkDir),
		tool.NewEditTool(opts.WorkDir),
		tool.NewBashTool(opts.WorkDir, bashOpts...),
		tool.NewGrepTool(opts.WorkDir),
		tool.NewGlobTool(opts.WorkDir),
		tool.NewListTool(opts.WorkDir),
	}

	byName := make(map[string]tool.Tool, len(tools))
	for _, t := range tools {
		byName[t.ID()] = t
	}
	return &Provider{tools: byName, log: log}
}

// GetAllTools returns every native tool as an mcp.Tool, so it slots into
// chatsession's ToolSource merge the same way an mcp.Manager's tools do.
func (p *Provider) GetAllTools(ctx context.Context) (map[string]mcp.Tool, error) {
	out := make(map[string]mcp.Tool, len(p.tools))
	for name, t := range p.tools {
		out[name] = mcp.Tool{
			Name:        name,
			Description: t.Description(),
			InputSchema: t.Parameters(),
		}
	}
	return out, nil
}

// ExecuteTool runs the named tool in-process. Unlike mcp.Manager's
// ExecuteTool, there is no network round-trip or connection to look up -
// only a name lookup into the fixed tool slice.
func (p *Provider) ExecuteTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	t, ok := p.tools[name]
	if !ok {
		return "", fmt.Errorf("no native tool %q", name)
	}

	toolCtx := &tool.Context{
		WorkDir: "",
		AbortCh: make(chan struct{}),
	}

	result, err := t.Execute(ctx, args, toolCtx)
	if err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", result.Error
	}
	return result.Output, nil
}
