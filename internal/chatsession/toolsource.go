package chatsession

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/dexto-ai/dexto-core/internal/mcp"
	"github.com/dexto-ai/dexto-core/internal/provider"
)

// ToolSource is anything a Chat Session's tool-calling loop can query for
// tool definitions and dispatch calls to. *mcp.Manager satisfies this
// directly; a native/local tool provider (nativetool.Provider) is the
// other intended implementer, slotted in alongside MCP sources with no
// change to the loop itself.
type ToolSource interface {
	GetAllTools(ctx context.Context) (map[string]mcp.Tool, error)
	ExecuteTool(ctx context.Context, name string, args json.RawMessage) (string, error)
}

var _ ToolSource = (*mcp.Manager)(nil)

// mergeTools queries every source and returns the union of their tools plus
// an index of which source owns each name. On a name collision across
// sources, the later source in the slice wins and a warning is logged -
// extending the MCP Client Manager's own last-registrant-wins policy (spec
// §4.5/§9) to the native+MCP merge a single-source tool list does not need to perform.
func mergeTools(ctx context.Context, sources []ToolSource, log zerolog.Logger) (map[string]mcp.Tool, map[string]ToolSource, error) {
	tools := make(map[string]mcp.Tool)
	owners := make(map[string]ToolSource)

	for _, src := range sources {
		srcTools, err := src.GetAllTools(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("chat session: merge tools: %w", err)
		}
		for name, tool := range srcTools {
			if _, exists := tools[name]; exists {
				log.Warn().Str("tool", name).Msg("tool name collision across sources; last source wins")
			}
			tools[name] = tool
			owners[name] = src
		}
	}
	return tools, owners, nil
}

// toProviderToolInfos adapts a merged tool index into the Eino ToolInfo
// slice a CompletionRequest expects, reusing provider.ConvertToEinoTools'
// JSON-Schema flattening.
func toProviderToolInfos(tools map[string]mcp.Tool) []*schema.ToolInfo {
	infos := make([]provider.ToolInfo, 0, len(tools))
	for _, t := range tools {
		infos = append(infos, provider.ToolInfo{Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
	}
	return provider.ConvertToEinoTools(infos)
}
