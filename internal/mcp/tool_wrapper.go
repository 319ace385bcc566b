package mcp

import (
	"context"
	"encoding/json"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// einoTool adapts one MCP tool, routed through a Manager, to Eino's
// InvokableTool interface so the Chat Session's tool-calling loop can hand
// it straight to the LM service alongside native tools.
type einoTool struct {
	mgr  *Manager
	tool Tool
}

// EinoTools converts every tool in a Manager.GetAllTools() result into
// Eino-invokable tools.
func EinoTools(mgr *Manager, tools map[string]Tool) []einotool.InvokableTool {
	out := make([]einotool.InvokableTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, &einoTool{mgr: mgr, tool: t})
	}
	return out
}

func (e *einoTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	params := parseInputSchemaToParams(e.tool.InputSchema)
	return &schema.ToolInfo{
		Name:        e.tool.Name,
		Desc:        e.tool.Description,
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

func (e *einoTool) InvokableRun(ctx context.Context, argsJSON string, opts ...einotool.Option) (string, error) {
	return e.mgr.ExecuteTool(ctx, e.tool.Name, json.RawMessage(argsJSON))
}

// parseInputSchemaToParams converts a JSON Schema object's top-level
// properties into Eino's ParameterInfo map. Nested schemas are flattened to
// their declared type only.
func parseInputSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var jsonSchema struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}

	if err := json.Unmarshal(schemaJSON, &jsonSchema); err != nil {
		return nil
	}

	requiredSet := make(map[string]bool, len(jsonSchema.Required))
	for _, r := range jsonSchema.Required {
		requiredSet[r] = true
	}

	params := make(map[string]*schema.ParameterInfo, len(jsonSchema.Properties))
	for name, prop := range jsonSchema.Properties {
		paramType := schema.String
		switch prop.Type {
		case "integer":
			paramType = schema.Integer
		case "number":
			paramType = schema.Number
		case "boolean":
			paramType = schema.Boolean
		case "array":
			paramType = schema.Array
		case "object":
			paramType = schema.Object
		}

		params[name] = &schema.ParameterInfo{
			Type:     paramType,
			Desc:     prop.Description,
			Required: requiredSet[name],
		}
	}

	return params
}
