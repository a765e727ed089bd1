package forge

import (
	"context"
	"encoding/json"

	"github.com/nbriggs/artificer/internal/tools"
)

// RegisterMetaTools registers create_tool and update_tool, the
// capabilities through which the model drives the forge. Both return
// the pipeline Result as their JSON output, success or not, so the
// model always sees what happened.
func RegisterMetaTools(p *Pipeline, registry *tools.Registry) {
	registry.Register(&tools.Tool{
		Name: "create_tool",
		Description: "Forge a brand-new tool from a description of what it should do. " +
			"The tool is compiled and becomes available immediately. " +
			"Do not use this when an existing tool already covers the need.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "snake_case name for the new tool (optional, derived from the requirements if omitted)",
				},
				"requirements": map[string]any{
					"type":        "string",
					"description": "what the tool should do: inputs, behavior, and output",
				},
			},
			"required": []string{"requirements"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			requirements, _ := args["requirements"].(string)
			if requirements == "" {
				return tools.ErrorResult("requirements is required"), nil
			}
			name, _ := args["name"].(string)
			if name == "" {
				name = deriveName(requirements)
			}

			result := p.Create(ctx, Specification{
				ToolName:        name,
				ToolDescription: requirements,
			})
			return marshalResult(result), nil
		},
	})

	registry.Register(&tools.Tool{
		Name: "update_tool",
		Description: "Re-forge an existing tool with new or changed behavior. " +
			"The current implementation is revised, and behavior listed in " +
			"preserve is kept working.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "name of the existing tool to update",
				},
				"requirements": map[string]any{
					"type":        "string",
					"description": "the requested change or new behavior",
				},
				"preserve": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "existing behavior that must keep working",
				},
			},
			"required": []string{"name", "requirements"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			name, _ := args["name"].(string)
			requirements, _ := args["requirements"].(string)
			if name == "" || requirements == "" {
				return tools.ErrorResult("name and requirements are required"), nil
			}

			var preserve []string
			if raw, ok := args["preserve"].([]any); ok {
				for _, v := range raw {
					if s, ok := v.(string); ok {
						preserve = append(preserve, s)
					}
				}
			}

			result := p.Update(ctx, Specification{
				ToolName:              name,
				UpdateDescription:     requirements,
				PreserveFunctionality: preserve,
			})
			return marshalResult(result), nil
		},
	})
}

func marshalResult(r *Result) string {
	out, err := json.Marshal(r)
	if err != nil {
		return tools.ErrorResult("encode forge result")
	}
	return string(out)
}
