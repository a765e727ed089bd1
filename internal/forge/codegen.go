package forge

import (
	"fmt"
	"regexp"
	"strings"
)

// Specification describes the capability to synthesize. For updates,
// UpdateDescription and PreserveFunctionality refine an existing
// capability instead of starting fresh.
type Specification struct {
	ToolName              string         `json:"tool_name"`
	ToolDescription       string         `json:"tool_description"`
	InputParametersSchema map[string]any `json:"input_parameters_schema,omitempty"`
	OutputDescription     string         `json:"output_description,omitempty"`
	UpdateDescription     string         `json:"update_description,omitempty"`
	PreserveFunctionality []string       `json:"preserve_functionality,omitempty"`
}

// buildCodegenPrompt renders the system prompt for the code-generation
// call. existingCode is empty for fresh capabilities; for updates it is
// the current source, which the model revises rather than rewrites.
func buildCodegenPrompt(spec Specification, denied []string, existingCode string) string {
	var sb strings.Builder
	sb.WriteString("You are an expert Go programmer. Write a complete, standalone Go program ")
	sb.WriteString("(package main, a single main.go file) that implements a tool. ")
	sb.WriteString("The program must follow this contract exactly:\n\n")
	sb.WriteString("1. When invoked with the single argument --describe, print this JSON manifest ")
	sb.WriteString("to stdout and exit 0:\n")
	fmt.Fprintf(&sb, "   {\"name\": %q, \"description\": %q, \"parameters\": <JSON schema object for the arguments>}\n", spec.ToolName, spec.ToolDescription)
	sb.WriteString("2. Otherwise, read a single JSON object of arguments from stdin, do the work, ")
	sb.WriteString("and print a single JSON result object to stdout. On failure, print ")
	sb.WriteString("{\"error\": \"<message>\"} and exit 0.\n\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- Standard library only. No third-party imports.\n")
	fmt.Fprintf(&sb, "- Never import any of: %s.\n", strings.Join(denied, ", "))
	sb.WriteString("- Validate arguments and handle errors; never panic.\n")
	sb.WriteString("- Output only Go source code, no explanations and no markdown fences.\n")

	fmt.Fprintf(&sb, "\nTool name: %s\nTool description: %s\n", spec.ToolName, spec.ToolDescription)
	if len(spec.InputParametersSchema) > 0 {
		fmt.Fprintf(&sb, "Input parameters schema: %v\n", spec.InputParametersSchema)
	}
	if spec.OutputDescription != "" {
		fmt.Fprintf(&sb, "Output: %s\n", spec.OutputDescription)
	}

	if existingCode != "" {
		sb.WriteString("\nThis is an update to an existing tool. Current source:\n\n")
		sb.WriteString(existingCode)
		sb.WriteString("\n\nRequested change: ")
		sb.WriteString(spec.UpdateDescription)
		sb.WriteString("\n")
		if len(spec.PreserveFunctionality) > 0 {
			sb.WriteString("Preserve this existing behavior:\n")
			for _, p := range spec.PreserveFunctionality {
				fmt.Fprintf(&sb, "- %s\n", p)
			}
		}
	}
	return sb.String()
}

var fenceRe = regexp.MustCompile("(?s)```(?:go|golang)?\\s*\n(.*?)```")

// stripCodeFences extracts Go source from a model response. Responses
// wrapped in markdown fences yield the fenced block; bare responses
// pass through trimmed.
func stripCodeFences(s string) string {
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// screenImports rejects generated source that mentions a denied import.
// This is a cheap textual screen, not a parser; the build and the
// execution timeout are the real containment.
func screenImports(src string, denied []string) error {
	for _, d := range denied {
		if strings.Contains(src, fmt.Sprintf("%q", d)) {
			return fmt.Errorf("generated code imports denied package %q", d)
		}
	}
	return nil
}

var nameRe = regexp.MustCompile(`[^a-z0-9_]+`)

// sanitizeName normalizes a capability name to snake_case.
func sanitizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = nameRe.ReplaceAllString(s, "")
	return strings.Trim(s, "_")
}

// deriveName builds a capability name from free-form requirements when
// the model did not supply one.
func deriveName(requirements string) string {
	words := strings.Fields(strings.ToLower(requirements))
	var kept []string
	for _, w := range words {
		w = nameRe.ReplaceAllString(w, "")
		if len(w) < 3 {
			continue
		}
		kept = append(kept, w)
		if len(kept) == 3 {
			break
		}
	}
	if len(kept) == 0 {
		return "custom_tool"
	}
	return strings.Join(kept, "_")
}
