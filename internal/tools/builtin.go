package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RegisterBuiltins adds the capabilities every fresh session starts
// with: a clock, basic arithmetic, and (when workspace is non-empty)
// read-only file access under the workspace root.
func (r *Registry) RegisterBuiltins(workspace string) {
	r.Register(&Tool{
		Name:        "get_time",
		Description: "Get the current date and time, optionally in a named IANA timezone.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{
					"type":        "string",
					"description": "IANA timezone name (e.g. America/New_York). Defaults to local time.",
				},
			},
		},
		Handler: handleGetTime,
	})

	r.Register(&Tool{
		Name:        "calculate",
		Description: "Perform basic arithmetic on two numbers. Supported operations: add, subtract, multiply, divide.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"operation": map[string]any{
					"type":        "string",
					"description": "One of: add, subtract, multiply, divide",
				},
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"operation", "a", "b"},
		},
		Handler: handleCalculate,
	})

	if workspace == "" {
		return
	}

	r.Register(&Tool{
		Name:        "read_file",
		Description: "Read a text file from the agent workspace. Paths are relative to the workspace root.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "File path relative to the workspace root",
				},
			},
			"required": []string{"path"},
		},
		Handler: workspaceHandler(workspace, handleReadFile),
	})

	r.Register(&Tool{
		Name:        "list_dir",
		Description: "List files and directories in the agent workspace. Paths are relative to the workspace root.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Directory path relative to the workspace root (default: the root)",
				},
			},
		},
		Handler: workspaceHandler(workspace, handleListDir),
	})
}

const maxFileResult = 32 * 1024

func handleGetTime(ctx context.Context, args map[string]any) (string, error) {
	loc := time.Local
	if tz, _ := args["timezone"].(string); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q", tz)
		}
		loc = l
	}
	return time.Now().In(loc).Format(time.RFC1123), nil
}

func handleCalculate(ctx context.Context, args map[string]any) (string, error) {
	op, _ := args["operation"].(string)
	a, aok := args["a"].(float64)
	b, bok := args["b"].(float64)
	if !aok || !bok {
		return "", fmt.Errorf("a and b must be numbers")
	}

	var result float64
	switch op {
	case "add":
		result = a + b
	case "subtract":
		result = a - b
	case "multiply":
		result = a * b
	case "divide":
		if b == 0 {
			return "", fmt.Errorf("division by zero")
		}
		result = a / b
	default:
		return "", fmt.Errorf("unknown operation %q", op)
	}

	return fmt.Sprintf("%g", result), nil
}

// workspaceHandler resolves the "path" argument against root and
// rejects anything that escapes it before invoking fn.
func workspaceHandler(root string, fn func(resolved string) (string, error)) func(context.Context, map[string]any) (string, error) {
	return func(ctx context.Context, args map[string]any) (string, error) {
		rel, _ := args["path"].(string)
		if rel == "" {
			rel = "."
		}

		resolved := filepath.Join(root, filepath.Clean("/"+rel))
		if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
			return "", fmt.Errorf("path escapes workspace: %s", rel)
		}
		return fn(resolved)
	}
}

func handleReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	content := string(data)
	if len(content) > maxFileResult {
		content = content[:maxFileResult] + "\n... [truncated]"
	}
	return content, nil
}

func handleListDir(path string) (string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("list dir: %w", err)
	}

	var sb strings.Builder
	for _, e := range entries {
		if e.IsDir() {
			sb.WriteString(e.Name() + "/\n")
		} else {
			sb.WriteString(e.Name() + "\n")
		}
	}
	if sb.Len() == 0 {
		return "(empty)", nil
	}
	return sb.String(), nil
}
