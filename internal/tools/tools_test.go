package tools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newTestRegistry() *Registry {
	return NewRegistry(slog.Default())
}

func echoTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: "echoes its input back",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			text, _ := args["text"].(string)
			return text, nil
		},
	}
}

func TestRegisterThenGet(t *testing.T) {
	r := newTestRegistry()
	tool := echoTool("echo")
	r.Register(tool)

	if got := r.Get("echo"); got != tool {
		t.Errorf("Get() returned %p, want the registered instance %p", got, tool)
	}
}

func TestRegisterOverwrites(t *testing.T) {
	r := newTestRegistry()
	first := echoTool("echo")
	second := echoTool("echo")
	r.Register(first)
	r.Register(second)

	if got := r.Get("echo"); got != second {
		t.Error("re-registration should replace the existing tool")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestUpdate(t *testing.T) {
	r := newTestRegistry()

	// Absent name fails with a NotFound condition.
	err := r.Update("missing", echoTool("missing"))
	var notFound *ErrToolNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("Update() on absent name = %v, want *ErrToolNotFound", err)
	}

	// Name mismatch fails before mutating the registry.
	original := echoTool("echo")
	r.Register(original)
	if err := r.Update("echo", echoTool("other")); err == nil {
		t.Error("Update() with mismatched name should fail")
	}
	if r.Get("echo") != original {
		t.Error("failed Update() must not mutate the registry")
	}

	// Matching name succeeds.
	replacement := echoTool("echo")
	if err := r.Update("echo", replacement); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if r.Get("echo") != replacement {
		t.Error("Update() should replace the registered tool")
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Execute(context.Background(), "nope", "{}")
	var notFound *ErrToolNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("Execute() on unknown name = %v, want *ErrToolNotFound", err)
	}
}

func TestExecuteMalformedArguments(t *testing.T) {
	r := newTestRegistry()
	r.Register(echoTool("echo"))

	result, err := r.Execute(context.Background(), "echo", "{not json")
	if err != nil {
		t.Fatalf("malformed arguments must not surface as an error, got %v", err)
	}

	var parsed map[string]string
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		t.Fatalf("result is not JSON: %q", result)
	}
	if parsed["error"] == "" {
		t.Errorf("result should carry an error field, got %q", result)
	}
}

func TestExecutePropagatesHandlerError(t *testing.T) {
	r := newTestRegistry()
	wantErr := errors.New("boom")
	r.Register(&Tool{
		Name:        "broken",
		Description: "always fails",
		Parameters:  map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", wantErr
		},
	})

	_, err := r.Execute(context.Background(), "broken", "{}")
	if !errors.Is(err, wantErr) {
		t.Errorf("Execute() should propagate handler errors unchanged, got %v", err)
	}
}

func TestForLLM(t *testing.T) {
	r := newTestRegistry()
	r.Register(echoTool("zeta"))
	r.Register(echoTool("alpha"))

	decls := r.ForLLM()
	if len(decls) != 2 {
		t.Fatalf("len(decls) = %d, want 2", len(decls))
	}

	for i, wantName := range []string{"alpha", "zeta"} {
		if decls[i]["type"] != "function" {
			t.Errorf("decls[%d].type = %v, want function", i, decls[i]["type"])
		}
		fn, ok := decls[i]["function"].(map[string]any)
		if !ok {
			t.Fatalf("decls[%d].function has wrong shape", i)
		}
		if fn["name"] != wantName {
			t.Errorf("decls[%d].name = %v, want %q (sorted order)", i, fn["name"], wantName)
		}
		if _, ok := fn["parameters"].(map[string]any); !ok {
			t.Errorf("decls[%d] missing parameters schema", i)
		}
	}
}

func TestBuiltinCalculate(t *testing.T) {
	r := newTestRegistry()
	r.RegisterBuiltins("")

	tests := []struct {
		name string
		args string
		want string
	}{
		{name: "add", args: `{"operation":"add","a":2,"b":3}`, want: "5"},
		{name: "divide", args: `{"operation":"divide","a":9,"b":2}`, want: "4.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Execute(context.Background(), "calculate", tt.args)
			if err != nil {
				t.Fatalf("Execute() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("calculate = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := r.Execute(context.Background(), "calculate", `{"operation":"divide","a":1,"b":0}`); err == nil {
		t.Error("division by zero should fail")
	}
}

func TestWorkspacePathEscape(t *testing.T) {
	r := newTestRegistry()
	r.RegisterBuiltins(t.TempDir())

	result, err := r.Execute(context.Background(), "read_file", `{"path":"../../etc/passwd"}`)
	// filepath.Clean("/"+rel) strips the traversal, so the read stays inside
	// the (empty) workspace and fails as a missing file rather than escaping.
	if err == nil && !strings.Contains(result, "error") {
		t.Errorf("traversal path should not read outside the workspace, got %q", result)
	}
}
