// Package tools provides the capability registry and execution framework.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Tool represents a callable capability. Name is the registry key;
// Parameters is a JSON-schema-shaped object describing the arguments.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Execute runs the capability with JSON-encoded arguments and returns a
// JSON or plain-text result. Malformed argument JSON is absorbed here
// and reported as an {"error": ...} result rather than an error return,
// so the capability boundary stays string-in/string-out.
func (t *Tool) Execute(ctx context.Context, argsJSON string) (string, error) {
	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
	}
	if args == nil {
		args = map[string]any{}
	}
	return t.Handler(ctx, args)
}

// ErrorResult encodes an error message as the {"error": ...} JSON shape
// used for all capability-level failures.
func ErrorResult(msg string) string {
	out, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return `{"error":"internal error"}`
	}
	return string(out)
}

// Registry holds the capabilities available to one agent session.
// Each session owns its own instance; there is no process-wide registry.
type Registry struct {
	logger *slog.Logger

	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty capability registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger: logger,
		tools:  make(map[string]*Tool),
	}
}

// Register adds a capability. A name collision overwrites the existing
// entry; this is expected during capability updates and is logged as a
// warning, not treated as an error.
func (r *Registry) Register(t *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		r.logger.Warn("overwriting registered tool", "tool", t.Name)
	}
	r.tools[t.Name] = t
}

// Update replaces a capability that must already exist. It fails with
// *ErrToolNotFound when name is absent, and rejects a replacement whose
// own name differs from name before touching the registry.
func (r *Registry) Update(name string, t *Tool) error {
	if t.Name != name {
		return fmt.Errorf("tool name mismatch: update %q with tool named %q", name, t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		return &ErrToolNotFound{ToolName: name}
	}
	r.tools[name] = t
	return nil
}

// Get retrieves a capability by name, or nil if not found.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// All returns the registered capabilities sorted by name. Sorting keeps
// the system prompt and the LLM declarations deterministic.
func (r *Registry) All() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs a capability by name with JSON-encoded arguments. An
// unknown name fails with *ErrToolNotFound; results and errors from the
// capability itself propagate to the caller unchanged.
func (r *Registry) Execute(ctx context.Context, name string, argsJSON string) (string, error) {
	t := r.Get(name)
	if t == nil {
		return "", &ErrToolNotFound{ToolName: name}
	}
	return t.Execute(ctx, argsJSON)
}

// ForLLM returns the function-calling declarations for every registered
// capability, in the wire shape the chat-completions contract expects.
func (r *Registry) ForLLM() []map[string]any {
	all := r.All()
	decls := make([]map[string]any, 0, len(all))
	for _, t := range all {
		decls = append(decls, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return decls
}
