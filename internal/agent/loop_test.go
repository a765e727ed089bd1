package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/nbriggs/artificer/internal/conversation"
	"github.com/nbriggs/artificer/internal/intent"
	"github.com/nbriggs/artificer/internal/llm"
	"github.com/nbriggs/artificer/internal/tools"
)

type chatCall struct {
	messages []llm.Message
	tools    []map[string]any
}

// fakeClient replays a script of responses. When the script runs out,
// the last step repeats, which lets tests simulate a model that never
// stops requesting tools.
type fakeClient struct {
	mu     sync.Mutex
	script []scriptStep
	calls  []chatCall
}

type scriptStep struct {
	resp *llm.ChatResponse
	err  error
}

func (f *fakeClient) Chat(_ context.Context, _ string, messages []llm.Message, decls []map[string]any) (*llm.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msgCopy := make([]llm.Message, len(messages))
	copy(msgCopy, messages)
	f.calls = append(f.calls, chatCall{messages: msgCopy, tools: decls})

	i := len(f.calls) - 1
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	step := f.script[i]
	return step.resp, step.err
}

func (f *fakeClient) Ping(context.Context) error { return nil }

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func textStep(content string) scriptStep {
	return scriptStep{resp: &llm.ChatResponse{
		Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
		FinishReason: "stop",
	}}
}

func toolCallStep(callID, name, argsJSON string) scriptStep {
	return scriptStep{resp: &llm.ChatResponse{
		Message: llm.Message{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{
				{ID: callID, Type: "function", Function: llm.FunctionCall{Name: name, Arguments: argsJSON}},
			},
		},
		FinishReason: "tool_calls",
	}}
}

func newTestLoop(t *testing.T, client llm.Client, registry *tools.Registry, opts func(*Options)) *Loop {
	t.Helper()
	logger := slog.Default()
	if registry == nil {
		registry = tools.NewRegistry(logger)
	}
	o := Options{
		Logger:       logger,
		Client:       client,
		Conversation: conversation.NewManager(logger, registry.All()),
		Registry:     registry,
		Model:        "test-model",
		CycleBudget:  5,
	}
	if opts != nil {
		opts(&o)
	}
	return NewLoop(o)
}

func TestPlainTextResponse(t *testing.T) {
	client := &fakeClient{script: []scriptStep{textStep("hello there")}}
	loop := newTestLoop(t, client, nil, nil)

	got, err := loop.ProcessUserInput(context.Background(), "hi")
	if err != nil {
		t.Fatalf("ProcessUserInput() error: %v", err)
	}
	if got.Content != "hello there" {
		t.Errorf("response = %q, want %q", got.Content, "hello there")
	}
	if client.callCount() != 1 {
		t.Errorf("LLM calls = %d, want 1", client.callCount())
	}

	// Canonical history: system, user, assistant.
	hist := loop.Conversation().Context()
	if len(hist) != 3 {
		t.Fatalf("history length = %d, want 3", len(hist))
	}
	if hist[1].Role != llm.RoleUser || hist[2].Role != llm.RoleAssistant {
		t.Errorf("unexpected history roles: %s, %s", hist[1].Role, hist[2].Role)
	}
}

func TestToolCallThenAnswer(t *testing.T) {
	logger := slog.Default()
	registry := tools.NewRegistry(logger)
	registry.Register(&tools.Tool{
		Name:        "get_time",
		Description: "current time",
		Parameters:  map[string]any{"type": "object"},
		Handler: func(context.Context, map[string]any) (string, error) {
			return `{"time":"12:00"}`, nil
		},
	})

	client := &fakeClient{script: []scriptStep{
		toolCallStep("call_1", "get_time", `{}`),
		textStep("It is noon."),
	}}
	loop := newTestLoop(t, client, registry, nil)

	got, err := loop.ProcessUserInput(context.Background(), "what time is it?")
	if err != nil {
		t.Fatalf("ProcessUserInput() error: %v", err)
	}
	if got.Content != "It is noon." {
		t.Errorf("response = %q", got.Content)
	}
	if client.callCount() != 2 {
		t.Fatalf("LLM calls = %d, want 2", client.callCount())
	}

	// History: system, user, assistant(tool_calls), tool, assistant.
	hist := loop.Conversation().Context()
	if len(hist) != 5 {
		t.Fatalf("history length = %d, want 5", len(hist))
	}
	toolMsg := hist[3]
	if toolMsg.Role != llm.RoleTool || toolMsg.ToolCallID != "call_1" || toolMsg.Name != "get_time" {
		t.Errorf("tool message = %+v", toolMsg)
	}
	if toolMsg.Content != `{"time":"12:00"}` {
		t.Errorf("tool result = %q", toolMsg.Content)
	}
}

func TestToolErrorBecomesErrorMessage(t *testing.T) {
	logger := slog.Default()
	registry := tools.NewRegistry(logger)
	registry.Register(&tools.Tool{
		Name:       "flaky",
		Parameters: map[string]any{"type": "object"},
		Handler: func(context.Context, map[string]any) (string, error) {
			return "", errors.New("upstream unavailable")
		},
	})

	client := &fakeClient{script: []scriptStep{
		toolCallStep("call_1", "flaky", `{}`),
		textStep("The service is down right now."),
	}}
	loop := newTestLoop(t, client, registry, nil)

	got, err := loop.ProcessUserInput(context.Background(), "try the flaky thing")
	if err != nil {
		t.Fatalf("tool failure must not abort the request: %v", err)
	}
	if got.Content != "The service is down right now." {
		t.Errorf("response = %q", got.Content)
	}

	hist := loop.Conversation().Context()
	toolMsg := hist[3]
	if !strings.Contains(toolMsg.Content, `"error"`) || !strings.Contains(toolMsg.Content, "upstream unavailable") {
		t.Errorf("tool failure should surface as an error result, got %q", toolMsg.Content)
	}
}

func TestUnknownToolProducesErrorMessage(t *testing.T) {
	client := &fakeClient{script: []scriptStep{
		toolCallStep("call_1", "no_such_tool", `{}`),
		textStep("Sorry, I can't do that."),
	}}
	loop := newTestLoop(t, client, nil, nil)

	if _, err := loop.ProcessUserInput(context.Background(), "do the thing"); err != nil {
		t.Fatalf("unknown tool must not abort the request: %v", err)
	}

	toolMsg := loop.Conversation().Context()[3]
	if toolMsg.Role != llm.RoleTool || !strings.Contains(toolMsg.Content, "not registered") {
		t.Errorf("unknown tool message = %+v", toolMsg)
	}
}

func TestCycleBudgetExhaustion(t *testing.T) {
	logger := slog.Default()
	registry := tools.NewRegistry(logger)
	registry.Register(&tools.Tool{
		Name:       "noop",
		Parameters: map[string]any{"type": "object"},
		Handler: func(context.Context, map[string]any) (string, error) {
			return "{}", nil
		},
	})

	// The script's last step repeats: the model never stops asking for tools.
	client := &fakeClient{script: []scriptStep{toolCallStep("call_x", "noop", `{}`)}}
	loop := newTestLoop(t, client, registry, func(o *Options) { o.CycleBudget = 10 })

	got, err := loop.ProcessUserInput(context.Background(), "loop forever")
	if err != nil {
		t.Fatalf("budget exhaustion must not be an error: %v", err)
	}
	if client.callCount() != 10 {
		t.Errorf("LLM dispatches = %d, want exactly the budget of 10", client.callCount())
	}
	if got.Role != llm.RoleAssistant || !strings.Contains(got.Content, "reasoning budget") {
		t.Errorf("final message = %+v, want budget apology", got)
	}

	// Exactly one apology, appended after the last tool exchange.
	hist := loop.Conversation().Context()
	apologies := 0
	for _, m := range hist {
		if strings.Contains(m.Content, "reasoning budget") {
			apologies++
		}
	}
	if apologies != 1 {
		t.Errorf("apology count = %d, want 1", apologies)
	}
}

func TestCapabilityForgedMidTurnIsVisibleToNextDispatch(t *testing.T) {
	logger := slog.Default()
	registry := tools.NewRegistry(logger)
	registry.Register(&tools.Tool{
		Name:       "forge_stub",
		Parameters: map[string]any{"type": "object"},
		Handler: func(context.Context, map[string]any) (string, error) {
			registry.Register(&tools.Tool{
				Name:       "fresh_capability",
				Parameters: map[string]any{"type": "object"},
				Handler: func(context.Context, map[string]any) (string, error) {
					return "{}", nil
				},
			})
			return `{"success":true}`, nil
		},
	})

	client := &fakeClient{script: []scriptStep{
		toolCallStep("call_1", "forge_stub", `{}`),
		textStep("done"),
	}}
	loop := newTestLoop(t, client, registry, nil)

	if _, err := loop.ProcessUserInput(context.Background(), "make me a capability"); err != nil {
		t.Fatalf("ProcessUserInput() error: %v", err)
	}

	second := client.calls[1]
	if !declsContain(second.tools, "fresh_capability") {
		t.Error("capability registered during the turn must appear in the next dispatch's declarations")
	}
}

func TestIntentHintIsTransient(t *testing.T) {
	client := &fakeClient{script: []scriptStep{
		toolCallStep("call_1", "missing_tool", `{}`),
		textStep("done"),
	}}
	loop := newTestLoop(t, client, nil, func(o *Options) {
		o.Analyzer = intent.NewRuleAnalyzer(intent.DefaultRules())
	})

	if _, err := loop.ProcessUserInput(context.Background(), "Create a tool that can generate images"); err != nil {
		t.Fatalf("ProcessUserInput() error: %v", err)
	}

	// First dispatch carries the hint as a trailing system message.
	first := client.calls[0]
	last := first.messages[len(first.messages)-1]
	if last.Role != llm.RoleSystem || !strings.Contains(last.Content, "create_tool") {
		t.Errorf("first dispatch should end with the capability hint, got %+v", last)
	}

	// Second dispatch does not.
	second := client.calls[1]
	for _, m := range second.messages[1:] {
		if m.Role == llm.RoleSystem {
			t.Errorf("hint leaked into a later dispatch: %q", m.Content)
		}
	}

	// And the canonical history holds exactly one system message.
	for i, m := range loop.Conversation().Context() {
		if i > 0 && m.Role == llm.RoleSystem {
			t.Errorf("hint persisted into canonical history at %d: %q", i, m.Content)
		}
	}
}

func TestLLMFailureProducesApology(t *testing.T) {
	client := &fakeClient{script: []scriptStep{{err: errors.New("connection refused")}}}
	loop := newTestLoop(t, client, nil, nil)

	got, err := loop.ProcessUserInput(context.Background(), "hello")
	if err != nil {
		t.Fatalf("LLM failure must be absorbed: %v", err)
	}
	if got.Role != llm.RoleAssistant || !strings.Contains(got.Content, "language model") {
		t.Errorf("final message = %+v, want apology", got)
	}
	if client.callCount() != 1 {
		t.Errorf("LLM calls = %d, want 1 (no retries)", client.callCount())
	}
}

func TestContextCancellationSurfaces(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeClient{script: []scriptStep{{err: context.Canceled}}}
	loop := newTestLoop(t, client, nil, nil)

	if _, err := loop.ProcessUserInput(ctx, "hello"); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func declsContain(decls []map[string]any, name string) bool {
	for _, d := range decls {
		fn, ok := d["function"].(map[string]any)
		if !ok {
			continue
		}
		if fn["name"] == name {
			return true
		}
	}
	return false
}
