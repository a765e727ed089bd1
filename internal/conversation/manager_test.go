package conversation

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/nbriggs/artificer/internal/llm"
	"github.com/nbriggs/artificer/internal/tools"
)

func newTestManager() *Manager {
	return NewManager(slog.Default(), nil)
}

func TestSystemMessageInvariant(t *testing.T) {
	m := newTestManager()

	assertSystemFirst := func(step string) {
		t.Helper()
		ctx := m.Context()
		if len(ctx) == 0 || ctx[0].Role != llm.RoleSystem {
			t.Fatalf("after %s: messages[0] is not the system message", step)
		}
		for _, msg := range ctx[1:] {
			if msg.Role == llm.RoleSystem {
				t.Fatalf("after %s: duplicate system message in history", step)
			}
		}
	}

	assertSystemFirst("construction")

	m.AddMessage(llm.Message{Role: llm.RoleUser, Content: "hello"})
	m.AddMessage(llm.Message{Role: llm.RoleAssistant, Content: "hi"})
	assertSystemFirst("AddMessage")

	m.UpdateSystemPrompt([]*tools.Tool{{Name: "weather", Description: "get weather"}})
	assertSystemFirst("UpdateSystemPrompt")

	m.ClearHistory()
	assertSystemFirst("ClearHistory")
	if m.Len() != 1 {
		t.Errorf("ClearHistory should leave only the system message, got %d", m.Len())
	}
}

func TestUpdateSystemPromptReflectsCapabilities(t *testing.T) {
	m := newTestManager()
	m.UpdateSystemPrompt([]*tools.Tool{
		{Name: "currency_converter", Description: "convert between currencies"},
	})

	sys := m.Context()[0]
	if !strings.Contains(sys.Content, "currency_converter") {
		t.Errorf("system prompt should name the capability, got %q", sys.Content)
	}

	// Regeneration is not cached: removing the capability removes the mention.
	m.UpdateSystemPrompt(nil)
	sys = m.Context()[0]
	if strings.Contains(sys.Content, "currency_converter") {
		t.Error("system prompt should be regenerated from the capability list at call time")
	}
}

func TestRecentContext(t *testing.T) {
	m := newTestManager()
	for _, content := range []string{"one", "two", "three", "four"} {
		m.AddMessage(llm.Message{Role: llm.RoleUser, Content: content})
	}

	recent, err := m.RecentContext(2)
	if err != nil {
		t.Fatalf("RecentContext() error: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("len = %d, want 3 (system + 2)", len(recent))
	}
	if recent[0].Role != llm.RoleSystem {
		t.Error("first message must be the system message")
	}
	if recent[1].Content != "three" || recent[2].Content != "four" {
		t.Errorf("wrong tail: %q, %q", recent[1].Content, recent[2].Content)
	}
}

func TestContextIsASnapshot(t *testing.T) {
	m := newTestManager()
	m.AddMessage(llm.Message{Role: llm.RoleUser, Content: "original"})

	snapshot := m.Context()
	snapshot[1].Content = "mutated"

	if m.Context()[1].Content != "original" {
		t.Error("mutating the snapshot must not affect canonical history")
	}
}

func TestBuildSystemPromptDeterministic(t *testing.T) {
	avail := []*tools.Tool{
		{Name: "a_tool", Description: "first"},
		{Name: "b_tool", Description: "second"},
	}
	if BuildSystemPrompt(avail) != BuildSystemPrompt(avail) {
		t.Error("BuildSystemPrompt must be deterministic for the same input")
	}
}
