// Package conversation owns the canonical message history for one
// agent session, including the regenerable system prompt.
package conversation

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/nbriggs/artificer/internal/llm"
	"github.com/nbriggs/artificer/internal/tools"
)

// Manager holds the ordered message sequence for a session. Exactly one
// system message exists and it occupies position 0; every operation
// preserves that invariant.
type Manager struct {
	logger *slog.Logger

	mu       sync.Mutex
	messages []llm.Message
}

// NewManager creates a manager seeded with a system message generated
// from the given capability set.
func NewManager(logger *slog.Logger, available []*tools.Tool) *Manager {
	return &Manager{
		logger: logger,
		messages: []llm.Message{
			{Role: llm.RoleSystem, Content: BuildSystemPrompt(available)},
		},
	}
}

// AddMessage appends a message unconditionally.
func (m *Manager) AddMessage(msg llm.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

// Context returns a snapshot of the full message history. The returned
// slice is a copy; mutating it does not affect the canonical history.
func (m *Manager) Context() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]llm.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// RecentContext returns the system message plus the last limit
// non-system messages in their original relative order. A limit <= 0
// returns the full history. It fails if no system message exists, since
// that is a structural invariant violation rather than a recoverable
// condition.
func (m *Manager) RecentContext(limit int) ([]llm.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.messages) == 0 || m.messages[0].Role != llm.RoleSystem {
		return nil, fmt.Errorf("conversation has no system message")
	}

	rest := m.messages[1:]
	if limit > 0 && len(rest) > limit {
		rest = rest[len(rest)-limit:]
	}

	out := make([]llm.Message, 0, len(rest)+1)
	out = append(out, m.messages[0])
	out = append(out, rest...)
	return out, nil
}

// ClearHistory truncates the conversation to just the system message.
// If the system message is somehow absent, a fresh one is generated
// from an empty capability set; callers should follow up with
// UpdateSystemPrompt to restore the real capability list.
func (m *Manager) ClearHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.messages) > 0 && m.messages[0].Role == llm.RoleSystem {
		m.messages = m.messages[:1]
		return
	}

	m.logger.Warn("system message missing during clear, regenerating")
	m.messages = []llm.Message{
		{Role: llm.RoleSystem, Content: BuildSystemPrompt(nil)},
	}
}

// UpdateSystemPrompt regenerates the system message content from the
// current capability set, replacing position 0 (or inserting it if
// missing). Call after every registry mutation.
func (m *Manager) UpdateSystemPrompt(available []*tools.Tool) {
	content := BuildSystemPrompt(available)

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.messages) > 0 && m.messages[0].Role == llm.RoleSystem {
		m.messages[0].Content = content
		return
	}

	m.logger.Warn("system message missing during prompt update, inserting")
	m.messages = append([]llm.Message{{Role: llm.RoleSystem, Content: content}}, m.messages...)
}

// Len returns the number of messages including the system message.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}
