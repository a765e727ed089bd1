// Package memory provides durable transcript storage. The agent works
// entirely from its in-process conversation history; this store is a
// write-behind record of what happened, for the web UI and for
// debugging forged capabilities after the fact.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Conversation is one persisted session.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one persisted transcript row.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	ToolCalls      string    `json:"tool_calls,omitempty"`
	ToolCallID     string    `json:"tool_call_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// ToolCallRecord is one persisted tool execution.
type ToolCallRecord struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	ToolName       string    `json:"tool_name"`
	Arguments      string    `json:"arguments"`
	Result         string    `json:"result,omitempty"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	DurationMS     int64     `json:"duration_ms"`
}

// Store is a SQLite-backed transcript store. All methods are safe on a
// nil receiver, so callers that run without persistence need no guard
// checks.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the transcript database at path and
// runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		tool_calls TEXT,
		tool_call_id TEXT,
		timestamp TIMESTAMP NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp);

	CREATE TABLE IF NOT EXISTS tool_calls (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		arguments TEXT NOT NULL,
		result TEXT,
		error TEXT,
		started_at TIMESTAMP NOT NULL,
		duration_ms INTEGER,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_conversation ON tool_calls(conversation_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_tool ON tool_calls(tool_name);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database. No-op on a nil receiver.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureConversation creates the conversation row if it does not exist.
func (s *Store) EnsureConversation(ctx context.Context, id string) error {
	if s == nil {
		return nil
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversations (id, created_at, updated_at)
		VALUES (?, ?, ?)
	`, id, now, now)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// AddMessage records one transcript message. toolCallsJSON and
// toolCallID may be empty for plain messages.
func (s *Store) AddMessage(ctx context.Context, conversationID, role, content, toolCallsJSON, toolCallID string) error {
	if s == nil {
		return nil
	}
	if err := s.EnsureConversation(ctx, conversationID); err != nil {
		return err
	}

	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, tool_calls, tool_call_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), conversationID, role, content, nullable(toolCallsJSON), nullable(toolCallID), now)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE conversations SET updated_at = ? WHERE id = ?
	`, now, conversationID)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	return nil
}

// RecordToolCall records one tool execution, successful or not.
func (s *Store) RecordToolCall(ctx context.Context, rec ToolCallRecord) error {
	if s == nil {
		return nil
	}
	if err := s.EnsureConversation(ctx, rec.ConversationID); err != nil {
		return err
	}

	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_calls (id, conversation_id, tool_name, arguments, result, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, rec.ConversationID, rec.ToolName, rec.Arguments,
		nullable(rec.Result), nullable(rec.Error), rec.StartedAt, rec.DurationMS)
	if err != nil {
		return fmt.Errorf("insert tool call: %w", err)
	}
	return nil
}

// Messages returns the transcript for one conversation in timestamp
// order. limit <= 0 returns everything.
func (s *Store) Messages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if s == nil {
		return nil, nil
	}

	query := `
		SELECT id, conversation_id, role, content,
		       COALESCE(tool_calls, ''), COALESCE(tool_call_id, ''), timestamp
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC`
	args := []any{conversationID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content,
			&m.ToolCalls, &m.ToolCallID, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Conversations lists all conversations, most recently updated first.
func (s *Store) Conversations(ctx context.Context) ([]Conversation, error) {
	if s == nil {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, updated_at
		FROM conversations
		ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ToolCalls returns tool executions for one conversation, oldest first.
func (s *Store) ToolCalls(ctx context.Context, conversationID string) ([]ToolCallRecord, error) {
	if s == nil {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, tool_name, arguments,
		       COALESCE(result, ''), COALESCE(error, ''), started_at, COALESCE(duration_ms, 0)
		FROM tool_calls
		WHERE conversation_id = ?
		ORDER BY started_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query tool calls: %w", err)
	}
	defer rows.Close()

	var out []ToolCallRecord
	for rows.Next() {
		var r ToolCallRecord
		if err := rows.Scan(&r.ID, &r.ConversationID, &r.ToolName, &r.Arguments,
			&r.Result, &r.Error, &r.StartedAt, &r.DurationMS); err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
