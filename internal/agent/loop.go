// Package agent implements the core request loop: dispatch the
// conversation to the model, execute any requested capabilities, feed
// the results back, and repeat until the model produces a plain answer
// or the cycle budget runs out.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nbriggs/artificer/internal/conversation"
	"github.com/nbriggs/artificer/internal/events"
	"github.com/nbriggs/artificer/internal/intent"
	"github.com/nbriggs/artificer/internal/llm"
	"github.com/nbriggs/artificer/internal/memory"
	"github.com/nbriggs/artificer/internal/tools"
)

const (
	// DefaultCycleBudget bounds model dispatches per user input.
	DefaultCycleBudget = 10
	// DefaultHistoryWindow bounds the non-system messages sent per dispatch.
	DefaultHistoryWindow = 50
)

const (
	budgetExhaustedReply = "I wasn't able to finish that within my reasoning budget. " +
		"Try rephrasing the request or breaking it into smaller steps."
	llmFailureReply = "I couldn't get a response from the language model. Please try again."
)

// Loop drives one agent session. It owns no transport; the REPL and the
// web server both feed it through ProcessUserInput.
type Loop struct {
	logger     *slog.Logger
	client     llm.Client
	conv       *conversation.Manager
	registry   *tools.Registry
	analyzer   intent.Analyzer
	bus        *events.Bus
	transcript *memory.Store

	conversationID string
	model          string
	cycleBudget    int
	historyWindow  int
}

// Options configures a Loop. Analyzer, Bus, and Transcript are
// optional; zero CycleBudget and HistoryWindow take the defaults.
type Options struct {
	Logger         *slog.Logger
	Client         llm.Client
	Conversation   *conversation.Manager
	Registry       *tools.Registry
	Analyzer       intent.Analyzer
	Bus            *events.Bus
	Transcript     *memory.Store
	ConversationID string
	Model          string
	CycleBudget    int
	HistoryWindow  int
}

// NewLoop creates an agent loop for one session.
func NewLoop(opts Options) *Loop {
	if opts.CycleBudget <= 0 {
		opts.CycleBudget = DefaultCycleBudget
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultHistoryWindow
	}
	if opts.ConversationID == "" {
		opts.ConversationID = uuid.NewString()
	}
	return &Loop{
		logger:         opts.Logger,
		client:         opts.Client,
		conv:           opts.Conversation,
		registry:       opts.Registry,
		analyzer:       opts.Analyzer,
		bus:            opts.Bus,
		transcript:     opts.Transcript,
		conversationID: opts.ConversationID,
		model:          opts.Model,
		cycleBudget:    opts.CycleBudget,
		historyWindow:  opts.HistoryWindow,
	}
}

// ConversationID returns the session's conversation identifier.
func (l *Loop) ConversationID() string { return l.conversationID }

// Conversation returns the session's conversation manager.
func (l *Loop) Conversation() *conversation.Manager { return l.conv }

// Registry returns the session's capability registry.
func (l *Loop) Registry() *tools.Registry { return l.registry }

// ProcessUserInput runs one full request: the user text is appended to
// the canonical history, then the loop alternates model dispatches and
// capability executions until the model answers in plain text or the
// cycle budget is exhausted. Model-level failures are absorbed into an
// apologetic assistant message so the conversation stays coherent; only
// context cancellation and structural failures surface as errors.
func (l *Loop) ProcessUserInput(ctx context.Context, text string) (llm.Message, error) {
	requestID := uuid.NewString()
	started := time.Now()

	l.logger.Info("request started",
		"request_id", requestID,
		"conversation", l.conversationID,
		"input_len", len(text),
	)
	l.bus.Publish(events.Event{
		Timestamp: started,
		Source:    events.SourceAgent,
		Kind:      events.KindRequestStart,
		Data:      map[string]any{"request_id": requestID, "input_len": len(text)},
	})

	userMsg := llm.Message{Role: llm.RoleUser, Content: text}
	l.conv.AddMessage(userMsg)
	l.persistMessage(ctx, userMsg)

	hint := l.buildHint(text)

	var final llm.Message
	cyclesUsed := 0
	for cycle := 1; cycle <= l.cycleBudget; cycle++ {
		cyclesUsed = cycle

		outgoing, err := l.conv.RecentContext(l.historyWindow)
		if err != nil {
			return llm.Message{}, fmt.Errorf("assemble context: %w", err)
		}
		// The intent hint rides along on the first dispatch only and is
		// never part of the canonical history.
		if cycle == 1 && hint != "" {
			outgoing = append(outgoing, llm.Message{Role: llm.RoleSystem, Content: hint})
		}

		// Re-read the registry every cycle so capabilities forged
		// earlier in this same request are visible to the next dispatch.
		decls := l.registry.ForLLM()

		l.bus.Publish(events.Event{
			Timestamp: time.Now(),
			Source:    events.SourceAgent,
			Kind:      events.KindLLMCall,
			Data:      map[string]any{"request_id": requestID, "cycle": cycle, "model": l.model},
		})

		resp, err := l.client.Chat(ctx, l.model, outgoing, decls)
		if err != nil {
			if ctx.Err() != nil {
				return llm.Message{}, ctx.Err()
			}
			l.logger.Error("LLM call failed", "request_id", requestID, "cycle", cycle, "error", err)
			final = llm.Message{Role: llm.RoleAssistant, Content: llmFailureReply}
			l.conv.AddMessage(final)
			l.persistMessage(ctx, final)
			l.finish(requestID, started, cyclesUsed)
			return final, nil
		}

		l.publishLLMResponse(requestID, cycle, resp)

		l.conv.AddMessage(resp.Message)
		l.persistMessage(ctx, resp.Message)

		if len(resp.Message.ToolCalls) == 0 {
			l.finish(requestID, started, cyclesUsed)
			return resp.Message, nil
		}

		for _, tc := range resp.Message.ToolCalls {
			l.executeToolCall(ctx, requestID, tc)
		}
	}

	l.logger.Warn("cycle budget exhausted",
		"request_id", requestID,
		"budget", l.cycleBudget,
	)
	final = llm.Message{Role: llm.RoleAssistant, Content: budgetExhaustedReply}
	l.conv.AddMessage(final)
	l.persistMessage(ctx, final)
	l.finish(requestID, started, cyclesUsed)
	return final, nil
}

// executeToolCall runs one requested capability and appends its result
// as a tool message. Every failure mode produces a well-formed
// {"error": ...} tool message so the model can see what went wrong and
// adjust; tool failures never abort the request.
func (l *Loop) executeToolCall(ctx context.Context, requestID string, tc llm.ToolCall) {
	name := tc.Function.Name
	started := time.Now()

	l.logger.Debug("executing tool",
		"request_id", requestID,
		"tool", name,
		"call_id", tc.ID,
	)
	l.bus.Publish(events.Event{
		Timestamp: started,
		Source:    events.SourceAgent,
		Kind:      events.KindToolCall,
		Data:      map[string]any{"request_id": requestID, "tool": name},
	})

	result, err := l.registry.Execute(ctx, name, tc.Function.Arguments)
	elapsed := time.Since(started)
	if err != nil {
		l.logger.Warn("tool execution failed",
			"request_id", requestID,
			"tool", name,
			"error", err,
		)
		result = tools.ErrorResult(err.Error())
	}

	l.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceAgent,
		Kind:      events.KindToolDone,
		Data: map[string]any{
			"request_id":  requestID,
			"tool":        name,
			"ok":          err == nil,
			"duration_ms": elapsed.Milliseconds(),
		},
	})

	errText := ""
	if err != nil {
		errText = err.Error()
	}
	if perr := l.transcript.RecordToolCall(ctx, memory.ToolCallRecord{
		ConversationID: l.conversationID,
		ToolName:       name,
		Arguments:      tc.Function.Arguments,
		Result:         result,
		Error:          errText,
		StartedAt:      started,
		DurationMS:     elapsed.Milliseconds(),
	}); perr != nil {
		l.logger.Warn("transcript write failed", "error", perr)
	}

	toolMsg := llm.Message{
		Role:       llm.RoleTool,
		Content:    result,
		Name:       name,
		ToolCallID: tc.ID,
	}
	l.conv.AddMessage(toolMsg)
	l.persistMessage(ctx, toolMsg)
}

// buildHint runs the intent analyzer and renders its recommendation as
// a transient system message. The model keeps final authority; the hint
// just biases it toward the forge when the heuristics fire.
func (l *Loop) buildHint(text string) string {
	if l.analyzer == nil {
		return ""
	}
	analysis := l.analyzer.Analyze(text, l.registry.All())

	switch {
	case analysis.ShouldUpdateExisting && analysis.MatchingTool != nil:
		return fmt.Sprintf(
			"Capability assessment: the user appears to want changes to the existing tool %q. "+
				"Consider calling update_tool with requirements: %s",
			analysis.MatchingTool.Name, analysis.SuggestedRequirements)
	case analysis.RequiresNewTool:
		return fmt.Sprintf(
			"Capability assessment: no existing tool covers this request. "+
				"Consider calling create_tool with name %q and requirements: %s",
			analysis.SuggestedName, analysis.SuggestedRequirements)
	case analysis.MatchingTool != nil:
		return fmt.Sprintf(
			"Capability assessment: the existing tool %q looks relevant to this request.",
			analysis.MatchingTool.Name)
	}
	return ""
}

func (l *Loop) publishLLMResponse(requestID string, cycle int, resp *llm.ChatResponse) {
	data := map[string]any{
		"request_id": requestID,
		"cycle":      cycle,
		"model":      l.model,
		"tool_calls": len(resp.Message.ToolCalls),
	}
	if resp.Usage != nil {
		data["tokens_in"] = resp.Usage.PromptTokens
		data["tokens_out"] = resp.Usage.CompletionTokens
	}
	l.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceAgent,
		Kind:      events.KindLLMResponse,
		Data:      data,
	})
}

func (l *Loop) finish(requestID string, started time.Time, cycles int) {
	elapsed := time.Since(started)
	l.logger.Info("request complete",
		"request_id", requestID,
		"cycles", cycles,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	l.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceAgent,
		Kind:      events.KindRequestComplete,
		Data: map[string]any{
			"request_id": requestID,
			"cycles":     cycles,
			"elapsed_ms": elapsed.Milliseconds(),
		},
	})
}

// persistMessage mirrors one message into the transcript store.
// Persistence failures are logged, never fatal.
func (l *Loop) persistMessage(ctx context.Context, msg llm.Message) {
	toolCallsJSON := ""
	if len(msg.ToolCalls) > 0 {
		toolCallsJSON = marshalToolCalls(msg.ToolCalls)
	}
	if err := l.transcript.AddMessage(ctx, l.conversationID, msg.Role, msg.Content, toolCallsJSON, msg.ToolCallID); err != nil {
		l.logger.Warn("transcript write failed", "error", err)
	}
}

func marshalToolCalls(calls []llm.ToolCall) string {
	out, err := json.Marshal(calls)
	if err != nil {
		return ""
	}
	return string(out)
}
