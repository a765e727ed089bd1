package llm

import "context"

// Client is the interface the agent uses to talk to an LLM service.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	// tools, when non-empty, is a list of function-calling declarations
	// in the wire shape produced by the capability registry.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Ping checks if the service is reachable.
	Ping(ctx context.Context) error
}
