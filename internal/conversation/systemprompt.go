package conversation

import (
	"fmt"
	"strings"

	"github.com/nbriggs/artificer/internal/tools"
)

// BuildSystemPrompt renders the system message content from the current
// capability set. It is a pure function of its input: the caller must
// invoke it again (via Manager.UpdateSystemPrompt) after every registry
// mutation, or the model will reason against a stale capability list.
func BuildSystemPrompt(available []*tools.Tool) string {
	var sb strings.Builder
	sb.WriteString("You are Artificer, an AI assistant that can forge new tools for itself at runtime.\n\n")
	sb.WriteString("Answer directly when no tool is needed. When a request needs a capability ")
	sb.WriteString("you do not have, use create_tool to forge one, or update_tool to improve ")
	sb.WriteString("an existing one. Newly forged tools become available immediately, within ")
	sb.WriteString("the same turn.\n\n")

	if len(available) == 0 {
		sb.WriteString("No tools are currently available.\n")
		return sb.String()
	}

	sb.WriteString("Currently available tools:\n")
	for _, t := range available {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", t.Name, firstLine(t.Description)))
	}

	sb.WriteString("\nUse tools when they help. Prefer updating an existing tool over ")
	sb.WriteString("creating a near-duplicate.")
	return sb.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
