package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/nbriggs/artificer/internal/conversation"
	"github.com/nbriggs/artificer/internal/tools"
)

// replLoop is the slice of the agent loop the slash commands need;
// narrowing it keeps replCommand testable without a model client.
type replLoop interface {
	Registry() *tools.Registry
	Conversation() *conversation.Manager
}

// runChat is the interactive terminal chat. One session lives for the
// duration of the process; slash commands handle local operations
// without a model round-trip.
func runChat(ctx context.Context, stdout io.Writer, stdin io.Reader, configPath string) error {
	loop, cleanup, err := standaloneSession(stdout, configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Fprintln(stdout, "Artificer interactive chat. Type /help for commands, /quit to exit.")

	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	for {
		fmt.Fprint(stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(stdout)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := replCommand(stdout, loop, line); quit {
				return nil
			}
			continue
		}

		msg, err := loop.ProcessUserInput(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(stdout, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(stdout, msg.Content)
	}
}

// replCommand handles a slash command and reports whether to quit.
func replCommand(stdout io.Writer, loop replLoop, line string) bool {
	switch strings.Fields(line)[0] {
	case "/quit", "/exit":
		return true
	case "/tools":
		all := loop.Registry().All()
		if len(all) == 0 {
			fmt.Fprintln(stdout, "no tools registered")
			return false
		}
		for _, t := range all {
			desc := t.Description
			if i := strings.IndexByte(desc, '\n'); i >= 0 {
				desc = desc[:i]
			}
			fmt.Fprintf(stdout, "  %-24s %s\n", t.Name, desc)
		}
	case "/clear":
		loop.Conversation().ClearHistory()
		loop.Conversation().UpdateSystemPrompt(loop.Registry().All())
		fmt.Fprintln(stdout, "history cleared")
	case "/help":
		fmt.Fprintln(stdout, "  /tools   List registered tools")
		fmt.Fprintln(stdout, "  /clear   Clear conversation history")
		fmt.Fprintln(stdout, "  /quit    Exit")
	default:
		fmt.Fprintf(stdout, "unknown command %s (try /help)\n", line)
	}
	return false
}
