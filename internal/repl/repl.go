// Package repl is the interactive terminal front end of the agent.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/comigor/toolhop/internal/history"
	"github.com/comigor/toolhop/internal/logger"
)

// Agent is what the REPL needs from the hop orchestrator.
type Agent interface {
	Process(ctx context.Context, conversationID, input string) (string, error)
	History(ctx context.Context, conversationID string, limit int) ([]history.Entry, error)
	Count(ctx context.Context, conversationID string) (int, error)
	Reset(ctx context.Context, conversationID string) (int, error)
}

const prompt = "You: "

// Run reads one line per turn from in until EOF or an exit command. Turn
// errors are printed and the loop carries on.
func Run(ctx context.Context, a Agent, conversationID string, in io.Reader, out io.Writer) error {
	log := logger.For("repl")
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprintf(out, "Conversation %s. Type 'exit' to quit, 'history', 'count' or 'clear' to manage history.\n", conversationID)
	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit", "bye":
			fmt.Fprintln(out, "Bye!")
			return nil
		case "history":
			entries, err := a.History(ctx, conversationID, 0)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No history yet.")
				continue
			}
			for _, e := range entries {
				fmt.Fprintf(out, "[%d] %s: %s\n", e.SequenceID, e.Role, e.Payload)
			}
			continue
		case "count":
			n, err := a.Count(ctx, conversationID)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "%d messages stored.\n", n)
			continue
		case "clear":
			n, err := a.Reset(ctx, conversationID)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "Cleared %d messages.\n", n)
			continue
		}

		reply, err := a.Process(ctx, conversationID, line)
		if err != nil {
			log.Error("turn failed", "conversation", conversationID, "error", err)
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "Assistant: %s\n", reply)
	}
}
