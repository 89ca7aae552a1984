package tools

import (
	"context"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Kind is the closed set of tool variants the registry knows how to run.
type Kind int

const (
	// KindLocal tools run in-process.
	KindLocal Kind = iota
	// KindRemote tools are proxied to an MCP server.
	KindRemote
	// KindTerminal tools end the turn; their result is the final answer.
	KindTerminal
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	case KindTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Executor runs a tool over validated arguments and returns message content.
type Executor func(ctx context.Context, args map[string]any) (string, error)

// Spec declares one tool. Schema is both sent to the model and used to
// validate arguments before Exec runs.
type Spec struct {
	Name        string
	Description string
	Schema      *jsonschema.Definition
	Kind        Kind
	Exec        Executor
}

// Result is the outcome of a dispatched call, ready to become a tool message.
type Result struct {
	Content string
	// Failed marks content that describes an executor failure.
	Failed bool
	// Terminal is set when a terminal tool ran; Content is the final answer.
	Terminal bool
}
