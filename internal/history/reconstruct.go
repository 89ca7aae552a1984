package history

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/toolhop/internal/logger"
)

// ReconstructionError describes a stored entry that could not be replayed as
// written. It is informational: reconstruction always degrades instead of failing.
type ReconstructionError struct {
	SequenceID int64
	Reason     string
}

func (e *ReconstructionError) Error() string {
	return fmt.Sprintf("history entry %d: %s", e.SequenceID, e.Reason)
}

// Reconstruct rebuilds the message log from flat entries in store order.
//
// An assistant tool-call batch is emitted only together with the result batch
// stored right after it, and only when every call id has a result. Groups that
// cannot be paired are dropped. Tool rows that have no owning batch are
// summarized as assistant context, never replayed with role tool.
func Reconstruct(entries []Entry) ([]openai.ChatCompletionMessage, []*ReconstructionError) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(entries))
	var problems []*ReconstructionError
	warn := func(seq int64, format string, args ...any) {
		problems = append(problems, &ReconstructionError{SequenceID: seq, Reason: fmt.Sprintf(format, args...)})
	}

	for i := 0; i < len(entries); i++ {
		e := entries[i]
		switch e.Role {
		case openai.ChatMessageRoleAssistant:
			call, err := DecodeCallBatch(e.Payload)
			if err != nil {
				if err != errNotBatch {
					warn(e.SequenceID, "unparseable tool-call batch kept as text: %v", err)
				}
				msgs = append(msgs, openai.ChatCompletionMessage{Role: e.Role, Content: e.Payload})
				continue
			}

			if i+1 >= len(entries) || entries[i+1].Role != openai.ChatMessageRoleTool {
				warn(e.SequenceID, "tool-call batch without results dropped")
				continue
			}
			results, err := DecodeResultBatch(entries[i+1].Payload)
			if err != nil {
				warn(e.SequenceID, "tool-call batch followed by a non-batch tool entry dropped")
				continue
			}
			// The result entry belongs to this group whatever happens next.
			i++

			paired, ok := pairResults(call, results, func(format string, args ...any) {
				warn(entries[i].SequenceID, format, args...)
			})
			if !ok {
				warn(e.SequenceID, "tool-call batch with incomplete results dropped")
				continue
			}
			msgs = append(msgs, call)
			msgs = append(msgs, paired...)

		case openai.ChatMessageRoleTool:
			msgs = append(msgs, summarizeOrphan(e))
			warn(e.SequenceID, "orphaned tool entry summarized as assistant context")

		case openai.ChatMessageRoleUser, openai.ChatMessageRoleSystem:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: e.Role, Content: e.Payload})

		default:
			warn(e.SequenceID, "unknown role %q skipped", e.Role)
		}
	}
	return msgs, problems
}

// pairResults orders results by the call list. Foreign and duplicate ids are
// discarded; a missing id fails the whole group.
func pairResults(call openai.ChatCompletionMessage, results ResultBatch, warn func(string, ...any)) ([]openai.ChatCompletionMessage, bool) {
	byID := make(map[string]string, len(results.ToolResults))
	for _, r := range results.ToolResults {
		if _, dup := byID[r.ToolCallID]; dup {
			warn("duplicate result for tool call %s discarded", r.ToolCallID)
			continue
		}
		byID[r.ToolCallID] = r.Content
	}

	out := make([]openai.ChatCompletionMessage, 0, len(call.ToolCalls))
	for _, tc := range call.ToolCalls {
		content, ok := byID[tc.ID]
		if !ok {
			return nil, false
		}
		delete(byID, tc.ID)
		out = append(out, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    content,
			ToolCallID: tc.ID,
		})
	}
	for id := range byID {
		warn("result for foreign tool call %s discarded", id)
	}
	return out, true
}

func summarizeOrphan(e Entry) openai.ChatCompletionMessage {
	content := e.Payload
	if batch, err := DecodeResultBatch(e.Payload); err == nil {
		content = ""
		for i, r := range batch.ToolResults {
			if i > 0 {
				content += " | "
			}
			content += r.Content
		}
	}
	return openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: "Tool result: " + content,
	}
}

// Loader reads a conversation from a Store and reconstructs it.
type Loader struct {
	Store Store
	// Limit caps how many of the most recent entries are replayed; zero means all.
	Limit int
}

// Load returns the protocol-correct message log of a conversation. Only
// store failures are returned as errors.
func (l Loader) Load(ctx context.Context, conversationID string) ([]openai.ChatCompletionMessage, error) {
	entries, err := l.Store.List(ctx, conversationID, l.Limit)
	if err != nil {
		return nil, err
	}
	msgs, problems := Reconstruct(entries)
	for _, p := range problems {
		logger.L.Warn("history reconstruction", "conversation", conversationID, "sequence_id", p.SequenceID, "reason", p.Reason)
	}
	return msgs, nil
}
