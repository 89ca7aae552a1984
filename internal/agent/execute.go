package agent

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/sourcegraph/conc/iter"

	"github.com/comigor/toolhop/pkg/tools"
)

// executeTools runs the tool calls of the current model response. Calls up to
// and including the first terminal tool are processed; anything requested
// after it is ignored, and the stored batch only lists the processed calls so
// every call keeps exactly one result.
func (a *Agent) executeTools(ctx context.Context, s *session) error {
	t := s.turn
	calls := t.response.ToolCalls

	terminalAt := -1
	for i, tc := range calls {
		if a.registry.IsTerminal(tc.Function.Name) {
			terminalAt = i
			break
		}
	}
	if terminalAt >= 0 && terminalAt < len(calls)-1 {
		a.log.Warn("Ignoring tool calls requested after terminal tool",
			"conversation", s.id, "terminal", calls[terminalAt].Function.Name, "ignored", len(calls)-terminalAt-1)
		calls = calls[:terminalAt+1]
	}

	t.batch = t.response
	t.batch.ToolCalls = calls
	t.messages = append(t.messages, t.batch)

	// The terminal call runs after everything requested before it.
	pending := calls
	if terminalAt >= 0 {
		pending = calls[:terminalAt]
	}
	outcomes := a.runBatch(ctx, s.id, pending)
	if terminalAt >= 0 {
		if limit := a.limits.MaxToolCallsPerHop; limit > 0 && terminalAt >= limit {
			outcomes = append(outcomes, limitExceeded(limit))
		} else {
			outcomes = append(outcomes, a.dispatch(ctx, s.id, calls[terminalAt]))
		}
	}

	t.terminal = false
	t.results = make([]openai.ChatCompletionMessage, len(calls))
	for i, tc := range calls {
		t.results[i] = openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    outcomes[i].Content,
			ToolCallID: tc.ID,
		}
	}
	if terminalAt >= 0 && outcomes[terminalAt].Terminal {
		t.terminal = true
		t.final = outcomes[terminalAt].Content
	}
	return s.fsm.FireCtx(ctx, TriggerToolsExecuted)
}

// runBatch dispatches calls concurrently, bounded by the configured tool
// concurrency, and returns their outcomes in call order. Calls beyond the
// per-hop limit are answered with an error payload without running.
func (a *Agent) runBatch(ctx context.Context, conversationID string, calls []openai.ToolCall) []tools.Result {
	allowed := calls
	if limit := a.limits.MaxToolCallsPerHop; limit > 0 && len(calls) > limit {
		a.log.Warn("Too many tool calls in one hop", "conversation", conversationID, "requested", len(calls), "max", limit)
		allowed = calls[:limit]
	}

	mapper := iter.Mapper[openai.ToolCall, tools.Result]{MaxGoroutines: a.limits.ToolConcurrency}
	outcomes := mapper.Map(allowed, func(tc *openai.ToolCall) tools.Result {
		return a.dispatch(ctx, conversationID, *tc)
	})

	for range calls[len(allowed):] {
		outcomes = append(outcomes, limitExceeded(len(allowed)))
	}
	return outcomes
}

func limitExceeded(limit int) tools.Result {
	err := fmt.Errorf("tool call limit of %d per hop exceeded", limit)
	return tools.Result{Content: tools.ErrorContent(err), Failed: true}
}

func (a *Agent) dispatch(ctx context.Context, conversationID string, tc openai.ToolCall) tools.Result {
	a.log.Debug("Executing tool", "conversation", conversationID, "tool", tc.Function.Name, "id", tc.ID)
	res, err := a.registry.Dispatch(ctx, tc.Function.Name, tc.Function.Arguments)
	if err != nil {
		a.log.Warn("Tool call rejected", "conversation", conversationID, "tool", tc.Function.Name, "error", err)
		return tools.Result{Content: tools.ErrorContent(err), Failed: true}
	}
	if res.Failed {
		a.log.Warn("Tool execution failed", "conversation", conversationID, "tool", tc.Function.Name, "content", res.Content)
	}
	return res
}
