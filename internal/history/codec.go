package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// ToolCallRecord is one call inside a persisted assistant batch.
type ToolCallRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// CallBatch is the payload of an assistant entry that requested tools.
type CallBatch struct {
	Content   string           `json:"content"`
	ToolCalls []ToolCallRecord `json:"tool_calls"`
}

// ToolResultRecord is one tool output inside a persisted result batch.
type ToolResultRecord struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
}

// ResultBatch is the payload of a tool entry holding every result of one hop.
type ResultBatch struct {
	ToolResults []ToolResultRecord `json:"tool_results"`
}

var errNotBatch = errors.New("payload is not a batch record")

// EncodeCallBatch serializes an assistant tool-call message. Arguments that
// are a JSON object are embedded as structured JSON; anything else, including
// malformed JSON and non-object literals, is kept verbatim as a JSON string.
func EncodeCallBatch(msg openai.ChatCompletionMessage) (string, error) {
	batch := CallBatch{Content: msg.Content, ToolCalls: make([]ToolCallRecord, 0, len(msg.ToolCalls))}
	for _, tc := range msg.ToolCalls {
		args, err := encodeArguments(tc.Function.Arguments)
		if err != nil {
			return "", err
		}
		batch.ToolCalls = append(batch.ToolCalls, ToolCallRecord{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	b, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("encode tool-call batch: %w", err)
	}
	return string(b), nil
}

func encodeArguments(args string) (json.RawMessage, error) {
	if looksLikeObject(args) && json.Valid([]byte(args)) {
		return json.RawMessage(args), nil
	}
	return json.Marshal(args)
}

// EncodeResultBatch serializes the tool messages of one hop.
func EncodeResultBatch(msgs []openai.ChatCompletionMessage) (string, error) {
	batch := ResultBatch{ToolResults: make([]ToolResultRecord, 0, len(msgs))}
	for _, m := range msgs {
		batch.ToolResults = append(batch.ToolResults, ToolResultRecord{ToolCallID: m.ToolCallID, Content: m.Content})
	}
	b, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("encode tool-result batch: %w", err)
	}
	return string(b), nil
}

// DecodeCallBatch parses an assistant payload as a tool-call batch. Plain
// text, malformed JSON and records without calls all return an error.
func DecodeCallBatch(payload string) (openai.ChatCompletionMessage, error) {
	if !looksLikeObject(payload) {
		return openai.ChatCompletionMessage{}, errNotBatch
	}
	var batch CallBatch
	if err := json.Unmarshal([]byte(payload), &batch); err != nil {
		return openai.ChatCompletionMessage{}, err
	}
	if len(batch.ToolCalls) == 0 {
		return openai.ChatCompletionMessage{}, errNotBatch
	}

	msg := openai.ChatCompletionMessage{
		Role:      openai.ChatMessageRoleAssistant,
		Content:   batch.Content,
		ToolCalls: make([]openai.ToolCall, 0, len(batch.ToolCalls)),
	}
	for _, rec := range batch.ToolCalls {
		if rec.ID == "" || rec.Name == "" {
			return openai.ChatCompletionMessage{}, fmt.Errorf("tool call record missing id or name")
		}
		args, err := decodeArguments(rec.Arguments)
		if err != nil {
			return openai.ChatCompletionMessage{}, err
		}
		msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
			ID:       rec.ID,
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: rec.Name, Arguments: args},
		})
	}
	return msg, nil
}

// DecodeResultBatch parses a tool payload as a result batch.
func DecodeResultBatch(payload string) (ResultBatch, error) {
	if !looksLikeObject(payload) {
		return ResultBatch{}, errNotBatch
	}
	var batch ResultBatch
	if err := json.Unmarshal([]byte(payload), &batch); err != nil {
		return ResultBatch{}, err
	}
	if batch.ToolResults == nil {
		return ResultBatch{}, errNotBatch
	}
	return batch, nil
}

func decodeArguments(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "{}", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func looksLikeObject(payload string) bool {
	p := bytes.TrimSpace([]byte(payload))
	return len(p) > 0 && p[0] == '{'
}
