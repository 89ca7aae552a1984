package llm

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

// Client is the model endpoint used by the agent. *openai.Client satisfies it;
// tests substitute a scripted mock.
type Client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}
