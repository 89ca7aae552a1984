package llm

import (
	"net/http"

	"github.com/comigor/toolhop/internal/config"
	"github.com/sashabaranov/go-openai"
)

// NewClient creates a new OpenAI client
func NewClient(cfg config.LLMConfig) *openai.Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.RequestTimeout > 0 {
		// Upper bound in case a caller forgets a context deadline.
		config.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return openai.NewClientWithConfig(config)
}
