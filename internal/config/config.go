package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ClientType selects the transport used to reach an MCP tool server.
type ClientType string

const (
	ClientTypeSSE            ClientType = "sse"
	ClientTypeStreamableHTTP ClientType = "streamable_http"
	ClientTypeStdio          ClientType = "stdio"
)

// Config holds the application configuration
type Config struct {
	LLM        LLMConfig
	Agent      AgentConfig
	History    HistoryConfig
	Server     ServerConfig
	Weather    WeatherConfig
	Catalog    CatalogConfig
	Log        LogConfig
	MCPServers []MCPServerConfig `mapstructure:"mcp_servers"`
}

// LLMConfig holds the model endpoint configuration
type LLMConfig struct {
	Provider       string        `mapstructure:"provider"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	SystemPrompt   string        `mapstructure:"system_prompt"`
	Temperature    float32       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AgentConfig bounds the hop loop.
type AgentConfig struct {
	MaxHops            int           `mapstructure:"max_hops"`
	MaxToolCallsPerHop int           `mapstructure:"max_tool_calls_per_hop"`
	ToolConcurrency    int           `mapstructure:"tool_concurrency"`
	ToolTimeout        time.Duration `mapstructure:"tool_timeout"`
}

// HistoryConfig selects the durable log backend.
type HistoryConfig struct {
	Driver     string `mapstructure:"driver"`
	Path       string `mapstructure:"path"`
	MaxEntries int    `mapstructure:"max_entries"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// WeatherConfig configures the get_weather tool backend.
type WeatherConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CatalogConfig points at an optional YAML movie catalog.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MCPServerConfig describes one MCP server whose tools are exposed to the model.
type MCPServerConfig struct {
	Name    string            `mapstructure:"name"`
	Type    ClientType        `mapstructure:"type"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.system_prompt", "")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 200)
	v.SetDefault("llm.request_timeout", "60s")

	v.SetDefault("agent.max_hops", 8)
	v.SetDefault("agent.max_tool_calls_per_hop", 16)
	v.SetDefault("agent.tool_concurrency", 4)
	v.SetDefault("agent.tool_timeout", "10s")

	v.SetDefault("history.driver", "sqlite")
	v.SetDefault("history.path", "history.db")
	v.SetDefault("history.max_entries", 200)

	v.SetDefault("catalog.path", "")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")

	v.SetDefault("weather.base_url", "https://wttr.in")
	v.SetDefault("weather.timeout", "6s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load loads the configuration from CONFIG_PATH, or from config.yaml in the
// working directory. A missing default file is not an error; defaults and
// TOOLHOP_* environment variables still apply.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("toolhop")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the agent cannot run with.
func (c *Config) Validate() error {
	if c.Agent.MaxHops <= 0 {
		return fmt.Errorf("agent.max_hops must be positive, got %d", c.Agent.MaxHops)
	}
	if c.Agent.MaxToolCallsPerHop <= 0 {
		return fmt.Errorf("agent.max_tool_calls_per_hop must be positive, got %d", c.Agent.MaxToolCallsPerHop)
	}
	switch c.History.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported history driver %q", c.History.Driver)
	}
	return nil
}
