package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/comigor/toolhop/internal/config"
	"github.com/comigor/toolhop/internal/logger"
)

// MCPClient is the subset of an MCP client the registry needs.
type MCPClient interface {
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// ConnectMCPServers starts a client for every configured server, registers
// the tools each one offers and returns the clients so the caller can close
// them. Servers that fail to start are logged and skipped.
func ConnectMCPServers(ctx context.Context, r *Registry, servers []config.MCPServerConfig) []MCPClient {
	log := logger.For("mcp")
	clients := make([]MCPClient, 0, len(servers))

	for _, serverCfg := range servers {
		mcpC, err := newMCPClient(ctx, serverCfg)
		if err != nil {
			log.Error("Failed to start MCP client", "name", serverCfg.Name, "error", err)
			continue
		}

		initReq := mcp.InitializeRequest{}
		initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
		initReq.Params.ClientInfo = mcp.Implementation{Name: "toolhop", Version: "1.0.0"}
		if _, err := mcpC.Initialize(ctx, initReq); err != nil {
			log.Error("Failed to initialize MCP client", "name", serverCfg.Name, "error", err)
			if cerr := mcpC.Close(); cerr != nil {
				log.Warn("MCP client close error after init failure", "error", cerr)
			}
			continue
		}
		log.Info("Server initialized", "name", serverCfg.Name)

		n, err := RegisterRemote(ctx, r, serverCfg.Name, mcpC)
		if err != nil {
			log.Warn("Failed to list tools for MCP client", "name", serverCfg.Name, "error", err)
		}
		log.Info("Registered tools from MCP server", "name", serverCfg.Name, "count", n)
		clients = append(clients, mcpC)
	}

	if len(clients) == 0 && len(servers) > 0 {
		log.Warn("No MCP clients were successfully initialized despite servers configured.", "length", len(servers))
	}
	return clients
}

func newMCPClient(ctx context.Context, serverCfg config.MCPServerConfig) (*client.Client, error) {
	var (
		mcpC *client.Client
		err  error
	)
	switch serverCfg.Type {
	case config.ClientTypeSSE:
		var sseOpts []transport.ClientOption
		if len(serverCfg.Headers) > 0 {
			sseOpts = append(sseOpts, transport.WithHeaders(serverCfg.Headers))
		}
		mcpC, err = client.NewSSEMCPClient(serverCfg.URL, sseOpts...)
	case config.ClientTypeStreamableHTTP:
		var httpOpts []transport.StreamableHTTPCOption
		if len(serverCfg.Headers) > 0 {
			httpOpts = append(httpOpts, transport.WithHTTPHeaders(serverCfg.Headers))
		}
		mcpC, err = client.NewStreamableHttpClient(serverCfg.URL, httpOpts...)
	case config.ClientTypeStdio:
		var env []string
		for k, v := range serverCfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		// Stdio clients start their subprocess on creation.
		return client.NewStdioMCPClient(serverCfg.Command, env, serverCfg.Args...)
	case "":
		return nil, errors.New("MCP server type not specified; set 'sse', 'streamable_http' or 'stdio'")
	default:
		return nil, fmt.Errorf("unsupported MCP server type %q", serverCfg.Type)
	}
	if err != nil {
		return nil, err
	}
	if err := mcpC.Start(ctx); err != nil {
		_ = mcpC.Close()
		return nil, fmt.Errorf("start transport: %w", err)
	}
	return mcpC, nil
}

// RegisterRemote registers every tool offered by c as a KindRemote tool.
// Names already taken by another tool are skipped.
func RegisterRemote(ctx context.Context, r *Registry, serverName string, c MCPClient) (int, error) {
	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return 0, err
	}
	if listed == nil {
		return 0, nil
	}

	registered := 0
	for _, mcpTool := range listed.Tools {
		schema, err := remoteSchema(mcpTool)
		if err != nil {
			logger.L.Warn("Tool from MCP server has an unusable schema. Using empty object schema.", "tool", mcpTool.Name, "name", serverName, "error", err)
			schema = emptyObjectSchema()
		}
		spec := Spec{
			Name:        mcpTool.Name,
			Description: mcpTool.Description,
			Schema:      schema,
			Kind:        KindRemote,
			Exec:        remoteExecutor(c, mcpTool.Name),
		}
		if err := r.Register(spec); err != nil {
			logger.L.Warn("Tool from MCP server already registered. Skipping.", "tool", mcpTool.Name, "name", serverName)
			continue
		}
		registered++
	}
	return registered, nil
}

func remoteSchema(t mcp.Tool) (*jsonschema.Definition, error) {
	raw := t.RawInputSchema
	if len(raw) == 0 || string(raw) == "null" {
		b, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	var s jsonschema.Definition
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s.Type == "" {
		s.Type = jsonschema.Object
	}
	return &s, nil
}

func remoteExecutor(c MCPClient, name string) Executor {
	return func(ctx context.Context, args map[string]any) (string, error) {
		res, err := c.CallTool(ctx, mcp.CallToolRequest{
			Params: mcp.CallToolParams{Name: name, Arguments: args},
		})
		if err != nil {
			return "", fmt.Errorf("call remote tool %s: %w", name, err)
		}
		if res == nil {
			return "", fmt.Errorf("remote tool %s returned no result", name)
		}

		text := firstText(res.Content)
		if res.IsError {
			if text == "" {
				text = "tool execution resulted in an error without specific text"
			}
			return "", errors.New(text)
		}
		if text != "" {
			return text, nil
		}
		b, err := json.Marshal(res)
		if err != nil {
			return "", fmt.Errorf("format remote result: %w", err)
		}
		return string(b), nil
	}
}

func firstText(content []mcp.Content) string {
	for _, item := range content {
		if tc, ok := item.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
