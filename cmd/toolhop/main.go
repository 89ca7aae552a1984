package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/comigor/toolhop/internal/agent"
	"github.com/comigor/toolhop/internal/config"
	"github.com/comigor/toolhop/internal/history"
	"github.com/comigor/toolhop/internal/llm"
	"github.com/comigor/toolhop/internal/logger"
	"github.com/comigor/toolhop/internal/repl"
	"github.com/comigor/toolhop/internal/server"
	"github.com/comigor/toolhop/pkg/tools"
)

const usage = `usage: toolhop [serve|chat [conversation-id]]

  serve   start the HTTP and websocket server (default)
  chat    start an interactive session on stdin/stdout
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		logger.L.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	mode := "serve"
	if len(args) > 0 {
		mode = args[0]
	}
	if mode != "serve" && mode != "chat" {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", mode)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// The terminal session owns stdout.
	logOut := os.Stdout
	if mode == "chat" {
		logOut = os.Stderr
	}
	logger.SetFormat(cfg.Log.Format, logOut)
	logger.SetLevel(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg.History)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.L.Warn("history store close error", "error", err)
		}
	}()

	registry, mcpClients, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range mcpClients {
			if err := c.Close(); err != nil {
				logger.L.Warn("MCP client close error", "error", err)
			}
		}
	}()

	a := agent.New(llm.NewClient(cfg.LLM), store, registry, *cfg)

	if mode == "chat" {
		conversationID := uuid.NewString()
		if len(args) > 1 {
			conversationID = args[1]
		}
		return repl.Run(ctx, a, conversationID, os.Stdin, os.Stdout)
	}

	srv := server.New(a, cfg.Server)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.L.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func openStore(cfg config.HistoryConfig) (history.Store, error) {
	switch cfg.Driver {
	case "memory":
		logger.L.Info("using in-memory history")
		return history.NewMemoryStore(), nil
	case "sqlite", "":
		store, err := history.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open history database: %w", err)
		}
		logger.L.Info("using sqlite history", "path", cfg.Path)
		return store, nil
	default:
		return nil, errors.New("unsupported history driver: " + cfg.Driver)
	}
}

func buildRegistry(ctx context.Context, cfg *config.Config) (*tools.Registry, []tools.MCPClient, error) {
	catalog := tools.DefaultCatalog()
	if cfg.Catalog.Path != "" {
		c, err := tools.LoadCatalog(cfg.Catalog.Path)
		if err != nil {
			return nil, nil, err
		}
		catalog = c
	}

	registry := tools.NewRegistry()
	registry.SetTimeout(cfg.Agent.ToolTimeout)
	deps := tools.Deps{
		Catalog: catalog,
		Weather: tools.NewWeatherClient(cfg.Weather),
	}
	if err := tools.RegisterBuiltins(registry, deps, tools.AllBuiltins...); err != nil {
		return nil, nil, err
	}

	clients := tools.ConnectMCPServers(ctx, registry, cfg.MCPServers)
	logger.L.Info("tools ready", "count", len(registry.List()), "mcp_servers", len(clients))
	return registry, clients, nil
}
