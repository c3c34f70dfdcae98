// Command zenzone-mcp serves the ZenZone session history to LLM assistants
// as an MCP server over stdio.
//
// Stdout carries the MCP protocol, so all logging goes to stderr.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrWong99/zenzone/internal/assist"
	"github.com/MrWong99/zenzone/internal/config"
	"github.com/MrWong99/zenzone/pkg/history/postgres"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "zenzone-mcp: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if cfg.History.PostgresDSN == "" {
		fmt.Fprintln(os.Stderr, "zenzone-mcp: history.postgres_dsn must be set — the assistant tools read the session history")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dims := cfg.History.EmbeddingDimensions
	if dims <= 0 {
		dims = 1536
	}
	store, err := postgres.NewStore(ctx, cfg.History.PostgresDSN, dims)
	if err != nil {
		slog.Error("failed to connect to session history", "err", err)
		return 1
	}
	defer store.Close()

	slog.Info("serving assistant tools over stdio")

	if err := assist.New(store).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("serve error", "err", err)
		return 1
	}
	return 0
}
