// ABOUTME: Entry point for conhub-engine, the knowledge search MCP server.
// ABOUTME: Serves newline-delimited JSON-RPC on stdio, or HTTP with -http.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/conhub/mcp-gateway/internal/mcp"
	"github.com/conhub/mcp-gateway/internal/search"
	"github.com/conhub/mcp-gateway/internal/toggle"
	"github.com/conhub/mcp-gateway/internal/tools"
)

const (
	serverName    = "ConFuse Knowledge Search"
	serverVersion = "1.0.0"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	httpAddr := flag.String("http", "", "serve MCP over HTTP on this address instead of stdio")
	flag.Parse()

	cfg, err := Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "conhub-engine: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	// Logs go to stderr on both transports; in stdio mode stdout
	// carries the protocol.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.Logging.Level),
	}))

	if err := run(cfg, *httpAddr, logger); err != nil {
		logger.Error("engine failed", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(cfg *Config, httpAddr string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := search.NewClient(search.Config{
		SearchURL:     cfg.Services.SearchURL,
		EmbeddingsURL: cfg.Services.EmbeddingsURL,
		Timeout:       cfg.SearchTimeout(),
	}, logger)
	proc := search.NewProcessor(client, logger)
	flags := toggle.New(cfg.Services.ToggleURL, logger)

	registry := tools.NewRegistry(logger)
	for _, tool := range []tools.Tool{
		tools.NewSearchTool(client, logger),
		tools.NewHybridSearchTool(proc, flags, logger),
		tools.NewHealthTool(client, logger),
	} {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("registering %s: %w", tool.Name, err)
		}
	}

	server, err := mcp.NewServer(mcp.ServerConfig{
		Name:    serverName,
		Version: serverVersion,
		Tools:   registry,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	if httpAddr != "" {
		return serveHTTP(ctx, server, httpAddr, logger)
	}

	logger.Info("engine serving stdio",
		"search_url", cfg.Services.SearchURL,
		"embeddings_url", cfg.Services.EmbeddingsURL,
	)
	return server.ServeStdio(ctx, os.Stdin, os.Stdout)
}

func serveHTTP(ctx context.Context, server *mcp.Server, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("engine serving http", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	// The run context is already canceled; shutdown needs its own deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
