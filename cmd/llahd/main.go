// Command llahd serves the llahdb point-arrangement recognition engine over
// HTTP, or over MCP on stdio with -mcp.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sanonone/llahdb/internal/mcp"
	"github.com/sanonone/llahdb/internal/server"
	"github.com/sanonone/llahdb/pkg/engine"
)

func main() {
	httpAddr := flag.String("http-addr", ":9091", "Address and port for the REST API server (e.g. :9091)")
	dataDir := flag.String("data-dir", "llahdb_data", "Directory for the snapshot and journal (empty = memory only)")
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	mcpMode := flag.Bool("mcp", false, "Serve MCP tools on stdio instead of HTTP")
	authToken := flag.String("auth-token", os.Getenv("LLAHDB_AUTH_TOKEN"), "Bearer token required by the REST API (empty disables auth)")
	flag.Parse()

	// In MCP mode stdout carries the protocol, logs go to stderr.
	setupLogger(*logLevel, *logFormat, os.Stderr)

	opts, err := engine.LoadOptions(*configPath, engine.DefaultOptions(*dataDir))
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	eng, err := engine.Open(opts)
	if err != nil {
		slog.Error("Failed to open engine", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			slog.Error("Engine close failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *mcpMode {
		slog.Info("Serving MCP on stdio")
		if err := mcp.NewMCPServer(eng).Run(ctx, &sdkmcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			slog.Error("MCP server failed", "error", err)
		}
		return
	}

	srv := server.NewServer(eng, *httpAddr, *authToken)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	select {
	case <-ctx.Done():
		srv.Shutdown()
	case err := <-errCh:
		if err != nil {
			slog.Error("Server stopped", "error", err)
		}
	}
}

// setupLogger installs the default slog logger.
func setupLogger(level, format string, w *os.File) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		fmt.Fprintf(os.Stderr, "unknown log level %q, using info\n", level)
		lvl = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	default:
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
}
