// Mcpgate is the REST-to-MCP gateway binary.
//
// It exposes a plain REST/JSON API and translates each call into JSON-RPC 2.0
// against one of the MCP servers named in its servers file. All configuration
// is loaded from environment variables.
//
// Required environment variables:
//
//	MCPGATE_SERVERS_FILE  - path to the servers file (YAML or JSON)
//
// Optional environment variables:
//
//	MCPGATE_ADDR              - listen address (default ":8080")
//	MCPGATE_UPSTREAM_TIMEOUT  - per-call upstream deadline (default "30s")
//	MCPGATE_AUDIT_DB          - SQLite path for the tool-call audit log
//	                            (empty disables auditing)
//	MCPGATE_ALLOWED_ORIGINS   - comma-separated CORS origins (default "*")
//	LOG_LEVEL                 - "debug", "info", "warn", "error" (default: "info")
//	LOG_FORMAT                - "text" or "json" (default: "text")
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/relaydock/mcpgate/common/environment"
	"github.com/relaydock/mcpgate/common/version"
	"github.com/relaydock/mcpgate/internal/audit"
	"github.com/relaydock/mcpgate/internal/config"
	"github.com/relaydock/mcpgate/internal/gateway"
	"github.com/relaydock/mcpgate/internal/observability"
)

func main() {
	observability.Setup(
		environment.StringOr("LOG_LEVEL", "info"),
		environment.StringOr("LOG_FORMAT", "text"),
	)
	slog.Info("starting mcpgate", "version", version.Info())

	serversFile, err := environment.RequiredString("MCPGATE_SERVERS_FILE")
	if err != nil {
		slog.Error("missing configuration", "err", err)
		os.Exit(1)
	}
	registry, err := config.Load(serversFile)
	if err != nil {
		slog.Error("failed to load servers file", "path", serversFile, "err", err)
		os.Exit(1)
	}
	slog.Info("servers file loaded", "path", serversFile, "servers", len(registry.Names()))

	var auditStore *audit.Store
	if dbPath := os.Getenv("MCPGATE_AUDIT_DB"); dbPath != "" {
		auditStore, err = audit.Open(dbPath)
		if err != nil {
			slog.Error("failed to open audit database", "path", dbPath, "err", err)
			os.Exit(1)
		}
		defer auditStore.Close()
		slog.Info("audit log enabled", "path", dbPath)
	}

	srv := gateway.New(registry, gateway.Options{
		Addr:            environment.StringOr("MCPGATE_ADDR", ":8080"),
		UpstreamTimeout: environment.DurationOr("MCPGATE_UPSTREAM_TIMEOUT", 30*time.Second),
		Audit:           auditStore,
		AllowedOrigins:  splitOrigins(os.Getenv("MCPGATE_ALLOWED_ORIGINS")),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		slog.Error("failed to start gateway", "err", err)
		os.Exit(1)
	}

	<-ctx.Done()
	slog.Info("shutting down")
	srv.Stop()
}

func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			origins = append(origins, part)
		}
	}
	return origins
}
