package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pagegenie/internal/logging"
	"github.com/Aman-CERP/pagegenie/internal/mcp"
	"github.com/Aman-CERP/pagegenie/pkg/version"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the Model Context Protocol over stdio",
		Long: `Serve pagegenie to an MCP client over stdin/stdout.

Tools: ask, search, list_versions, list_runs. Every stored page is also
exposed as a page://<slug> resource.

stdout carries JSON-RPC only; logs go to ~/.pagegenie/logs/pagegenie.log.
Use 'pagegenie logs -f' to follow them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd.Context())
		},
	}
}

func runMCP(ctx context.Context) error {
	// Nothing may reach stdout before the transport owns it.
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level := cfg.Server.LogLevel
	if debugMode {
		level = "debug"
	}
	logger, cleanup, err := logging.Setup(logging.StdioConfig(level))
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logger)
	slog.Info("mcp_starting",
		slog.String("version", version.Version),
		slog.String("data_dir", cfg.Paths.DataDir))

	a, err := openApp(ctx, cfg, appOptions{lock: true})
	if err != nil {
		slog.Error("mcp_startup_failed", slog.String("error", err.Error()))
		return err
	}
	defer func() { _ = a.Close() }()

	if summary, err := a.syncPages(ctx, nil); err != nil {
		slog.Warn("mcp_page_sync_failed", slog.String("error", err.Error()))
	} else {
		slog.Info("mcp_page_sync_complete", slog.Int("pages", summary.Pages), slog.Int("errors", summary.Errors))
	}

	srv, err := mcp.NewServer(mcp.Dependencies{
		Asker:     a.pipeline,
		Embedder:  a.embedder,
		Retriever: a.engine,
		Versions:  a.versions,
		Runs:      a.db,
	})
	if err != nil {
		return err
	}
	if err := srv.RegisterResources(ctx); err != nil {
		slog.Warn("mcp_resources_unavailable", slog.String("error", err.Error()))
	}
	return srv.Serve(ctx)
}
