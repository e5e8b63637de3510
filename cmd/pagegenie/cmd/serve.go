package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pagegenie/internal/server"
	"github.com/Aman-CERP/pagegenie/internal/watcher"
)

type serveOptions struct {
	addr    string
	noWatch bool
	reindex bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server. Pages under the pages directory are synced and
indexed first, then the chat, version, run and live-reload endpoints are
served until the process is interrupted.

Endpoints:
  POST /api/chat                   chat request, answered as a server-sent event stream
  GET  /api/versions/{slug}        version labels of a page
  GET  /api/versions/{slug}/{label} raw HTML of one version
  GET  /api/runs?limit=N           recent runs
  GET  /api/pages                  known page slugs
  GET  /page?id=<slug>             current page with live reload
  GET  /ws                         live-reload websocket`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "Do not watch the pages directory for changes")
	cmd.Flags().BoolVar(&opts.reindex, "reindex", false, "Re-embed every page before serving")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts serveOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}

	a, err := openApp(ctx, cfg, appOptions{lock: true, forceReindex: opts.reindex})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	summary, err := a.syncPages(ctx, nil)
	if err != nil {
		return err
	}
	slog.Info("startup_sync_complete",
		slog.Int("pages", summary.Pages),
		slog.Int("errors", summary.Errors),
		slog.Duration("duration", summary.Duration))

	if cfg.Watch.Enabled && !opts.noWatch && cfg.Paths.PagesDir != "" {
		w, err := watcher.NewPageWatcher(cfg.Paths.PagesDir, a.versions, watcher.Options{Debounce: cfg.Watch.Debounce})
		if err != nil {
			slog.Warn("page_watch_unavailable", slog.String("error", err.Error()))
		} else {
			go func() {
				if err := w.Run(ctx); err != nil {
					slog.Warn("page_watch_stopped", slog.String("error", err.Error()))
				}
			}()
		}
	}

	srv, err := server.New(server.Dependencies{
		Chat:     a.pipeline,
		Versions: a.versions,
		Runs:     a.db,
		Viewers:  a.viewers,
		Health:   a.db,
	}, server.Config{
		Addr:         cfg.Server.Addr,
		SSEKeepAlive: cfg.Server.SSEKeepAlive,
		PagesDir:     cfg.Paths.PagesDir,
	})
	if err != nil {
		return err
	}

	out := cmd.ErrOrStderr()
	_, _ = fmt.Fprintf(out, "pagegenie serving %d pages on %s\n", summary.Pages, cfg.Server.Addr)
	_, _ = fmt.Fprintf(out, "  lexical: %s, vector: %s, embedder: %s\n", a.lexicalName, a.vectorName, a.embedder.ModelName())
	return srv.Run(ctx)
}
