package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pagegenie/internal/embed"
	"github.com/Aman-CERP/pagegenie/internal/ui"
)

type ingestOptions struct {
	force   bool
	noTUI   bool
	noColor bool
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Sync and index the pages directory",
		Long: `Read every page under the pages directory, store new content as the
current version, and chunk and embed pages whose chunks are missing or out
of date. With --force every stored page is re-embedded.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "Re-embed every stored page")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Plain progress output")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, opts ingestOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Paths.PagesDir == "" {
		return fmt.Errorf("paths.pages_dir is not set")
	}

	noColor := opts.noColor || ui.DetectNoColor()
	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.noTUI),
		ui.WithNoColor(noColor),
		ui.WithPagesDir(cfg.Paths.PagesDir)))
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	a, err := openApp(ctx, cfg, appOptions{lock: true, renderer: renderer, forceReindex: opts.force})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	summary, err := a.syncPages(ctx, renderer)
	if err != nil {
		return err
	}

	chunks, err := a.db.CountChunks(ctx, "")
	if err != nil {
		return err
	}
	renderer.Complete(ui.CompletionStats{
		Pages:    summary.Pages,
		Chunks:   chunks,
		Duration: summary.Duration,
		Errors:   summary.Errors,
		Embedder: ui.EmbedderInfo{
			Model:      a.embedder.ModelName(),
			Dimensions: a.embedder.Dimensions(),
		},
	})
	if summary.Errors > 0 {
		return fmt.Errorf("%d of %d pages failed to sync (embedder %s)",
			summary.Errors, summary.Pages, embed.Signature(a.embedder))
	}
	return nil
}
