package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pagegenie/internal/config"
	"github.com/Aman-CERP/pagegenie/internal/embed"
	"github.com/Aman-CERP/pagegenie/internal/ingest"
	"github.com/Aman-CERP/pagegenie/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store health and status",
		Long: `Display information about the store including:
  - Pages with their chunk and version counts
  - Storage sizes (database, Bleve index)
  - Lexical and vector index selection
  - Embedder, reranker and generator configuration`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, DatabaseFile)
	if !fileExists(dbPath) {
		return fmt.Errorf("no store found in %s\nRun 'pagegenie ingest' to create one", cfg.Paths.DataDir)
	}

	info, err := collectStatus(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to collect status: %w", err)
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

func collectStatus(ctx context.Context, cfg *config.Config) (ui.StatusInfo, error) {
	info := ui.StatusInfo{
		DataDir:        cfg.Paths.DataDir,
		PagesDir:       cfg.Paths.PagesDir,
		LexicalBackend: cfg.Retrieval.LexicalBackend,
		Reranker:       cfg.RerankProvider(),
		Generator:      "unavailable",
	}
	if cfg.OpenAIAPIKey != "" {
		info.Generator = cfg.Generation.Model
	}

	db, err := openStore(cfg)
	if err != nil {
		return info, err
	}
	defer func() { _ = db.Close() }()

	chunkStats, err := db.ChunkStats(ctx)
	if err != nil {
		return info, err
	}
	chunksBySlug := make(map[string]int, len(chunkStats))
	for _, st := range chunkStats {
		chunksBySlug[st.Slug] = st.Chunks
		info.TotalChunks += st.Chunks
	}

	slugs, err := db.Slugs(ctx)
	if err != nil {
		return info, err
	}
	for _, slug := range slugs {
		history, err := db.Versions(ctx, slug)
		if err != nil {
			return info, err
		}
		info.Pages = append(info.Pages, ui.PageStatus{
			Slug:     slug,
			Chunks:   chunksBySlug[slug],
			Versions: len(history),
		})
	}

	if info.Runs, err = db.CountRuns(ctx); err != nil {
		return info, err
	}

	info.DatabaseSize = getFileSize(db.Path())
	if cfg.Retrieval.LexicalBackend == "bleve" {
		info.LexicalSize = getDirSize(filepath.Join(cfg.Paths.DataDir, BleveDir))
	}

	// Building the embedder makes no network calls.
	embedder, err := embed.NewEmbedder(cfg)
	if err != nil {
		return info, err
	}
	defer func() { _ = embedder.Close() }()
	info.EmbedderModel = embedder.ModelName()
	info.EmbedderDims = embedder.Dimensions()
	info.VectorIndex = "exact"
	if cfg.UseHNSW(info.EmbedderDims) {
		info.VectorIndex = "hnsw"
	}

	stored, err := db.Meta(ctx, ingest.MetaEmbedderSignature)
	if err != nil {
		return info, err
	}
	info.SignatureStale = stored != "" && stored != embed.Signature(embedder)
	return info, nil
}

// getFileSize returns the size of a file or 0 if it doesn't exist.
func getFileSize(path string) int64 {
	stat, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return stat.Size()
}

// getDirSize returns the total size of all files in a directory.
func getDirSize(path string) int64 {
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			size += fi.Size()
		}
		return nil
	})
	return size
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
