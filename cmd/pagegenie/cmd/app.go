package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/pagegenie/internal/broadcast"
	"github.com/Aman-CERP/pagegenie/internal/chunk"
	"github.com/Aman-CERP/pagegenie/internal/config"
	"github.com/Aman-CERP/pagegenie/internal/embed"
	perrors "github.com/Aman-CERP/pagegenie/internal/errors"
	"github.com/Aman-CERP/pagegenie/internal/ingest"
	"github.com/Aman-CERP/pagegenie/internal/llm"
	"github.com/Aman-CERP/pagegenie/internal/pipeline"
	"github.com/Aman-CERP/pagegenie/internal/search"
	"github.com/Aman-CERP/pagegenie/internal/store"
	"github.com/Aman-CERP/pagegenie/internal/ui"
	"github.com/Aman-CERP/pagegenie/internal/versions"
)

const (
	// DatabaseFile is the SQLite database inside the data directory.
	DatabaseFile = "pagegenie.db"
	// BleveDir is the Bleve index directory inside the data directory.
	BleveDir = "lexical.bleve"
)

// appOptions selects how much of the stack openApp builds.
type appOptions struct {
	// lock takes the data directory lock. Commands that write pages or
	// chunks set it.
	lock bool
	// renderer receives reindex progress. Nil discards it.
	renderer ui.Renderer
	// forceReindex re-embeds every page even when the embedder signature
	// is unchanged.
	forceReindex bool
}

// app is the fully wired pagegenie stack for one process.
type app struct {
	cfg *config.Config

	lock     *store.DataLock
	db       *store.DB
	bleve    *store.BleveIndex
	hnsw     *store.HNSWIndex
	embedder embed.Embedder
	reranker search.Reranker

	ingester *ingest.Ingester
	viewers  *broadcast.Registry
	versions *versions.Manager
	engine   *search.Engine
	pipeline *pipeline.Pipeline

	lexicalName string
	vectorName  string
	closers     []func() error
}

// loadConfig loads the configuration for the --config directory.
func loadConfig() (*config.Config, error) {
	dir := configDir
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	cfg, err := config.Load(abs)
	if err != nil {
		return nil, perrors.ConfigError(err.Error(), err).
			WithSuggestion("Check .pagegenie.yaml and PAGEGENIE_* environment variables")
	}
	return cfg, nil
}

// openStore opens the database without the indexes or capabilities. It is
// enough for the read-only commands.
func openStore(cfg *config.Config) (*store.DB, error) {
	if err := os.MkdirAll(cfg.Paths.DataDir, 0755); err != nil {
		return nil, perrors.StoreError("failed to create data directory", err)
	}
	return store.Open(filepath.Join(cfg.Paths.DataDir, DatabaseFile))
}

// openApp builds the whole stack from cfg. The caller must Close it.
func openApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if opts.lock {
		a.lock = store.NewDataLock(cfg.Paths.DataDir)
		if err := a.lock.TryLock(); err != nil {
			return nil, err
		}
	}

	a.db, err = openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.db.Close)

	a.embedder, err = embed.NewEmbedder(cfg)
	if err != nil {
		return nil, perrors.ConfigError("failed to create embedder", err)
	}
	a.closers = append(a.closers, a.embedder.Close)

	var indexers []store.SlugIndexer
	lexical, err := a.openLexical(ctx)
	if err != nil {
		return nil, err
	}
	if a.bleve != nil {
		indexers = append(indexers, a.bleve)
	}

	vector := a.openVector()
	if a.hnsw != nil {
		indexers = append(indexers, a.hnsw)
	}

	flat := chunk.NewFlatChunker(cfg.Chunking.FlatSize, cfg.Chunking.FlatOverlap)
	a.ingester, err = ingest.New(ingest.Dependencies{
		DB:       a.db,
		Chunker:  chunk.NewDOMChunker(cfg.Chunking.MinBlocks, flat),
		Embedder: a.embedder,
		Indexers: indexers,
	})
	if err != nil {
		return nil, err
	}

	// Stored vectors must match the embedder before the HNSW graph is
	// loaded from them.
	stale, err := a.ingester.SignatureChanged(ctx)
	if err != nil {
		return nil, err
	}
	if stale || opts.forceReindex {
		slog.Info("reindex_required",
			slog.Bool("signature_changed", stale),
			slog.Bool("forced", opts.forceReindex),
			slog.String("embedder", embed.Signature(a.embedder)))
		if _, err := a.ingester.ReindexAll(ctx, opts.renderer); err != nil {
			return nil, err
		}
	}
	if a.hnsw != nil {
		if err := a.hnsw.LoadFrom(ctx, a.db); err != nil {
			return nil, err
		}
	}

	a.viewers = broadcast.NewRegistry(cfg.Server.BroadcastTimeout)
	a.closers = append(a.closers, func() error {
		a.viewers.CloseAll()
		return nil
	})
	a.versions = versions.NewManager(a.db, a.ingester, a.viewers, versions.Config{
		PagesDir:      cfg.Paths.PagesDir,
		MaxHistory:    cfg.Versions.MaxHistory,
		ReloadMessage: broadcast.ReloadMessage,
	})

	a.engine = search.NewEngine(lexical, vector, a.db, search.EngineConfig{
		PoolSize:    cfg.Retrieval.PoolSize,
		TopN:        cfg.Retrieval.TopN,
		RRFConstant: cfg.Retrieval.RRFConstant,
	})
	a.reranker = search.NewReranker(cfg)
	a.closers = append(a.closers, a.reranker.Close)

	generator, imager := llm.New(cfg)
	a.pipeline, err = pipeline.New(pipeline.Dependencies{
		Embedder:  a.embedder,
		Retriever: a.engine,
		Reranker:  a.reranker,
		Generator: generator,
		Imager:    imager,
		Publisher: a.versions,
		Runs:      a.db,
	}, pipeline.Config{
		DefaultMethod: cfg.Retrieval.Method,
		TopN:          cfg.Retrieval.TopN,
		ContextBudget: cfg.Retrieval.ContextBudgetChars,
		EmbedTimeout:  cfg.Embeddings.Timeout,
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("app_ready",
		slog.String("data_dir", cfg.Paths.DataDir),
		slog.String("lexical", a.lexicalName),
		slog.String("vector", a.vectorName),
		slog.String("embedder", embed.Signature(a.embedder)),
		slog.String("reranker", cfg.RerankProvider()))
	return a, nil
}

func (a *app) openLexical(ctx context.Context) (store.LexicalIndex, error) {
	if a.cfg.Retrieval.LexicalBackend != "bleve" {
		a.lexicalName = "sqlite-fts5"
		return store.NewFTSIndex(a.db), nil
	}
	idx, err := store.OpenBleveIndex(filepath.Join(a.cfg.Paths.DataDir, BleveDir))
	if err != nil {
		return nil, err
	}
	a.bleve = idx
	a.closers = append(a.closers, idx.Close)
	if err := idx.SyncFrom(ctx, a.db); err != nil {
		return nil, err
	}
	a.lexicalName = "bleve"
	return idx, nil
}

func (a *app) openVector() store.VectorIndex {
	dims := a.embedder.Dimensions()
	if !a.cfg.UseHNSW(dims) {
		a.vectorName = "exact"
		return store.NewExactIndex(a.db)
	}
	a.hnsw = store.NewHNSWIndex(store.HNSWConfig{
		Dimensions: dims,
		M:          a.cfg.Retrieval.HNSWM,
		EfSearch:   a.cfg.Retrieval.HNSWEfSearch,
	})
	a.closers = append(a.closers, a.hnsw.Close)
	a.vectorName = "hnsw"
	return a.hnsw
}

// syncPages stores every page found under the pages directory.
func (a *app) syncPages(ctx context.Context, renderer ui.Renderer) (*ingest.SyncSummary, error) {
	if a.cfg.Paths.PagesDir == "" {
		return &ingest.SyncSummary{}, nil
	}
	return ingest.SyncPages(ctx, a.cfg.Paths.PagesDir, func(ctx context.Context, slug, content string) error {
		res, err := a.versions.Sync(ctx, slug, content)
		if err != nil {
			return err
		}
		if w := res.Warning(); w != "" {
			slog.Warn("page_sync_warning", slog.String("slug", slug), slog.String("warning", w))
		}
		return nil
	}, renderer, 4)
}

// Close releases everything openApp acquired, in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
