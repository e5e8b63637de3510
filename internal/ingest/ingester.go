// Package ingest turns page content into stored, embedded and indexed
// chunks, and discovers pages on disk.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/pagegenie/internal/chunk"
	"github.com/Aman-CERP/pagegenie/internal/embed"
	perrors "github.com/Aman-CERP/pagegenie/internal/errors"
	"github.com/Aman-CERP/pagegenie/internal/store"
	"github.com/Aman-CERP/pagegenie/internal/ui"
)

// MetaEmbedderSignature records which embedder produced the stored vectors.
const MetaEmbedderSignature = "embedder_signature"

// Dependencies contains the injected dependencies for an Ingester.
type Dependencies struct {
	// DB stores chunks and their FTS5 rows (required).
	DB *store.DB

	// Chunker splits page HTML into chunks (required).
	Chunker chunk.Chunker

	// Embedder embeds chunk content (required).
	Embedder embed.Embedder

	// Indexers are swapped after each chunk transaction commits (HNSW, Bleve).
	Indexers []store.SlugIndexer

	// Retry governs embedding retries. Zero value uses DefaultRetryConfig.
	Retry *perrors.RetryConfig
}

// Ingester replaces a slug's chunk set. Calls for the same slug are
// serialized so index swaps apply in commit order.
type Ingester struct {
	db       *store.DB
	chunker  chunk.Chunker
	embedder embed.Embedder
	indexers []store.SlugIndexer
	retry    perrors.RetryConfig

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates an Ingester with injected dependencies.
func New(deps Dependencies) (*Ingester, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	retry := perrors.DefaultRetryConfig()
	if deps.Retry != nil {
		retry = *deps.Retry
	}
	return &Ingester{
		db:       deps.DB,
		chunker:  deps.Chunker,
		embedder: deps.Embedder,
		indexers: deps.Indexers,
		retry:    retry,
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

func (in *Ingester) slugLock(slug string) *sync.Mutex {
	in.locksMu.Lock()
	defer in.locksMu.Unlock()
	mu, ok := in.locks[slug]
	if !ok {
		mu = &sync.Mutex{}
		in.locks[slug] = mu
	}
	return mu
}

// Result describes one slug ingestion.
type Result struct {
	Slug   string
	Chunks int
	Timing StageTiming
}

// StageTiming tracks duration for each ingestion stage.
type StageTiming struct {
	Chunk time.Duration
	Embed time.Duration
	Index time.Duration
}

type noRetryKey struct{}

// WithoutRetry marks ctx so IngestSlug makes a single embedding attempt.
// Publishing on behalf of a chat request uses it; background syncs retry.
func WithoutRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRetryKey{}, true)
}

// RetriesDisabled reports whether ctx was marked by WithoutRetry.
func RetriesDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(noRetryKey{}).(bool)
	return v
}

// IngestSlug chunks content, embeds the chunks and replaces the slug's
// chunk set. Embedding failures are retried with backoff unless ctx
// carries WithoutRetry.
func (in *Ingester) IngestSlug(ctx context.Context, slug, content string) (*Result, error) {
	mu := in.slugLock(slug)
	mu.Lock()
	defer mu.Unlock()

	res := &Result{Slug: slug}

	start := time.Now()
	pieces, err := in.chunker.Chunk(ctx, []byte(content))
	if err != nil {
		return nil, perrors.New(perrors.ErrCodeChunkingFailed, "failed to chunk "+slug, err)
	}
	res.Timing.Chunk = time.Since(start)

	start = time.Now()
	vectors := [][]float32{}
	if len(pieces) > 0 {
		texts := make([]string, len(pieces))
		for i, p := range pieces {
			texts[i] = p.Content
		}
		retry := in.retry
		if RetriesDisabled(ctx) {
			retry.MaxRetries = 0
		}
		vectors, err = perrors.RetryWithResult(ctx, retry, func() ([][]float32, error) {
			return in.embedder.EmbedBatch(ctx, texts)
		})
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(pieces) {
			return nil, perrors.InternalError(
				fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(pieces)), nil)
		}
	}
	res.Timing.Embed = time.Since(start)

	start = time.Now()
	rows := make([]store.NewChunk, len(pieces))
	for i, p := range pieces {
		rows[i] = store.NewChunk{Index: i, Path: p.Path, Content: p.Content, Embedding: vectors[i]}
	}
	stored, err := in.db.ReplaceSlug(ctx, slug, rows)
	if err != nil {
		return nil, perrors.New(perrors.ErrCodeStoreWrite, "failed to store chunks for "+slug, err)
	}
	for _, idx := range in.indexers {
		if err := idx.ReplaceSlug(ctx, slug, stored); err != nil {
			return nil, perrors.New(perrors.ErrCodeStoreWrite, "failed to update index for "+slug, err)
		}
	}
	if err := in.db.SetMeta(ctx, MetaEmbedderSignature, embed.Signature(in.embedder)); err != nil {
		slog.Warn("embedder_signature_not_saved", slog.String("error", err.Error()))
	}
	res.Timing.Index = time.Since(start)
	res.Chunks = len(stored)

	slog.Info("ingest_complete",
		slog.String("slug", slug),
		slog.Int("chunks", res.Chunks),
		slog.Duration("chunk", res.Timing.Chunk),
		slog.Duration("embed", res.Timing.Embed),
		slog.Duration("index", res.Timing.Index))
	return res, nil
}

// IsIndexed reports whether slug has stored chunks.
func (in *Ingester) IsIndexed(ctx context.Context, slug string) (bool, error) {
	n, err := in.db.CountChunks(ctx, slug)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SignatureChanged reports whether the stored vectors came from a
// different embedder than the current one.
func (in *Ingester) SignatureChanged(ctx context.Context) (bool, error) {
	stored, err := in.db.Meta(ctx, MetaEmbedderSignature)
	if err != nil {
		return false, err
	}
	return stored != "" && stored != embed.Signature(in.embedder), nil
}

// Embedder returns the embedder chunks are embedded with.
func (in *Ingester) Embedder() embed.Embedder {
	return in.embedder
}

// ReindexAll re-ingests the current content of every stored slug. It is
// used after the embedder changes or on a forced ingest.
func (in *Ingester) ReindexAll(ctx context.Context, renderer ui.Renderer) (*ui.CompletionStats, error) {
	start := time.Now()
	if renderer == nil {
		renderer = ui.Discard()
	}
	slugs, err := in.db.Slugs(ctx)
	if err != nil {
		return nil, perrors.StoreError("failed to list slugs", err)
	}

	stats := &ui.CompletionStats{Pages: len(slugs)}
	for i, slug := range slugs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := in.db.Document(ctx, slug)
		if err != nil {
			stats.Errors++
			renderer.AddError(ui.ErrorEvent{Page: slug, Err: err})
			continue
		}
		renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Current: i + 1, Total: len(slugs), CurrentPage: slug})
		res, err := in.IngestSlug(ctx, slug, doc.Content)
		if err != nil {
			stats.Errors++
			renderer.AddError(ui.ErrorEvent{Page: slug, Err: err})
			continue
		}
		stats.Chunks += res.Chunks
		stats.Stages.Chunk += res.Timing.Chunk
		stats.Stages.Embed += res.Timing.Embed
		stats.Stages.Index += res.Timing.Index
	}
	stats.Duration = time.Since(start)
	stats.Embedder = ui.EmbedderInfo{
		Model:      in.embedder.ModelName(),
		Dimensions: in.embedder.Dimensions(),
	}
	return stats, nil
}
