package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pagegenie/internal/chunk"
	"github.com/Aman-CERP/pagegenie/internal/embed"
	perrors "github.com/Aman-CERP/pagegenie/internal/errors"
	"github.com/Aman-CERP/pagegenie/internal/store"
	"github.com/Aman-CERP/pagegenie/internal/ui"
)

func openDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func fastRetry() *perrors.RetryConfig {
	return &perrors.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func newTestIngester(t *testing.T, db *store.DB, e embed.Embedder, indexers ...store.SlugIndexer) *Ingester {
	t.Helper()
	in, err := New(Dependencies{
		DB:       db,
		Chunker:  chunk.NewFlatChunker(40, 0),
		Embedder: e,
		Indexers: indexers,
		Retry:    fastRetry(),
	})
	require.NoError(t, err)
	return in
}

// flakyEmbedder fails the first n batch calls.
type flakyEmbedder struct {
	*embed.StaticEmbedder
	failures atomic.Int32
	calls    atomic.Int32
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("connection reset")
	}
	return f.StaticEmbedder.EmbedBatch(ctx, texts)
}

type recordingIndexer struct {
	mu    sync.Mutex
	slugs map[string]int
	err   error
}

func (r *recordingIndexer) ReplaceSlug(_ context.Context, slug string, chunks []store.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.slugs == nil {
		r.slugs = make(map[string]int)
	}
	r.slugs[slug] = len(chunks)
	return nil
}

type recordingRenderer struct {
	mu       sync.Mutex
	progress []ui.ProgressEvent
	errs     []ui.ErrorEvent
}

func (r *recordingRenderer) Start(context.Context) error { return nil }
func (r *recordingRenderer) Complete(ui.CompletionStats) {}
func (r *recordingRenderer) Stop() error                 { return nil }

func (r *recordingRenderer) UpdateProgress(e ui.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, e)
}

func (r *recordingRenderer) AddError(e ui.ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, e)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
