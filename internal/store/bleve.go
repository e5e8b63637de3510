package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// BleveIndexDir is the directory name of the on-disk Bleve index.
const BleveIndexDir = "lexical.bleve"

// BleveIndex is a Bleve-backed lexical index over chunk text. It lives
// outside the chunk transaction and is swapped per slug after commit. The
// index is derived data: a corrupt index is cleared and rebuilt from SQLite.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var (
	_ LexicalIndex = (*BleveIndex)(nil)
	_ SlugIndexer  = (*BleveIndex)(nil)
)

type bleveChunk struct {
	Content    string `json:"content"`
	Slug       string `json:"slug"`
	ChunkIndex int    `json:"chunk_index"`
}

func bleveMapping() *mapping.IndexMappingImpl {
	content := bleve.NewTextFieldMapping()
	content.Analyzer = en.AnalyzerName
	content.Store = false
	content.IncludeTermVectors = false

	slug := bleve.NewKeywordFieldMapping()
	slug.Store = true

	index := bleve.NewNumericFieldMapping()
	index.Store = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", content)
	doc.AddFieldMappingsAt("slug", slug)
	doc.AddFieldMappingsAt("chunk_index", index)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = en.AnalyzerName
	im.ScoringModel = "bm25"
	return im
}

// validateBleveIntegrity checks the index metadata before opening.
// A missing directory is valid; it will be created.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	metaPath := filepath.Join(path, "index_meta.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// OpenBleveIndex opens or creates the index at path. An empty path
// creates an in-memory index.
func OpenBleveIndex(path string) (*BleveIndex, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(bleveMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory lexical index: %w", err)
		}
		return &BleveIndex{index: idx}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	if verr := validateBleveIntegrity(path); verr != nil {
		slog.Warn("lexical_index_corrupted", slog.String("path", path), slog.String("error", verr.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("lexical index corrupted at %s and cannot remove: %w", path, err)
		}
	}

	idx, err := bleve.Open(path)
	switch {
	case err == bleve.ErrorIndexPathDoesNotExist:
		idx, err = bleve.New(path, bleveMapping())
	case err != nil:
		slog.Warn("lexical_index_open_failed", slog.String("path", path), slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, fmt.Errorf("lexical index unreadable, cannot clear: %w (original: %v)", rmErr, err)
		}
		idx, err = bleve.New(path, bleveMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open lexical index: %w", err)
	}
	return &BleveIndex{index: idx, path: path}, nil
}

// SyncFrom rebuilds the index from db when its document count differs
// from the chunk table's.
func (b *BleveIndex) SyncFrom(ctx context.Context, db *DB) error {
	want, err := db.CountChunks(ctx, "")
	if err != nil {
		return err
	}
	if got := b.Count(); got == want {
		return nil
	}

	grouped := make(map[string][]Chunk)
	if err := db.ForEachChunk(ctx, func(c Chunk) error {
		c.Embedding = nil
		grouped[c.Slug] = append(grouped[c.Slug], c)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to load chunks for lexical index: %w", err)
	}

	if err := b.clear(ctx); err != nil {
		return err
	}
	for slug, chunks := range grouped {
		if err := b.ReplaceSlug(ctx, slug, chunks); err != nil {
			return err
		}
	}
	slog.Info("lexical_index_rebuilt", slog.Int("chunks", want), slog.Int("slugs", len(grouped)))
	return nil
}

func (b *BleveIndex) clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	ids, err := b.idsLocked(ctx, bleve.NewMatchAllQuery())
	if err != nil {
		return err
	}
	return b.applyLocked(ids, nil)
}

// ReplaceSlug deletes slug's documents and indexes chunks in one batch.
func (b *BleveIndex) ReplaceSlug(ctx context.Context, slug string, chunks []Chunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	tq := bleve.NewTermQuery(slug)
	tq.SetField("slug")
	stale, err := b.idsLocked(ctx, tq)
	if err != nil {
		return err
	}
	return b.applyLocked(stale, chunks)
}

func (b *BleveIndex) idsLocked(ctx context.Context, q query.Query) ([]string, error) {
	total, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count lexical documents: %w", err)
	}
	if total == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequestOptions(q, int(total), 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to list lexical documents: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func (b *BleveIndex) applyLocked(deletes []string, chunks []Chunk) error {
	if len(deletes) == 0 && len(chunks) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, id := range deletes {
		batch.Delete(id)
	}
	for _, c := range chunks {
		doc := bleveChunk{Content: c.Content, Slug: c.Slug, ChunkIndex: c.Index}
		if err := batch.Index(strconv.FormatInt(c.ID, 10), doc); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", c.ChunkRef, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to apply lexical batch: %w", err)
	}
	return nil
}

// SearchLexical scores chunk text with BM25 through the English analyzer.
func (b *BleveIndex) SearchLexical(ctx context.Context, text string, k int, slug string) ([]Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	if k < 1 || strings.TrimSpace(text) == "" {
		return []Hit{}, nil
	}

	mq := bleve.NewMatchQuery(text)
	mq.SetField("content")
	var q query.Query = mq
	if slug != "" {
		tq := bleve.NewTermQuery(slug)
		tq.SetField("slug")
		q = bleve.NewConjunctionQuery(mq, tq)
	}

	req := bleve.NewSearchRequestOptions(q, k, 0, false)
	req.Fields = []string{"slug", "chunk_index"}
	req.SortBy([]string{"-_score", "chunk_index", "slug"})

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			continue
		}
		ref := ChunkRef{ID: id}
		if s, ok := h.Fields["slug"].(string); ok {
			ref.Slug = s
		}
		if n, ok := h.Fields["chunk_index"].(float64); ok {
			ref.Index = int(n)
		}
		hits = append(hits, Hit{Ref: ref, Score: h.Score})
	}
	return hits, nil
}

// Count returns the number of indexed chunks.
func (b *BleveIndex) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}
	n, _ := b.index.DocCount()
	return int(n)
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
