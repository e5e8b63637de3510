package store

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWConfig tunes the approximate vector index.
type HNSWConfig struct {
	// Dimensions is fixed by the first vector added when zero.
	Dimensions int
	// M is the max connections per layer (default: 16).
	M int
	// EfSearch is the query-time candidate list size (default: 64).
	EfSearch int
	// CompactAfter rebuilds the graph once lazily deleted nodes exceed
	// this many and outnumber live ones (default: 1000).
	CompactAfter int
}

// HNSWIndex is an in-memory approximate cosine index over chunk embeddings,
// keyed by chunk row ID. It is rebuilt from the chunk table at startup and
// swapped per slug after each chunk transaction commits.
//
// Replaced nodes are deleted lazily: their key mappings are dropped and the
// graph node stays until compaction, which avoids a coder/hnsw issue with
// removing the last node of a layer.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config HNSWConfig

	refs   map[uint64]ChunkRef
	vecs   map[uint64][]float32
	bySlug map[string][]uint64

	closed bool
}

var (
	_ VectorIndex = (*HNSWIndex)(nil)
	_ SlugIndexer = (*HNSWIndex)(nil)
)

// NewHNSWIndex creates an empty index.
func NewHNSWIndex(cfg HNSWConfig) *HNSWIndex {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}
	if cfg.CompactAfter == 0 {
		cfg.CompactAfter = 1000
	}
	return &HNSWIndex{
		graph:  newGraph(cfg),
		config: cfg,
		refs:   make(map[uint64]ChunkRef),
		vecs:   make(map[uint64][]float32),
		bySlug: make(map[string][]uint64),
	}
}

func newGraph(cfg HNSWConfig) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// LoadFrom rebuilds the index from every chunk in db.
func (h *HNSWIndex) LoadFrom(ctx context.Context, db *DB) error {
	grouped := make(map[string][]Chunk)
	var order []string
	err := db.ForEachChunk(ctx, func(c Chunk) error {
		if len(c.Embedding) == 0 {
			return nil
		}
		if _, ok := grouped[c.Slug]; !ok {
			order = append(order, c.Slug)
		}
		grouped[c.Slug] = append(grouped[c.Slug], c)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to load chunks for hnsw: %w", err)
	}

	for _, slug := range order {
		if err := h.ReplaceSlug(ctx, slug, grouped[slug]); err != nil {
			return err
		}
	}
	slog.Debug("hnsw_loaded", slog.Int("slugs", len(order)), slog.Int("vectors", h.Count()))
	return nil
}

// ReplaceSlug swaps slug's vectors for those of chunks under the write lock.
func (h *HNSWIndex) ReplaceSlug(_ context.Context, slug string, chunks []Chunk) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}

	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", c.ChunkRef)
		}
		if h.config.Dimensions == 0 {
			h.config.Dimensions = len(c.Embedding)
		}
		if len(c.Embedding) != h.config.Dimensions {
			return ErrDimensionMismatch{Expected: h.config.Dimensions, Got: len(c.Embedding)}
		}
	}

	for _, key := range h.bySlug[slug] {
		delete(h.refs, key)
		delete(h.vecs, key)
	}
	delete(h.bySlug, slug)

	keys := make([]uint64, 0, len(chunks))
	nodes := make([]hnsw.Node[uint64], 0, len(chunks))
	for _, c := range chunks {
		key := uint64(c.ID)
		vec := normalizedCopy(c.Embedding)
		h.refs[key] = c.ChunkRef
		h.vecs[key] = vec
		keys = append(keys, key)
		nodes = append(nodes, hnsw.MakeNode(key, vec))
	}
	if len(nodes) > 0 {
		h.graph.Add(nodes...)
		h.bySlug[slug] = keys
	}

	if orphans := h.graph.Len() - len(h.refs); orphans > h.config.CompactAfter && orphans > len(h.refs) {
		h.compact()
	}
	return nil
}

// compact rebuilds the graph from live vectors. Must hold the write lock.
func (h *HNSWIndex) compact() {
	before := h.graph.Len()
	g := newGraph(h.config)
	nodes := make([]hnsw.Node[uint64], 0, len(h.vecs))
	for key, vec := range h.vecs {
		nodes = append(nodes, hnsw.MakeNode(key, vec))
	}
	if len(nodes) > 0 {
		g.Add(nodes...)
	}
	h.graph = g
	slog.Debug("hnsw_compacted", slog.Int("nodes_before", before), slog.Int("nodes_after", g.Len()))
}

// SearchVector returns up to k nearest chunks. With a slug filter the
// slug's vectors are scanned exactly; otherwise the graph is searched with
// enough extra breadth to cover lazily deleted nodes.
func (h *HNSWIndex) SearchVector(_ context.Context, query []float32, k int, slug string) ([]Hit, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrClosed
	}
	if k < 1 || len(h.refs) == 0 {
		return []Hit{}, nil
	}
	if len(query) != h.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: h.config.Dimensions, Got: len(query)}
	}

	q := normalizedCopy(query)

	var hits []Hit
	switch {
	case slug != "":
		for _, key := range h.bySlug[slug] {
			hits = append(hits, Hit{Ref: h.refs[key], Score: cosine(q, h.vecs[key])})
		}
	case isZeroVector(q):
		// The graph's cosine distance is undefined for a zero query; every
		// chunk scores 0 and the tie-break decides the order.
		for key, ref := range h.refs {
			hits = append(hits, Hit{Ref: ref, Score: cosine(q, h.vecs[key])})
		}
	default:
		fetch := k + (h.graph.Len() - len(h.refs))
		if fetch > h.graph.Len() {
			fetch = h.graph.Len()
		}
		for _, node := range h.graph.Search(q, fetch) {
			ref, ok := h.refs[node.Key]
			if !ok {
				continue
			}
			score := 1 - float64(h.graph.Distance(q, node.Value))
			if math.IsNaN(score) {
				score = 0
			}
			hits = append(hits, Hit{Ref: ref, Score: score})
		}
	}

	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	if hits == nil {
		hits = []Hit{}
	}
	return hits, nil
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// HNSWStats reports live and lazily deleted node counts.
type HNSWStats struct {
	Live       int
	GraphNodes int
	Orphans    int
}

// Stats returns the index statistics.
func (h *HNSWIndex) Stats() HNSWStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HNSWStats{
		Live:       len(h.refs),
		GraphNodes: h.graph.Len(),
		Orphans:    h.graph.Len() - len(h.refs),
	}
}

// Count returns the number of live vectors.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.refs)
}

// Close releases the graph.
func (h *HNSWIndex) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.graph = newGraph(h.config)
	h.refs = nil
	h.vecs = nil
	h.bySlug = nil
	return nil
}
