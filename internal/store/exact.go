package store

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// ExactIndex answers vector queries by scanning stored embeddings. It is
// used for dimensions too large for the HNSW graph and reads the chunk table
// directly, so it is always consistent with the last committed swap.
type ExactIndex struct {
	db *DB
}

var _ VectorIndex = (*ExactIndex)(nil)

// NewExactIndex returns an exact-scan index over db.
func NewExactIndex(db *DB) *ExactIndex {
	return &ExactIndex{db: db}
}

// SearchVector returns the k chunks most cosine-similar to query.
func (e *ExactIndex) SearchVector(ctx context.Context, query []float32, k int, slug string) ([]Hit, error) {
	if k < 1 {
		return []Hit{}, nil
	}
	q := normalizedCopy(query)

	e.db.mu.RLock()
	defer e.db.mu.RUnlock()
	if e.db.closed {
		return nil, ErrClosed
	}

	rows, err := e.db.db.QueryContext(ctx, `
		SELECT id, slug, chunk_index, embedding FROM chunks
		WHERE embedding IS NOT NULL AND (? = '' OR slug = ?)`, slug, slug)
	if err != nil {
		return nil, fmt.Errorf("vector scan failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var blob []byte
		if err := rows.Scan(&h.Ref.ID, &h.Ref.Slug, &h.Ref.Index, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan vector row: %w", err)
		}
		vec := decodeVector(blob)
		if len(vec) != len(q) {
			return nil, ErrDimensionMismatch{Expected: len(vec), Got: len(q)}
		}
		h.Score = cosine(q, vec)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
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

// sortHits orders by descending score, then chunk index, slug and row ID.
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Ref.Index != b.Ref.Index {
			return a.Ref.Index < b.Ref.Index
		}
		if a.Ref.Slug != b.Ref.Slug {
			return a.Ref.Slug < b.Ref.Slug
		}
		return a.Ref.ID < b.Ref.ID
	})
}

// cosine assumes a is unit length and normalizes b on the fly.
func cosine(a, b []float32) float64 {
	var dot, norm float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		norm += float64(b[i]) * float64(b[i])
	}
	if norm == 0 {
		return 0
	}
	return dot / math.Sqrt(norm)
}

// normalizedCopy returns v scaled to unit length. Zero vectors are returned as-is.
func normalizedCopy(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	normalizeVectorInPlace(out)
	return out
}

func normalizeVectorInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
