package store

import (
	"context"
	"fmt"
	"strings"
)

// FTSIndex is the SQLite FTS5 lexical index. Its rows are written by
// DB.ReplaceSlug inside the chunk transaction, so it needs no separate swap.
type FTSIndex struct {
	db *DB
}

var _ LexicalIndex = (*FTSIndex)(nil)

// NewFTSIndex returns the FTS5 index over db.
func NewFTSIndex(db *DB) *FTSIndex {
	return &FTSIndex{db: db}
}

// SearchLexical ranks chunks by BM25 over their porter-stemmed tokens.
// A query with no indexable tokens returns no hits.
func (f *FTSIndex) SearchLexical(ctx context.Context, query string, k int, slug string) ([]Hit, error) {
	match := ftsQuery(query)
	if match == "" || k < 1 {
		return []Hit{}, nil
	}

	f.db.mu.RLock()
	defer f.db.mu.RUnlock()
	if f.db.closed {
		return nil, ErrClosed
	}

	// bm25() is lower-is-better, so it is negated for the returned score.
	rows, err := f.db.db.QueryContext(ctx, `
		SELECT rowid, slug, chunk_index, bm25(chunks_fts) AS score
		FROM chunks_fts
		WHERE chunks_fts MATCH ? AND (? = '' OR slug = ?)
		ORDER BY score, chunk_index, slug
		LIMIT ?`, match, slug, slug, k)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []Hit{}, nil
		}
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}
	defer rows.Close()

	hits := make([]Hit, 0, k)
	for rows.Next() {
		var h Hit
		var score float64
		if err := rows.Scan(&h.Ref.ID, &h.Ref.Slug, &h.Ref.Index, &score); err != nil {
			return nil, fmt.Errorf("failed to scan lexical hit: %w", err)
		}
		h.Score = -score
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
