package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	perrors "github.com/Aman-CERP/pagegenie/internal/errors"
	"github.com/Aman-CERP/pagegenie/internal/store"
)

func validatePool(k int) error {
	if k < 1 {
		return perrors.New(perrors.ErrCodeInvalidPoolSize, fmt.Sprintf("pool size must be at least 1, got %d", k), nil)
	}
	return nil
}

// storeFailure classifies an index error. A dimension mismatch keeps its
// own code so the suggestion to re-ingest reaches the caller.
func storeFailure(op string, err error) error {
	var dm store.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return perrors.New(perrors.ErrCodeDimensionMismatch, dm.Error(), err).
			WithSuggestion("Re-ingest with 'pagegenie ingest --force' after changing the embedding model")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return perrors.StoreError(op+" failed", err)
}

// LexicalRanker ranks chunks by full-text relevance.
type LexicalRanker struct {
	index store.LexicalIndex
}

// NewLexicalRanker wraps a lexical index.
func NewLexicalRanker(index store.LexicalIndex) *LexicalRanker {
	return &LexicalRanker{index: index}
}

// Rank returns up to k candidates for query, best first. slug, when set,
// restricts the search to one page.
func (r *LexicalRanker) Rank(ctx context.Context, query string, k int, slug string) ([]Candidate, error) {
	if err := validatePool(k); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, perrors.New(perrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	hits, err := r.index.SearchLexical(ctx, query, k, slug)
	if err != nil {
		return nil, storeFailure("lexical search", err)
	}
	return toCandidates(hits, k, SourceLexical), nil
}

// VectorRanker ranks chunks by cosine similarity to a query vector.
type VectorRanker struct {
	index store.VectorIndex
}

// NewVectorRanker wraps a vector index.
func NewVectorRanker(index store.VectorIndex) *VectorRanker {
	return &VectorRanker{index: index}
}

// Rank returns up to k candidates nearest to query, best first.
func (r *VectorRanker) Rank(ctx context.Context, query []float32, k int, slug string) ([]Candidate, error) {
	if err := validatePool(k); err != nil {
		return nil, err
	}
	if len(query) == 0 {
		return nil, perrors.New(perrors.ErrCodeInvalidInput, "query vector is empty", nil)
	}
	hits, err := r.index.SearchVector(ctx, query, k, slug)
	if err != nil {
		return nil, storeFailure("vector search", err)
	}
	return toCandidates(hits, k, SourceVector), nil
}

func toCandidates(hits []store.Hit, k int, source string) []Candidate {
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]Candidate, len(hits))
	for i, h := range hits {
		out[i] = Candidate{Ref: h.Ref, Score: h.Score, Rank: i + 1, Source: source}
	}
	return out
}
