package search

import (
	"context"
	"errors"
	"fmt"
)

// ErrRerankMismatch is returned when a reranker's output is not a
// permutation of its input.
var ErrRerankMismatch = errors.New("rerank output is not a permutation of the input")

// RerankResult represents a single reranked result
type RerankResult struct {
	// Index is the original position in the input documents slice
	Index int
	// Score is the relevance score
	Score float64
}

// Reranker reorders documents by relevance to a query using a cross-encoder.
type Reranker interface {
	// Rerank scores documents against query and returns them best first.
	// topK limits the results; 0 returns all.
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error)

	// Available reports whether reranking actually happens.
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// NoOpReranker is a reranker that returns results in original order.
// Used when no reranking service is configured.
type NoOpReranker struct{}

// Rerank returns documents in original order with decreasing scores.
func (n *NoOpReranker) Rerank(_ context.Context, _ string, documents []string, topK int) ([]RerankResult, error) {
	results := make([]RerankResult, len(documents))
	for i := range documents {
		results[i] = RerankResult{
			Index: i,
			Score: 1.0 - float64(i)*0.01,
		}
	}

	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}

	return results, nil
}

// Available is false: the pipeline skips its reranking stage for a NoOp.
func (n *NoOpReranker) Available(_ context.Context) bool {
	return false
}

// Close is a no-op for NoOpReranker.
func (n *NoOpReranker) Close() error {
	return nil
}

// Verify interface implementation at compile time
var _ Reranker = (*NoOpReranker)(nil)

// ApplyRerank reorders fused by the reranker's output. The output must
// name every input position exactly once; otherwise fused is returned
// unchanged together with ErrRerankMismatch.
func ApplyRerank(fused []FusedResult, results []RerankResult) ([]FusedResult, error) {
	if len(results) != len(fused) {
		return fused, fmt.Errorf("%w: got %d results for %d inputs", ErrRerankMismatch, len(results), len(fused))
	}
	seen := make([]bool, len(fused))
	out := make([]FusedResult, 0, len(fused))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(fused) {
			return fused, fmt.Errorf("%w: index %d out of range", ErrRerankMismatch, r.Index)
		}
		if seen[r.Index] {
			return fused, fmt.Errorf("%w: index %d repeated", ErrRerankMismatch, r.Index)
		}
		seen[r.Index] = true
		out = append(out, fused[r.Index])
	}
	return out, nil
}
