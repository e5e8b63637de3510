// Package search provides hybrid retrieval over the chunk store: a lexical
// ranker and a vector ranker whose lists are fused with Reciprocal Rank
// Fusion (RRF), plus an optional cross-encoder reranking pass.
package search

import (
	"github.com/Aman-CERP/pagegenie/internal/config"
	"github.com/Aman-CERP/pagegenie/internal/store"
)

// Ranker sources.
const (
	SourceLexical = "lexical"
	SourceVector  = "vector"
)

// Retrieval methods.
const (
	MethodVector = config.MethodVector
	MethodHybrid = config.MethodHybrid
)

// Candidate is one entry of a single ranker's list.
type Candidate struct {
	Ref    store.ChunkRef
	Score  float64
	Rank   int // 1-based
	Source string
}

// FusedResult is one entry of the fused list. A rank of 0 means the chunk
// was absent from that ranker's list.
type FusedResult struct {
	Ref          store.ChunkRef `json:"ref"`
	Score        float64        `json:"score"`
	LexicalRank  int            `json:"lexical_rank,omitempty"`
	LexicalScore float64        `json:"lexical_score,omitempty"`
	VectorRank   int            `json:"vector_rank,omitempty"`
	VectorScore  float64        `json:"vector_score,omitempty"`
}

// InBothLists reports whether both rankers returned the chunk.
func (r FusedResult) InBothLists() bool {
	return r.LexicalRank > 0 && r.VectorRank > 0
}

// bestRank is the better of the two individual ranks.
func (r FusedResult) bestRank() int {
	switch {
	case r.LexicalRank == 0:
		return r.VectorRank
	case r.VectorRank == 0:
		return r.LexicalRank
	case r.LexicalRank < r.VectorRank:
		return r.LexicalRank
	default:
		return r.VectorRank
	}
}

// Refs returns the chunk references of results in order.
func Refs(results []FusedResult) []store.ChunkRef {
	refs := make([]store.ChunkRef, len(results))
	for i, r := range results {
		refs[i] = r.Ref
	}
	return refs
}
