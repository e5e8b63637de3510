package search

import (
	"sort"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
const DefaultRRFConstant = 60

// DefaultTopN is the fused list length handed to generation.
const DefaultTopN = 5

// RRFFusion combines ranked lists with Reciprocal Rank Fusion.
//
// Algorithm: RRF_score(d) = Σ 1 / (k + rank_i(d))
//
// A chunk absent from a list contributes nothing for that list. Only ranks
// are used, so rescaling a ranker's scores never changes the output.
type RRFFusion struct {
	K int
}

// NewRRFFusion creates a fusion with smoothing constant k. k <= 0 uses 60.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse merges the lexical and vector lists and returns at most topN
// results. topN <= 0 returns every fused chunk. A chunk repeated within one
// list counts once, at its first rank.
//
// Results are sorted by: Score (desc) → best individual rank (asc) →
// chunk index (asc) → slug (asc) → row ID (asc).
func (f *RRFFusion) Fuse(lexical, vector []Candidate, topN int) []FusedResult {
	if len(lexical) == 0 && len(vector) == 0 {
		return []FusedResult{}
	}

	byID := make(map[int64]*FusedResult, len(lexical)+len(vector))
	order := make([]int64, 0, len(lexical)+len(vector))
	get := func(c Candidate) *FusedResult {
		if r, ok := byID[c.Ref.ID]; ok {
			return r
		}
		r := &FusedResult{Ref: c.Ref}
		byID[c.Ref.ID] = r
		order = append(order, c.Ref.ID)
		return r
	}

	for i, c := range lexical {
		r := get(c)
		if r.LexicalRank > 0 {
			continue
		}
		rank := i + 1
		r.LexicalRank = rank
		r.LexicalScore = c.Score
		r.Score += 1 / float64(f.K+rank)
	}
	for i, c := range vector {
		r := get(c)
		if r.VectorRank > 0 {
			continue
		}
		rank := i + 1
		r.VectorRank = rank
		r.VectorScore = c.Score
		r.Score += 1 / float64(f.K+rank)
	}

	results := make([]FusedResult, 0, len(order))
	for _, id := range order {
		results = append(results, *byID[id])
	}
	sort.SliceStable(results, func(i, j int) bool {
		return less(results[i], results[j])
	})
	return truncate(results, topN)
}

// VectorOnly relabels the vector list as a fused list without fusion.
// Order is exactly the vector ranker's order.
func VectorOnly(vector []Candidate, topN int) []FusedResult {
	results := make([]FusedResult, 0, len(vector))
	seen := make(map[int64]struct{}, len(vector))
	for _, c := range vector {
		if _, dup := seen[c.Ref.ID]; dup {
			continue
		}
		seen[c.Ref.ID] = struct{}{}
		results = append(results, FusedResult{
			Ref:         c.Ref,
			Score:       c.Score,
			VectorRank:  len(results) + 1,
			VectorScore: c.Score,
		})
	}
	return truncate(results, topN)
}

func less(a, b FusedResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if ra, rb := a.bestRank(), b.bestRank(); ra != rb {
		return ra < rb
	}
	if a.Ref.Index != b.Ref.Index {
		return a.Ref.Index < b.Ref.Index
	}
	if a.Ref.Slug != b.Ref.Slug {
		return a.Ref.Slug < b.Ref.Slug
	}
	return a.Ref.ID < b.Ref.ID
}

func truncate(results []FusedResult, topN int) []FusedResult {
	if topN > 0 && len(results) > topN {
		return results[:topN]
	}
	return results
}
