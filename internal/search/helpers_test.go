package search

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/pagegenie/internal/store"
)

func ref(id int64) store.ChunkRef {
	return store.ChunkRef{ID: id, Slug: "page", Index: int(id)}
}

// candidates builds a ranked list from row IDs, with descending scores
// starting at top.
func candidates(source string, top float64, ids ...int64) []Candidate {
	out := make([]Candidate, len(ids))
	for i, id := range ids {
		out[i] = Candidate{Ref: ref(id), Score: top - float64(i), Rank: i + 1, Source: source}
	}
	return out
}

func fusedIDs(results []FusedResult) []int64 {
	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.Ref.ID
	}
	return ids
}

// fakeLexical returns fixed hits, or err.
type fakeLexical struct {
	hits  []store.Hit
	err   error
	calls int
}

func (f *fakeLexical) SearchLexical(_ context.Context, _ string, k int, _ string) ([]store.Hit, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > k {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

type fakeVector struct {
	hits  []store.Hit
	err   error
	calls int
}

func (f *fakeVector) SearchVector(_ context.Context, _ []float32, k int, _ string) ([]store.Hit, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > k {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

func hits(ids ...int64) []store.Hit {
	out := make([]store.Hit, len(ids))
	for i, id := range ids {
		out[i] = store.Hit{Ref: ref(id), Score: 1 - float64(i)*0.1}
	}
	return out
}

type fakeChunks struct {
	rows map[int64]store.Chunk
}

func (f *fakeChunks) ChunksByIDs(_ context.Context, ids []int64) (map[int64]store.Chunk, error) {
	out := make(map[int64]store.Chunk, len(ids))
	for _, id := range ids {
		if c, ok := f.rows[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func chunkRows(ids ...int64) map[int64]store.Chunk {
	rows := make(map[int64]store.Chunk, len(ids))
	for _, id := range ids {
		rows[id] = store.Chunk{ChunkRef: ref(id), Content: fmt.Sprintf("chunk %d", id)}
	}
	return rows
}
