package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// unit returns a 4-dimensional one-hot vector.
func unit(axis int) []float32 {
	v := make([]float32, 4)
	v[axis] = 1
	return v
}

func seedSlug(t *testing.T, db *DB, slug string, contents ...string) []Chunk {
	t.Helper()
	chunks := make([]NewChunk, len(contents))
	for i, c := range contents {
		chunks[i] = NewChunk{Index: i, Content: c, Embedding: unit(i % 4)}
	}
	stored, err := db.ReplaceSlug(context.Background(), slug, chunks)
	require.NoError(t, err)
	return stored
}
