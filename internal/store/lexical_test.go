package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lexicalBackends builds each lexical backend over the same seeded chunks.
func lexicalBackends(t *testing.T, seed map[string][]string) map[string]LexicalIndex {
	t.Helper()
	ctx := context.Background()
	db := openTestDB(t)

	bl, err := OpenBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bl.Close() })

	for slug, contents := range seed {
		stored := seedSlug(t, db, slug, contents...)
		require.NoError(t, bl.ReplaceSlug(ctx, slug, stored))
	}
	return map[string]LexicalIndex{"fts5": NewFTSIndex(db), "bleve": bl}
}

func TestSearchLexical_RanksMatchingChunks(t *testing.T) {
	backends := lexicalBackends(t, map[string][]string{
		"home": {"Welcome to our site", "Pricing plans for every team", "Contact support"},
	})

	for name, idx := range backends {
		t.Run(name, func(t *testing.T) {
			// When: searching for an inflected form of an indexed word
			hits, err := idx.SearchLexical(context.Background(), "price", 5, "")

			// Then: the stemmed match is found
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "home", hits[0].Ref.Slug)
			assert.Equal(t, 1, hits[0].Ref.Index)
			assert.Greater(t, hits[0].Score, 0.0)
		})
	}
}

func TestSearchLexical_StopWordQueryIsEmpty(t *testing.T) {
	backends := lexicalBackends(t, map[string][]string{
		"home": {"the and of it", "the hero section"},
	})

	for name, idx := range backends {
		t.Run(name, func(t *testing.T) {
			hits, err := idx.SearchLexical(context.Background(), "the and of", 5, "")

			require.NoError(t, err)
			assert.Empty(t, hits)
		})
	}
}

func TestSearchLexical_TiesBreakByChunkIndex(t *testing.T) {
	backends := lexicalBackends(t, map[string][]string{
		"home": {"banner footer", "banner footer", "banner footer"},
	})

	for name, idx := range backends {
		t.Run(name, func(t *testing.T) {
			hits, err := idx.SearchLexical(context.Background(), "banner", 5, "")

			require.NoError(t, err)
			require.Len(t, hits, 3)
			for i, h := range hits {
				assert.Equal(t, i, h.Ref.Index)
			}
		})
	}
}

func TestSearchLexical_SlugFilterAndLimit(t *testing.T) {
	backends := lexicalBackends(t, map[string][]string{
		"home":  {"navigation menu", "navigation links", "navigation footer"},
		"about": {"navigation about"},
	})

	for name, idx := range backends {
		t.Run(name, func(t *testing.T) {
			hits, err := idx.SearchLexical(context.Background(), "navigation", 2, "about")
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "about", hits[0].Ref.Slug)

			hits, err = idx.SearchLexical(context.Background(), "navigation", 2, "")
			require.NoError(t, err)
			assert.Len(t, hits, 2)
		})
	}
}

func TestSearchLexical_QuerySyntaxIsNeutralised(t *testing.T) {
	backends := lexicalBackends(t, map[string][]string{
		"home": {"hero banner"},
	})

	for name, idx := range backends {
		t.Run(name, func(t *testing.T) {
			hits, err := idx.SearchLexical(context.Background(), `hero" OR (NEAR* -`, 5, "")

			require.NoError(t, err)
			assert.Len(t, hits, 1)
		})
	}
}

func TestBleveIndex_ReplaceSlugDropsOldDocuments(t *testing.T) {
	// Given: a bleve index with two chunks for a slug
	ctx := context.Background()
	db := openTestDB(t)
	bl, err := OpenBleveIndex("")
	require.NoError(t, err)
	defer bl.Close()
	require.NoError(t, bl.ReplaceSlug(ctx, "home", seedSlug(t, db, "home", "alpha", "beta")))

	// When: the slug is replaced by one chunk
	require.NoError(t, bl.ReplaceSlug(ctx, "home", seedSlug(t, db, "home", "gamma")))

	// Then: only the new chunk is searchable
	assert.Equal(t, 1, bl.Count())
	hits, err := bl.SearchLexical(ctx, "alpha", 5, "")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBleveIndex_SyncFromRebuildsOnDisk(t *testing.T) {
	// Given: chunks in SQLite and an empty on-disk bleve index
	ctx := context.Background()
	db := openTestDB(t)
	seedSlug(t, db, "home", "hero banner", "pricing table")
	seedSlug(t, db, "about", "team")

	path := filepath.Join(t.TempDir(), BleveIndexDir)
	bl, err := OpenBleveIndex(path)
	require.NoError(t, err)

	// When: it syncs from the store
	require.NoError(t, bl.SyncFrom(ctx, db))

	// Then: every chunk is indexed, and a reopen keeps them
	assert.Equal(t, 3, bl.Count())
	require.NoError(t, bl.Close())

	bl, err = OpenBleveIndex(path)
	require.NoError(t, err)
	defer bl.Close()
	assert.Equal(t, 3, bl.Count())
	require.NoError(t, bl.SyncFrom(ctx, db))
	hits, err := bl.SearchLexical(ctx, "pricing", 5, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, ChunkRef{ID: hits[0].Ref.ID, Slug: "home", Index: 1}, hits[0].Ref)
}

func TestFtsQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"change the title", `"change" OR "title"`},
		{"hero hero HERO", `"hero"`},
		{"the of", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ftsQuery(tt.in), tt.in)
	}
}
