package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidSlug(t *testing.T) {
	tests := []struct {
		slug string
		want bool
	}{
		{"home", true},
		{"landing-page_2", true},
		{"A1", true},
		{"", false},
		{"-home", false},
		{"../etc", false},
		{"a/b", false},
		{"has space", false},
		{"page.html", false},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidSlug(tt.slug))
		})
	}
}

func TestSlugForPath(t *testing.T) {
	root := filepath.Join("srv", "pages")
	tests := []struct {
		name string
		path string
		slug string
		ok   bool
	}{
		{"flat file", filepath.Join(root, "home.html"), "home", true},
		{"upper extension", filepath.Join(root, "home.HTML"), "home", true},
		{"directory form", filepath.Join(root, "about", "index.html"), "about", true},
		{"asset", filepath.Join(root, "about", "logo.png"), "", false},
		{"nested html", filepath.Join(root, "about", "team.html"), "", false},
		{"temp mirror", filepath.Join(root, ".home.html.tmp"), "", false},
		{"outside", filepath.Join("srv", "other.html"), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slug, ok := SlugForPath(root, tt.path)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.slug, slug)
			}
		})
	}
}

func TestDiscover(t *testing.T) {
	// Given: both page forms, a shadowed flat file, and files to ignore
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "home.html"), "<html>home</html>")
	writeFile(t, filepath.Join(dir, "about", "index.html"), "<html>about</html>")
	writeFile(t, filepath.Join(dir, "about.html"), "<html>old about</html>")
	writeFile(t, filepath.Join(dir, "assets", "logo.svg"), "<svg/>")
	writeFile(t, filepath.Join(dir, "notes.txt"), "notes")
	writeFile(t, filepath.Join(dir, ".hidden.html"), "x")

	// When: discovering
	pages, err := Discover(dir)

	// Then: two pages sorted by slug, directory form preferred
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "about", pages[0].Slug)
	assert.Equal(t, filepath.Join(dir, "about", "index.html"), pages[0].Path)
	assert.Equal(t, "home", pages[1].Slug)
}

func TestDiscover_MissingDir(t *testing.T) {
	pages, err := Discover(filepath.Join(t.TempDir(), "nope"))

	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestPagePath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "about", "index.html"), "x")

	assert.Equal(t, filepath.Join(dir, "about", "index.html"), PagePath(dir, "about"))
	assert.Equal(t, filepath.Join(dir, "home.html"), PagePath(dir, "home"))
}

func TestSyncPages(t *testing.T) {
	// Given: three pages, one of which fails to sync
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.html"), "A")
	writeFile(t, filepath.Join(dir, "b.html"), "B")
	writeFile(t, filepath.Join(dir, "c", "index.html"), "C")

	var mu sync.Mutex
	seen := map[string]string{}
	syncFn := func(_ context.Context, slug, content string) error {
		mu.Lock()
		defer mu.Unlock()
		seen[slug] = content
		if slug == "b" {
			return errors.New("boom")
		}
		return nil
	}
	renderer := &recordingRenderer{}

	// When: syncing with two workers
	summary, err := SyncPages(context.Background(), dir, syncFn, renderer, 2)

	// Then: every page is visited and the failure is counted, not fatal
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Pages)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, map[string]string{"a": "A", "b": "B", "c": "C"}, seen)
	require.Len(t, renderer.errs, 1)
	assert.Equal(t, "b", renderer.errs[0].Page)
	assert.Len(t, renderer.progress, 4)
}

func TestSyncPages_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.html"), "A")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := SyncPages(ctx, dir, func(context.Context, string, string) error { return nil }, nil, 1)

	assert.ErrorIs(t, err, context.Canceled)
}
