package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/pagegenie/internal/ui"
)

// IndexFile is the page file inside a slug directory.
const IndexFile = "index.html"

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// ValidSlug reports whether slug is a legal page identifier.
func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

// Page is a page source on disk.
type Page struct {
	Slug string
	Path string
}

// PagePath returns the file a slug's current content is mirrored to:
// pages/<slug>/index.html when that directory exists, pages/<slug>.html
// otherwise.
func PagePath(pagesDir, slug string) string {
	dir := filepath.Join(pagesDir, slug)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return filepath.Join(dir, IndexFile)
	}
	return filepath.Join(pagesDir, slug+".html")
}

// SlugForPath maps a file under pagesDir to its slug. ok is false for
// files that are not page sources.
func SlugForPath(pagesDir, path string) (slug string, ok bool) {
	rel, err := filepath.Rel(pagesDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	switch {
	case len(parts) == 1 && strings.EqualFold(filepath.Ext(parts[0]), ".html"):
		slug = strings.TrimSuffix(parts[0], filepath.Ext(parts[0]))
	case len(parts) == 2 && parts[1] == IndexFile:
		slug = parts[0]
	default:
		return "", false
	}
	return slug, ValidSlug(slug)
}

// Discover lists pages/<slug>.html and pages/<slug>/index.html, sorted by
// slug. When both exist for a slug the directory form wins. A missing
// pages directory yields no pages.
func Discover(pagesDir string) ([]Page, error) {
	entries, err := os.ReadDir(pagesDir)
	if os.IsNotExist(err) {
		return []Page{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pages directory: %w", err)
	}

	bySlug := make(map[string]Page)
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		var path string
		if e.IsDir() {
			path = filepath.Join(pagesDir, name, IndexFile)
			if _, err := os.Stat(path); err != nil {
				continue
			}
		} else {
			path = filepath.Join(pagesDir, name)
		}
		slug, ok := SlugForPath(pagesDir, path)
		if !ok {
			continue
		}
		if prev, exists := bySlug[slug]; exists && filepath.Base(prev.Path) == IndexFile {
			continue
		}
		bySlug[slug] = Page{Slug: slug, Path: path}
	}

	pages := make([]Page, 0, len(bySlug))
	for _, p := range bySlug {
		pages = append(pages, p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Slug < pages[j].Slug })
	return pages, nil
}

// SyncFunc stores and indexes one page's content.
type SyncFunc func(ctx context.Context, slug, content string) error

// SyncSummary reports a SyncPages run.
type SyncSummary struct {
	Pages    int
	Errors   int
	Duration time.Duration
}

// SyncPages discovers the pages under pagesDir and passes each to sync,
// at most concurrency at a time. A page that fails is reported to the
// renderer and skipped; the run continues.
func SyncPages(ctx context.Context, pagesDir string, sync SyncFunc, renderer ui.Renderer, concurrency int) (*SyncSummary, error) {
	start := time.Now()
	if renderer == nil {
		renderer = ui.Discard()
	}
	if concurrency < 1 {
		concurrency = 1
	}

	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageDiscovering, Message: pagesDir})
	pages, err := Discover(pagesDir)
	if err != nil {
		return nil, err
	}

	summary := &SyncSummary{Pages: len(pages)}
	results := make([]error, len(pages))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, p := range pages {
		g.Go(func() error {
			data, err := os.ReadFile(p.Path)
			if err == nil {
				err = sync(gctx, p.Slug, string(data))
			}
			results[i] = err
			renderer.UpdateProgress(ui.ProgressEvent{
				Stage:       ui.StageIndexing,
				Current:     int(done.Add(1)),
				Total:       len(pages),
				CurrentPage: p.Slug,
			})
			if err != nil {
				renderer.AddError(ui.ErrorEvent{Page: p.Slug, Err: err})
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, err := range results {
		if err != nil {
			summary.Errors++
		}
	}
	summary.Duration = time.Since(start)
	return summary, nil
}
