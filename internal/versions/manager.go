// Package versions publishes page content: it archives the previous
// content as a numbered version, swaps in the new content, mirrors it to
// the pages directory, re-ingests the slug and tells viewers to reload.
package versions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	perrors "github.com/Aman-CERP/pagegenie/internal/errors"
	"github.com/Aman-CERP/pagegenie/internal/ingest"
	"github.com/Aman-CERP/pagegenie/internal/store"
)

// Indexer re-ingests a slug's content.
type Indexer interface {
	IngestSlug(ctx context.Context, slug, content string) (*ingest.Result, error)
	IsIndexed(ctx context.Context, slug string) (bool, error)
}

// Broadcaster notifies connected viewers.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg string) int
}

// Config configures a Manager.
type Config struct {
	// PagesDir receives a mirror of current content. Empty disables it.
	PagesDir string
	// MaxHistory archived versions are kept per slug. 0 keeps all.
	MaxHistory int
	// ReloadMessage is broadcast after a publish.
	ReloadMessage string
}

// Manager owns the publish sequence for all slugs. Publishes of the same
// slug are serialized.
type Manager struct {
	db      *store.DB
	indexer Indexer
	viewers Broadcaster
	cfg     Config
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewManager creates a Manager. viewers may be nil.
func NewManager(db *store.DB, indexer Indexer, viewers Broadcaster, cfg Config) *Manager {
	if cfg.ReloadMessage == "" {
		cfg.ReloadMessage = "reload"
	}
	return &Manager{
		db:      db,
		indexer: indexer,
		viewers: viewers,
		cfg:     cfg,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (m *Manager) slugLock(slug string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	mu, ok := m.locks[slug]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[slug] = mu
	}
	return mu
}

// Result reports what a Publish or Sync did.
type Result struct {
	Slug string `json:"slug"`
	// Archived is the label the previous content was saved under, empty on
	// a slug's first save.
	Archived  string   `json:"archived,omitempty"`
	Pruned    int      `json:"pruned,omitempty"`
	Unchanged bool     `json:"unchanged,omitempty"`
	Mirrored  bool     `json:"mirrored"`
	Indexed   bool     `json:"indexed"`
	Chunks    int      `json:"chunks"`
	Notified  int      `json:"notified"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Warning joins the result's warnings, or returns "".
func (r *Result) Warning() string {
	return strings.Join(r.Warnings, "; ")
}

func (r *Result) warn(msg string, err error) {
	r.Warnings = append(r.Warnings, fmt.Sprintf("%s: %v", msg, err))
}

// Publish makes content the current version of slug. The previous content
// is archived in the same transaction that overwrites it; mirroring and
// re-ingestion failures are reported as warnings without rolling back.
// Re-ingestion makes one embedding attempt: a caller wanting another try
// publishes again.
func (m *Manager) Publish(ctx context.Context, slug, content string) (*Result, error) {
	ctx = ingest.WithoutRetry(ctx)
	if !ingest.ValidSlug(slug) {
		return nil, perrors.New(perrors.ErrCodeInvalidSlug, fmt.Sprintf("invalid page slug %q", slug), nil)
	}
	mu := m.slugLock(slug)
	mu.Lock()
	defer mu.Unlock()

	return m.publishLocked(ctx, slug, content)
}

func (m *Manager) publishLocked(ctx context.Context, slug, content string) (*Result, error) {
	saved, err := m.db.SaveDocument(ctx, slug, content, m.cfg.MaxHistory)
	if err != nil {
		return nil, perrors.New(perrors.ErrCodeStoreWrite, "failed to save "+slug, err)
	}
	res := &Result{Slug: slug, Archived: saved.Archived, Pruned: saved.Pruned}

	if m.cfg.PagesDir != "" {
		if err := m.mirror(slug, content); err != nil {
			res.warn("page mirror not updated", err)
			slog.Warn("page_mirror_failed", slog.String("slug", slug), slog.String("error", err.Error()))
		} else {
			res.Mirrored = true
		}
	}

	m.reindex(ctx, res, content)

	if m.viewers != nil {
		res.Notified = m.viewers.Broadcast(ctx, m.cfg.ReloadMessage)
	}

	slog.Info("page_published",
		slog.String("slug", slug),
		slog.String("archived", res.Archived),
		slog.Int("pruned", res.Pruned),
		slog.Int("chunks", res.Chunks),
		slog.Int("notified", res.Notified),
		slog.Int("warnings", len(res.Warnings)))
	return res, nil
}

func (m *Manager) reindex(ctx context.Context, res *Result, content string) {
	ing, err := m.indexer.IngestSlug(ctx, res.Slug, content)
	if err != nil {
		res.warn("index is stale", err)
		slog.Warn("reindex_failed", slog.String("slug", res.Slug), slog.String("error", err.Error()))
		return
	}
	res.Indexed = true
	res.Chunks = ing.Chunks
}

// Sync brings slug in line with content read from disk. Unchanged content
// is only re-ingested when the slug has no chunks; changed content is
// published.
func (m *Manager) Sync(ctx context.Context, slug, content string) (*Result, error) {
	if !ingest.ValidSlug(slug) {
		return nil, perrors.New(perrors.ErrCodeInvalidSlug, fmt.Sprintf("invalid page slug %q", slug), nil)
	}
	mu := m.slugLock(slug)
	mu.Lock()
	defer mu.Unlock()

	doc, err := m.db.Document(ctx, slug)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return m.publishLocked(ctx, slug, content)
	case err != nil:
		return nil, perrors.StoreError("failed to read "+slug, err)
	case doc.Content != content:
		return m.publishLocked(ctx, slug, content)
	}

	res := &Result{Slug: slug, Unchanged: true}
	indexed, err := m.indexer.IsIndexed(ctx, slug)
	if err != nil {
		return nil, perrors.StoreError("failed to check index for "+slug, err)
	}
	if indexed {
		res.Indexed = true
		return res, nil
	}
	m.reindex(ctx, res, content)
	return res, nil
}

// List returns the labels for slug: "current" followed by archived
// versions, newest first.
func (m *Manager) List(ctx context.Context, slug string) ([]string, error) {
	infos, err := m.History(ctx, slug)
	if err != nil {
		return nil, err
	}
	labels := make([]string, len(infos))
	for i, v := range infos {
		labels[i] = v.Label
	}
	return labels, nil
}

// History is List with sizes and timestamps.
func (m *Manager) History(ctx context.Context, slug string) ([]store.VersionInfo, error) {
	infos, err := m.db.Versions(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		return nil, perrors.New(perrors.ErrCodeVersionNotFound, fmt.Sprintf("no page %q", slug), err)
	}
	if err != nil {
		return nil, perrors.StoreError("failed to list versions", err)
	}
	return infos, nil
}

// Get returns the content of one version of slug. label is "current" or
// "v<N>".
func (m *Manager) Get(ctx context.Context, slug, label string) (string, error) {
	content, err := m.db.VersionContent(ctx, slug, label)
	if errors.Is(err, store.ErrNotFound) {
		return "", perrors.New(perrors.ErrCodeVersionNotFound, fmt.Sprintf("no version %q of %q", label, slug), err)
	}
	if err != nil {
		return "", perrors.StoreError("failed to read version", err)
	}
	return content, nil
}

// Slugs lists every published slug.
func (m *Manager) Slugs(ctx context.Context) ([]string, error) {
	slugs, err := m.db.Slugs(ctx)
	if err != nil {
		return nil, perrors.StoreError("failed to list pages", err)
	}
	return slugs, nil
}

// mirror writes content to the slug's page file with a temp file and
// rename. An identical file is left untouched so the watcher stays quiet.
func (m *Manager) mirror(slug, content string) error {
	path := ingest.PagePath(m.cfg.PagesDir, slug)
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, []byte(content)) {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create page directory: %w", err)
	}
	tmpPath := filepath.Join(dir, "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmpPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write page file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace page file: %w", err)
	}
	return nil
}
