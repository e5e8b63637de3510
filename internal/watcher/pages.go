package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/Aman-CERP/pagegenie/internal/ingest"
	"github.com/Aman-CERP/pagegenie/internal/versions"
)

// Syncer stores a page read from disk. *versions.Manager implements it.
type Syncer interface {
	Sync(ctx context.Context, slug, content string) (*versions.Result, error)
}

// PageWatcher re-syncs pages whose source files change.
type PageWatcher struct {
	pagesDir string
	source   *HybridWatcher
	syncer   Syncer
}

// NewPageWatcher creates a watcher over pagesDir that passes changed
// pages to syncer.
func NewPageWatcher(pagesDir string, syncer Syncer, opts Options) (*PageWatcher, error) {
	source, err := NewHybridWatcher(pagesDir, opts)
	if err != nil {
		return nil, err
	}
	return &PageWatcher{pagesDir: source.root, source: source, syncer: syncer}, nil
}

// Run watches until ctx is cancelled.
func (w *PageWatcher) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- w.source.Start(ctx) }()
	slog.Info("page_watch_started",
		slog.String("pages_dir", w.pagesDir),
		slog.String("mode", w.source.WatcherType()))

	events := w.source.Events()
	watchErrs := w.source.Errors()
	for {
		select {
		case err := <-errCh:
			_ = w.source.Stop()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			w.apply(ctx, batch)
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			slog.Warn("page_watch_error", slog.String("error", err.Error()))
		}
	}
}

// Stop stops the underlying watcher.
func (w *PageWatcher) Stop() error {
	return w.source.Stop()
}

func (w *PageWatcher) apply(ctx context.Context, batch []FileEvent) {
	for _, e := range batch {
		if ctx.Err() != nil {
			return
		}
		switch e.Operation {
		case OpDelete, OpRename:
			// The store keeps the page and its history; only the mirror is gone.
			slog.Info("page_source_removed", slog.String("slug", e.Slug), slog.String("path", e.Path))
			continue
		}

		// The directory form wins when both files exist.
		if ingest.PagePath(w.pagesDir, e.Slug) != e.Path && fileExists(ingest.PagePath(w.pagesDir, e.Slug)) {
			continue
		}
		data, err := os.ReadFile(e.Path)
		if err != nil {
			slog.Warn("page_read_failed", slog.String("slug", e.Slug), slog.String("error", err.Error()))
			continue
		}
		res, err := w.syncer.Sync(ctx, e.Slug, string(data))
		if err != nil {
			slog.Warn("page_sync_failed", slog.String("slug", e.Slug), slog.String("error", err.Error()))
			continue
		}
		slog.Info("page_synced",
			slog.String("slug", e.Slug),
			slog.String("op", e.Operation.String()),
			slog.Bool("unchanged", res.Unchanged),
			slog.String("archived", res.Archived))
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
