package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/pagegenie/internal/ingest"
)

// HybridWatcher reports changes to page sources under a pages directory.
// It uses fsnotify and falls back to polling when fsnotify cannot start.
type HybridWatcher struct {
	root      string
	opts      Options
	fsWatcher *fsnotify.Watcher
	poller    *PollingWatcher
	debouncer *Debouncer
	errors    chan error

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
}

// NewHybridWatcher creates a watcher for pagesDir.
func NewHybridWatcher(pagesDir string, opts Options) (*HybridWatcher, error) {
	opts = opts.WithDefaults()
	root, err := filepath.Abs(pagesDir)
	if err != nil {
		return nil, fmt.Errorf("resolve pages directory: %w", err)
	}

	h := &HybridWatcher{
		root:      root,
		opts:      opts,
		debouncer: NewDebouncer(opts.Debounce, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}
	if !opts.ForcePolling {
		if fsw, err := fsnotify.NewWatcher(); err == nil {
			h.fsWatcher = fsw
		} else {
			slog.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
		}
	}
	if h.fsWatcher == nil {
		h.poller = NewPollingWatcher(root, opts.PollInterval)
	}
	return h, nil
}

// Start watches until ctx is cancelled or Stop is called.
func (h *HybridWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(h.root, 0o755); err != nil {
		return fmt.Errorf("create pages directory: %w", err)
	}
	if h.fsWatcher == nil {
		return h.poller.Start(ctx, h.debouncer.Add, h.emitError)
	}
	if err := h.watchTree(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.stopCh:
			return nil
		case event, ok := <-h.fsWatcher.Events:
			if !ok {
				return nil
			}
			h.handle(event)
		case err, ok := <-h.fsWatcher.Errors:
			if !ok {
				return nil
			}
			h.emitError(err)
		}
	}
}

// watchTree adds the root and each slug directory. Pages live at most one
// level down, so the watch is not recursive beyond that.
func (h *HybridWatcher) watchTree() error {
	if err := h.fsWatcher.Add(h.root); err != nil {
		return fmt.Errorf("watch %s: %w", h.root, err)
	}
	entries, err := os.ReadDir(h.root)
	if err != nil {
		return fmt.Errorf("read pages directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			if err := h.fsWatcher.Add(filepath.Join(h.root, e.Name())); err != nil {
				h.emitError(err)
			}
		}
	}
	return nil
}

func (h *HybridWatcher) handle(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 && filepath.Dir(event.Name) == h.root {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			h.addSlugDir(event.Name)
			return
		}
	}

	slug, ok := ingest.SlugForPath(h.root, event.Name)
	if !ok {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}
	h.debouncer.Add(FileEvent{Path: event.Name, Slug: slug, Operation: op, Timestamp: time.Now()})
}

// addSlugDir watches a new slug directory and reports an index file that
// was written before the watch was in place.
func (h *HybridWatcher) addSlugDir(dir string) {
	if strings.HasPrefix(filepath.Base(dir), ".") {
		return
	}
	if err := h.fsWatcher.Add(dir); err != nil {
		h.emitError(err)
		return
	}
	index := filepath.Join(dir, ingest.IndexFile)
	if _, err := os.Stat(index); err != nil {
		return
	}
	if slug, ok := ingest.SlugForPath(h.root, index); ok {
		h.debouncer.Add(FileEvent{Path: index, Slug: slug, Operation: OpCreate, Timestamp: time.Now()})
	}
}

func (h *HybridWatcher) emitError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	select {
	case h.errors <- err:
	default:
	}
}

// Stop stops watching and closes both channels. Safe to call multiple
// times.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil
	}
	h.stopped = true
	close(h.stopCh)
	h.debouncer.Stop()
	if h.fsWatcher != nil {
		_ = h.fsWatcher.Close()
	}
	if h.poller != nil {
		h.poller.Stop()
	}
	close(h.errors)
	return nil
}

// Events returns debounced batches of page changes.
func (h *HybridWatcher) Events() <-chan []FileEvent {
	return h.debouncer.Output()
}

// Errors returns non-fatal watch errors.
func (h *HybridWatcher) Errors() <-chan error {
	return h.errors
}

// WatcherType returns "fsnotify" or "polling".
func (h *HybridWatcher) WatcherType() string {
	if h.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}
