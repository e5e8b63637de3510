package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/pagegenie/internal/ingest"
)

// PollingWatcher detects page changes by rescanning the pages directory.
type PollingWatcher struct {
	root     string
	interval time.Duration
	state    map[string]fileSnapshot

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

// NewPollingWatcher creates a poller for root.
func NewPollingWatcher(root string, interval time.Duration) *PollingWatcher {
	return &PollingWatcher{
		root:     root,
		interval: interval,
		state:    make(map[string]fileSnapshot),
		stopCh:   make(chan struct{}),
	}
}

// Start takes a baseline, then reports differences every interval until
// ctx is cancelled or Stop is called.
func (p *PollingWatcher) Start(ctx context.Context, emit func(FileEvent), onError func(error)) error {
	baseline, err := p.scan()
	if err != nil {
		return err
	}
	p.state = baseline

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			current, err := p.scan()
			if err != nil {
				onError(err)
				continue
			}
			for _, e := range diff(p.state, current) {
				emit(e)
			}
			p.state = current
		}
	}
}

// Stop ends Start. Safe to call multiple times.
func (p *PollingWatcher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
}

// scan snapshots every page source: root-level .html files and
// <slug>/index.html.
func (p *PollingWatcher) scan() (map[string]fileSnapshot, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return nil, err
	}
	out := make(map[string]fileSnapshot)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(p.root, e.Name())
		if e.IsDir() {
			path = filepath.Join(path, ingest.IndexFile)
		}
		if _, ok := ingest.SlugForPath(p.root, path); !ok {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		out[path] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
	}
	return out, nil
}

func diff(before, after map[string]fileSnapshot) []FileEvent {
	now := time.Now()
	var events []FileEvent
	for path, snap := range after {
		prev, ok := before[path]
		switch {
		case !ok:
			events = append(events, pollEvent(path, OpCreate, now))
		case prev != snap:
			events = append(events, pollEvent(path, OpModify, now))
		}
	}
	for path := range before {
		if _, ok := after[path]; !ok {
			events = append(events, pollEvent(path, OpDelete, now))
		}
	}
	return events
}

func pollEvent(path string, op Operation, at time.Time) FileEvent {
	slug := filepath.Base(path)
	if slug == ingest.IndexFile {
		slug = filepath.Base(filepath.Dir(path))
	} else {
		slug = strings.TrimSuffix(slug, filepath.Ext(slug))
	}
	return FileEvent{Path: path, Slug: slug, Operation: op, Timestamp: at}
}
