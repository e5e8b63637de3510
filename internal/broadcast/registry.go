// Package broadcast tracks connected page viewers and notifies them when a
// page changes.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ReloadMessage tells a viewer to reload the page it shows.
const ReloadMessage = "reload"

// DefaultSendTimeout bounds a single viewer's send.
const DefaultSendTimeout = 2 * time.Second

// Viewer is one connected live-reload client.
type Viewer interface {
	Send(ctx context.Context, msg string) error
	Close() error
}

// Registry is the set of connected viewers. It is safe for concurrent use;
// sends happen outside the lock on a snapshot.
type Registry struct {
	mu      sync.Mutex
	viewers map[uint64]Viewer
	next    uint64
	timeout time.Duration
}

// NewRegistry creates a registry with the given per-viewer send timeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Registry{viewers: make(map[uint64]Viewer), timeout: timeout}
}

// Register adds v and returns a function that removes it. The returned
// function is safe to call more than once.
func (r *Registry) Register(v Viewer) (unregister func()) {
	r.mu.Lock()
	r.next++
	id := r.next
	r.viewers[id] = v
	r.mu.Unlock()

	slog.Debug("viewer_registered", slog.Uint64("viewer", id))
	return func() { r.remove(id) }
}

func (r *Registry) remove(id uint64) (Viewer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.viewers[id]
	if ok {
		delete(r.viewers, id)
	}
	return v, ok
}

// Len returns the number of registered viewers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.viewers)
}

// Broadcast sends msg to every viewer concurrently and returns how many
// received it. A viewer whose send fails or times out is removed and closed.
func (r *Registry) Broadcast(ctx context.Context, msg string) int {
	r.mu.Lock()
	snapshot := make(map[uint64]Viewer, len(r.viewers))
	for id, v := range r.viewers {
		snapshot[id] = v
	}
	r.mu.Unlock()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for id, v := range snapshot {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, r.timeout)
			err := v.Send(sendCtx, msg)
			cancel()
			if err == nil {
				mu.Lock()
				delivered++
				mu.Unlock()
				return
			}
			if dropped, ok := r.remove(id); ok {
				_ = dropped.Close()
				slog.Info("broadcast_viewer_dropped",
					slog.Uint64("viewer", id),
					slog.String("error", err.Error()))
			}
		}()
	}
	wg.Wait()

	slog.Debug("broadcast_complete",
		slog.String("message", msg),
		slog.Int("viewers", len(snapshot)),
		slog.Int("delivered", delivered))
	return delivered
}

// CloseAll closes and removes every viewer.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	viewers := r.viewers
	r.viewers = make(map[uint64]Viewer)
	r.mu.Unlock()

	for _, v := range viewers {
		_ = v.Close()
	}
}
