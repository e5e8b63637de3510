package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeViewer struct {
	mu       sync.Mutex
	messages []string
	err      error
	block    bool
	closed   atomic.Bool
}

func (f *fakeViewer) Send(ctx context.Context, msg string) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.messages = append(f.messages, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeViewer) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeViewer) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func TestRegistry_BroadcastReachesAll(t *testing.T) {
	// Given: two registered viewers
	r := NewRegistry(time.Second)
	a, b := &fakeViewer{}, &fakeViewer{}
	r.Register(a)
	r.Register(b)

	// When: broadcasting reload
	n := r.Broadcast(context.Background(), ReloadMessage)

	// Then: both receive it
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"reload"}, a.received())
	assert.Equal(t, []string{"reload"}, b.received())
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry(time.Second)
	unregister := r.Register(&fakeViewer{})
	require.Equal(t, 1, r.Len())

	unregister()
	unregister()

	assert.Equal(t, 0, r.Len())
}

func TestRegistry_DropsFailingViewers(t *testing.T) {
	// Given: a healthy viewer, an erroring one and a stuck one
	r := NewRegistry(50 * time.Millisecond)
	ok := &fakeViewer{}
	bad := &fakeViewer{err: errors.New("broken pipe")}
	stuck := &fakeViewer{block: true}
	r.Register(ok)
	r.Register(bad)
	r.Register(stuck)

	// When: broadcasting
	start := time.Now()
	n := r.Broadcast(context.Background(), ReloadMessage)

	// Then: only the healthy viewer remains and the stuck one was bounded
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, r.Len())
	assert.True(t, bad.closed.Load())
	assert.True(t, stuck.closed.Load())
	assert.False(t, ok.closed.Load())
	assert.Less(t, time.Since(start), time.Second)
}

func TestRegistry_ConcurrentRegisterAndBroadcast(t *testing.T) {
	r := NewRegistry(time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unregister := r.Register(&fakeViewer{})
			if i%2 == 0 {
				unregister()
			}
		}()
		go func() {
			defer wg.Done()
			r.Broadcast(context.Background(), ReloadMessage)
		}()
	}
	wg.Wait()

	assert.Equal(t, 25, r.Len())
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry(0)
	v := &fakeViewer{}
	r.Register(v)

	r.CloseAll()

	assert.Equal(t, 0, r.Len())
	assert.True(t, v.closed.Load())
}
