// ABOUTME: Tests for the pending local change tracker
// ABOUTME: Validates supersede, resolve, TTL expiry, size eviction and concurrency

package pending

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/treesync/internal/event"
)

func change(path string, action event.Action) event.LocalChange {
	return event.LocalChange{DBPath: path, LocalPath: "products", Action: action}
}

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTracker(ttl time.Duration, maxSize int) (*Tracker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	tr := New(ttl, maxSize, 0)
	tr.now = clock.Now
	return tr, clock
}

func TestTracker_AddAndResolve(t *testing.T) {
	tr, _ := newTestTracker(time.Minute, 10)
	defer tr.Close()

	tr.Add(change("products/a", event.ActionAdd))

	got, ok := tr.Get("products/a")
	require.True(t, ok)
	assert.Equal(t, event.ActionAdd, got.Action)

	resolved, ok := tr.Resolve("products/a")
	require.True(t, ok)
	assert.Equal(t, "products/a", resolved.DBPath)

	_, ok = tr.Resolve("products/a")
	assert.False(t, ok, "second resolve finds nothing")
	assert.Equal(t, 0, tr.Len())
}

func TestTracker_SupersedeMovesToBack(t *testing.T) {
	tr, _ := newTestTracker(time.Minute, 10)
	defer tr.Close()

	tr.Add(change("p/a", event.ActionAdd))
	tr.Add(change("p/b", event.ActionAdd))
	tr.Add(change("p/a", event.ActionUpdate))

	pending := tr.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "p/b", pending[0].DBPath)
	assert.Equal(t, "p/a", pending[1].DBPath)
	assert.Equal(t, event.ActionUpdate, pending[1].Action)
}

func TestTracker_Expiry(t *testing.T) {
	tr, clock := newTestTracker(time.Minute, 10)
	defer tr.Close()

	tr.Add(change("p/a", event.ActionAdd))
	clock.Advance(30 * time.Second)
	tr.Add(change("p/b", event.ActionAdd))
	clock.Advance(45 * time.Second)

	_, ok := tr.Get("p/a")
	assert.False(t, ok, "p/a should be expired")
	_, ok = tr.Get("p/b")
	assert.True(t, ok)

	assert.Len(t, tr.Pending(), 1)
	assert.Equal(t, 2, tr.Len(), "expired entries linger until swept")

	tr.Sweep()
	assert.Equal(t, 1, tr.Len())
}

func TestTracker_EvictsOldestWhenFull(t *testing.T) {
	tr, _ := newTestTracker(time.Minute, 3)
	defer tr.Close()

	for i := range 4 {
		tr.Add(change(fmt.Sprintf("p/%d", i), event.ActionAdd))
	}

	_, ok := tr.Get("p/0")
	assert.False(t, ok, "oldest entry should be evicted")
	assert.Equal(t, 3, tr.Len())
}

func TestTracker_CloseTwice(t *testing.T) {
	tr := New(time.Minute, 10, time.Millisecond)
	tr.Close()
	tr.Close()
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	tr := New(time.Minute, 1000, 0)
	defer tr.Close()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				path := fmt.Sprintf("p/%d-%d", i, j)
				tr.Add(change(path, event.ActionAdd))
				tr.Get(path)
				if j%2 == 0 {
					tr.Resolve(path)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, tr.Len())
}
