// ABOUTME: Thread-safe TTL tracker of unconfirmed local changes keyed by db path
// ABOUTME: Keeps insertion order for listing and O(1) eviction of the oldest entry

package pending

import (
	"container/list"
	"sync"
	"time"

	"github.com/2389/treesync/internal/event"
)

// entry stores the change and its position in the insertion order.
type entry struct {
	change  event.LocalChange
	addedAt time.Time
	element *list.Element
}

// Tracker holds local changes awaiting confirmation. A later change to the
// same db path supersedes the earlier one and moves to the back.
type Tracker struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   *list.List // db paths, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a tracker. A background goroutine drops expired entries
// every interval; pass interval <= 0 to disable it.
func New(ttl time.Duration, maxSize int, interval time.Duration) *Tracker {
	t := &Tracker{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	if interval > 0 {
		go t.cleanup(interval)
	}
	return t
}

// Add records a local change. If the tracker is full the oldest entry is evicted.
func (t *Tracker) Add(change event.LocalChange) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[change.DBPath]; ok {
		e.change = change
		e.addedAt = t.now()
		t.order.MoveToBack(e.element)
		return
	}

	if t.maxSize > 0 && len(t.entries) >= t.maxSize {
		t.evictOldest()
	}

	elem := t.order.PushBack(change.DBPath)
	t.entries[change.DBPath] = &entry{
		change:  change,
		addedAt: t.now(),
		element: elem,
	}
}

// Resolve removes and returns the change recorded for dbPath.
func (t *Tracker) Resolve(dbPath string) (event.LocalChange, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[dbPath]
	if !ok {
		return event.LocalChange{}, false
	}
	t.order.Remove(e.element)
	delete(t.entries, dbPath)
	return e.change, true
}

// Get returns the unexpired change recorded for dbPath.
func (t *Tracker) Get(dbPath string) (event.LocalChange, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[dbPath]
	if !ok || t.expired(e) {
		return event.LocalChange{}, false
	}
	return e.change, true
}

// Pending returns unexpired changes, oldest first.
func (t *Tracker) Pending() []event.LocalChange {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]event.LocalChange, 0, len(t.entries))
	for el := t.order.Front(); el != nil; el = el.Next() {
		e := t.entries[el.Value.(string)]
		if !t.expired(e) {
			out = append(out, e.change)
		}
	}
	return out
}

// Len returns the number of tracked entries, expired ones included.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *Tracker) expired(e *entry) bool {
	return t.ttl > 0 && t.now().Sub(e.addedAt) >= t.ttl
}

// evictOldest must be called with mu held.
func (t *Tracker) evictOldest() {
	front := t.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	t.order.Remove(front)
	delete(t.entries, key)
}

func (t *Tracker) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Sweep()
		case <-t.done:
			return
		}
	}
}

// Sweep drops every expired entry.
func (t *Tracker) Sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, e := range t.entries {
		if t.expired(e) {
			t.order.Remove(e.element)
			delete(t.entries, key)
		}
	}
}

// Close stops the background sweeper. It is safe to call multiple times.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.closed {
		close(t.done)
		t.closed = true
	}
}
