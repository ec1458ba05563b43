// ABOUTME: Tests for the subtree cache
// ABOUTME: Covers one notification per merge, options and concurrent merges

package tree

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/treesync/internal/event"
)

func TestCache_UpdateNotifiesOnce(t *testing.T) {
	var changes []Change
	c := NewCache(nil, func(ch Change) { changes = append(changes, ch) })

	c.Update("products", func(s State, o Options) State {
		return MergeList(s, o.offset(), "a", rec("a", "X"))
	})

	assert.Len(t, changes, 1)
	assert.Equal(t, "products", changes[0].Subtree)
	assert.Nil(t, changes[0].Old)
	assert.Len(t, List(changes[0].New, "all"), 1)
}

func TestCache_DeclareOptions(t *testing.T) {
	c := NewCache(nil, nil)
	c.Declare("me", Options{Shape: ShapeRecord})

	assert.Equal(t, ShapeRecord, c.Options("me").Shape)
	assert.Equal(t, Options{}, c.Options("unknown"))
}

func TestCache_SetAndSnapshot(t *testing.T) {
	c := NewCache(nil, nil)
	c.Set("b", State{"id": "1"})
	c.Set("a", State{"all": []event.Record{}})

	assert.Equal(t, []string{"a", "b"}, c.Names())
	snap := c.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, "1", snap["b"]["id"])
}

func TestCache_ConcurrentMergesDoNotLoseWrites(t *testing.T) {
	c := NewCache(nil, nil)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("r%d", i)
			c.Update("list", func(s State, o Options) State {
				return MergeList(s, o.offset(), id, rec(id, "v"))
			})
		}()
	}
	wg.Wait()

	assert.Len(t, List(c.Get("list"), "all"), 50)
}

func TestCache_UpdateIfDeclinedSkipsNotification(t *testing.T) {
	calls := 0
	c := NewCache(nil, func(Change) { calls++ })
	c.Set("me", State{"id": "u1"})
	calls = 0

	got, ok := c.UpdateIf("me", func(s State, _ Options) (State, bool) {
		return nil, false
	})

	assert.False(t, ok)
	assert.Equal(t, "u1", got["id"])
	assert.Equal(t, "u1", c.Get("me")["id"])
	assert.Zero(t, calls)
}
