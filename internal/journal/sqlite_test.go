// ABOUTME: Tests for the SQLite journal
// ABOUTME: Covers local change ordering, failure records and snapshot round trips

package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/treesync/internal/event"
	"github.com/2389/treesync/internal/tree"
)

func newTestJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := NewSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestNewSQLiteJournal_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "journal.db")

	j, err := NewSQLiteJournal(path)
	require.NoError(t, err)
	defer j.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLocalChanges_OrderAndLimit(t *testing.T) {
	j := newTestJournal(t)
	ctx := t.Context()

	for i := range 5 {
		lc := event.LocalChange{
			DBPath:    fmt.Sprintf("products/p%d", i),
			LocalPath: "products",
			Action:    event.ActionAdd,
			Value:     event.Record{"id": fmt.Sprintf("p%d", i), "qty": float64(i)},
			Timestamp: int64(1000 + i),
		}
		require.NoError(t, j.AppendLocalChange(ctx, lc))
	}
	require.NoError(t, j.AppendLocalChange(ctx, event.LocalChange{
		DBPath: "products/p0", LocalPath: "products", Action: event.ActionRemove, Timestamp: 2000,
	}))

	all, err := j.ListLocalChanges(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 6)
	assert.Equal(t, "products/p0", all[0].DBPath)
	assert.Equal(t, float64(3), all[3].Value["qty"])
	assert.Equal(t, event.ActionRemove, all[5].Action)
	assert.Nil(t, all[5].Value)

	recent, err := j.ListLocalChanges(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "products/p4", recent[0].DBPath)
	assert.Equal(t, int64(2000), recent[1].Timestamp)
}

func TestFailures_RecordAndList(t *testing.T) {
	j := newTestJournal(t)
	ctx := t.Context()

	first := &ActionFailure{Name: "load-profile", Milestone: "logged-in", Message: "boom", Stack: "trace"}
	require.NoError(t, j.RecordFailure(ctx, first))
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.FailedAt.IsZero())

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, j.RecordFailure(ctx, &ActionFailure{Name: "warm-cache", Milestone: "connected", Message: "nope", FailedAt: at}))

	failures, err := j.ListFailures(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, "warm-cache", failures[0].Name, "newest first")
	assert.True(t, at.Equal(failures[0].FailedAt))
	assert.Equal(t, "trace", failures[1].Stack)
}

func TestSnapshots_RoundTrip(t *testing.T) {
	j := newTestJournal(t)
	ctx := t.Context()

	products := tree.State{"all": []event.Record{{"id": "a", "name": "X"}}}
	me := tree.State{"id": "u1", "name": "Ada"}

	require.NoError(t, j.SaveSnapshot(ctx, "products", products))
	require.NoError(t, j.SaveSnapshot(ctx, "me", me))

	got, err := j.LoadSnapshot(ctx, "products")
	require.NoError(t, err)
	list := tree.List(got, "all")
	require.Len(t, list, 1)
	assert.Equal(t, "X", list[0]["name"])

	me["name"] = "Lovelace"
	require.NoError(t, j.SaveSnapshot(ctx, "me", me))

	all, err := j.LoadSnapshots(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "Lovelace", all["me"]["name"])
}

func TestLoadSnapshot_NotFound(t *testing.T) {
	j := newTestJournal(t)

	_, err := j.LoadSnapshot(t.Context(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}
