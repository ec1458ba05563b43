// ABOUTME: Journal interface and record types for cache-layer persistence
// ABOUTME: Local changes, lifecycle failures and subtree snapshots

package journal

import (
	"context"
	"errors"
	"time"

	"github.com/2389/treesync/internal/event"
	"github.com/2389/treesync/internal/tree"
)

// ErrNotFound is returned when a requested entry does not exist
var ErrNotFound = errors.New("not found")

// ActionFailure is one failed lifecycle callback.
type ActionFailure struct {
	ID        string
	Name      string
	Milestone string
	Message   string
	Stack     string
	FailedAt  time.Time
}

// Journal defines the persistence operations of the cache layer
type Journal interface {
	// Local changes
	AppendLocalChange(ctx context.Context, change event.LocalChange) error
	ListLocalChanges(ctx context.Context, limit int) ([]event.LocalChange, error)

	// Lifecycle failures
	RecordFailure(ctx context.Context, failure *ActionFailure) error
	ListFailures(ctx context.Context, limit int) ([]*ActionFailure, error)

	// Snapshots
	SaveSnapshot(ctx context.Context, subtree string, state tree.State) error
	LoadSnapshot(ctx context.Context, subtree string) (tree.State, error)
	LoadSnapshots(ctx context.Context) (map[string]tree.State, error)

	// Close releases any resources held by the journal
	Close() error
}
