// ABOUTME: Context bundle handed to every lifecycle callback
// ABOUTME: Exposes cache, connection, commit/dispatch and the user's auth facts

package lifecycle

import (
	"context"

	"github.com/2389/treesync/internal/backend"
	"github.com/2389/treesync/internal/event"
	"github.com/2389/treesync/internal/notify"
	"github.com/2389/treesync/internal/tree"
)

// Committer records a state mutation and emits the matching notification.
type Committer interface {
	Commit(name notify.Name, payload any)
}

// CommitFunc adapts a function to Committer.
type CommitFunc func(name notify.Name, payload any)

func (f CommitFunc) Commit(name notify.Name, payload any) { f(name, payload) }

// Dispatcher applies a change event to the cache.
type Dispatcher interface {
	Apply(ctx context.Context, ev event.Event) error
}

// EventContext is passed to callbacks.
type EventContext struct {
	Milestone Milestone

	// Cache gives read access to records and lists and lets callbacks
	// merge through Dispatch.
	Cache    *tree.Cache
	DB       backend.DB // nil before the first connection
	Commit   Committer
	Dispatch Dispatcher

	// Set for logged-in and logged-out; zero values when signed out.
	UID           string
	Email         string
	IsAnonymous   bool
	EmailVerified bool
}

// WithUser returns a copy of ec carrying the user's auth facts. A nil user
// clears them.
func (ec EventContext) WithUser(u *backend.User) EventContext {
	if u == nil {
		ec.UID, ec.Email, ec.IsAnonymous, ec.EmailVerified = "", "", false, false
		return ec
	}
	ec.UID = u.UID
	ec.Email = u.Email
	ec.IsAnonymous = u.IsAnonymous
	ec.EmailVerified = u.EmailVerified
	return ec
}
