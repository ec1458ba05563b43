// ABOUTME: Engine runs the classify, route and merge pipeline for one event
// ABOUTME: Optimistic local changes are tracked until confirmed or rolled back

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/treesync/internal/event"
	"github.com/2389/treesync/internal/journal"
	"github.com/2389/treesync/internal/lifecycle"
	"github.com/2389/treesync/internal/metrics"
	"github.com/2389/treesync/internal/mutation"
	"github.com/2389/treesync/internal/notify"
	"github.com/2389/treesync/internal/pending"
	"github.com/2389/treesync/internal/tree"
)

// ErrInvalidKind is returned for events whose kind is not a known change kind.
var ErrInvalidKind = errors.New("invalid event kind")

// Outcome reports what Apply did with an event.
type Outcome struct {
	Route   mutation.Route
	Applied bool // false when the event was suppressed
}

// Engine applies change events to a cache.
type Engine struct {
	cache   *tree.Cache
	tracker *pending.Tracker
	journal journal.Journal
	commit  lifecycle.Committer
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTracker records optimistic local changes in t.
func WithTracker(t *pending.Tracker) Option {
	return func(e *Engine) { e.tracker = t }
}

// WithJournal appends every optimistic local change to j.
func WithJournal(j journal.Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithCommitter publishes a cache-changed notification per applied mutation.
func WithCommitter(c lifecycle.Committer) Option {
	return func(e *Engine) { e.commit = c }
}

// WithMetrics counts applied and suppressed events in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine over cache.
func New(cache *tree.Cache, opts ...Option) *Engine {
	e := &Engine{
		cache: cache,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "reconcile")
	return e
}

// Cache returns the cache the engine writes to.
func (e *Engine) Cache() *tree.Cache {
	return e.cache
}

// Apply implements lifecycle.Dispatcher.
func (e *Engine) Apply(ctx context.Context, ev event.Event) error {
	_, err := e.ApplyEvent(ctx, ev)
	return err
}

// ApplyEvent merges ev into the subtree it targets (see event.Event.Subtree). Record-watch
// kinds are applied as their server counterparts. The merge itself cannot
// fail; the returned error reports an invalid kind or a journal write that
// failed after the merge went through.
func (e *Engine) ApplyEvent(ctx context.Context, ev event.Event) (Outcome, error) {
	if !ev.Kind.Valid() {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidKind, ev.Kind)
	}
	kind := ev.Kind.ServerKind()
	subtree := ev.Subtree()

	var out Outcome
	e.cache.UpdateIf(subtree, func(s tree.State, opts tree.Options) (tree.State, bool) {
		target := tree.Classify(s, ev, opts)
		route, ok := mutation.Resolve(ev, kind, target)
		if !ok {
			return s, false
		}
		out = Outcome{Route: route, Applied: true}
		return mutation.Apply(s, ev, route), true
	})

	if !out.Applied {
		e.logger.Debug("event suppressed", "kind", ev.Kind, "key", ev.Key, "subtree", subtree)
		e.metrics.EventSuppressed(kind.String())
	} else {
		e.logger.Debug("event applied", "mutation", out.Route.Name(), "shape", out.Route.Target.Shape, "key", ev.Key)
		e.metrics.EventApplied(kind.String(), out.Route.Target.Shape.String())
		if e.commit != nil {
			e.commit.Commit(notify.CacheChanged, notify.CacheChange{
				Subtree:  out.Route.Subtree,
				Mutation: out.Route.Name(),
			})
		}
	}

	err := e.track(ctx, ev, kind)
	if e.tracker != nil {
		e.metrics.SetPending(e.tracker.Len())
	}
	return out, err
}

// track follows the optimistic lifecycle of a local change: optimistic kinds
// open an entry, confirm and rollback kinds close it.
func (e *Engine) track(ctx context.Context, ev event.Event, kind event.Kind) error {
	switch kind.Phase() {
	case event.PhaseOptimistic:
		change := event.Project(ev, e.now())
		if e.tracker != nil {
			e.tracker.Add(change)
		}
		if e.journal != nil {
			if err := e.journal.AppendLocalChange(ctx, change); err != nil {
				return fmt.Errorf("journaling local change: %w", err)
			}
		}
	case event.PhaseConfirm, event.PhaseRollback:
		if e.tracker == nil {
			return nil
		}
		dbPath := event.Project(ev, e.now()).DBPath
		if _, ok := e.tracker.Resolve(dbPath); ok {
			e.logger.Debug("local change resolved", "db_path", dbPath, "kind", kind)
		}
	}
	return nil
}

// Pending returns the local changes still waiting on the server, oldest first.
func (e *Engine) Pending() []event.LocalChange {
	if e.tracker == nil {
		return nil
	}
	return e.tracker.Pending()
}

// Persist writes a snapshot of every populated subtree to the journal.
func (e *Engine) Persist(ctx context.Context) error {
	if e.journal == nil {
		return nil
	}
	for name, s := range e.cache.Snapshot() {
		if err := e.journal.SaveSnapshot(ctx, name, s); err != nil {
			return fmt.Errorf("persisting subtree %q: %w", name, err)
		}
	}
	return nil
}

// Restore loads every journaled snapshot into the cache.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if e.journal == nil {
		return 0, nil
	}
	snaps, err := e.journal.LoadSnapshots(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading snapshots: %w", err)
	}
	for name, s := range snaps {
		e.cache.Set(name, s)
	}
	e.logger.Info("cache restored", "subtrees", len(snaps))
	return len(snaps), nil
}
