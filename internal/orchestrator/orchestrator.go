// ABOUTME: Orchestrator connects, watches auth state and fires lifecycle milestones
// ABOUTME: Owns the change-stream subscription that feeds the reconcile engine

package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/2389/treesync/internal/backend"
	"github.com/2389/treesync/internal/connection"
	"github.com/2389/treesync/internal/event"
	"github.com/2389/treesync/internal/journal"
	"github.com/2389/treesync/internal/lifecycle"
	"github.com/2389/treesync/internal/metrics"
	"github.com/2389/treesync/internal/notify"
	"github.com/2389/treesync/internal/reconcile"
	"github.com/2389/treesync/internal/state"
	"github.com/2389/treesync/internal/syncerr"
)

// Orchestrator coordinates one connection and its auth session.
type Orchestrator struct {
	conn        *connection.Manager
	engine      *reconcile.Engine
	state       *state.Plugin
	queue       *lifecycle.Queue
	journal     journal.Journal
	metrics     *metrics.Metrics
	routeChange bool
	logger      *slog.Logger

	mu          sync.Mutex
	watchDB     backend.DB
	stopWatch   func()
	followAuth  bool
	authDB      backend.DB
	unsubscribe func()
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithQueue uses q instead of a fresh lifecycle queue.
func WithQueue(q *lifecycle.Queue) Option {
	return func(o *Orchestrator) { o.queue = q }
}

// WithJournal records every failed lifecycle action in j.
func WithJournal(j journal.Journal) Option {
	return func(o *Orchestrator) { o.journal = j }
}

// WithMetrics counts lifecycle action outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithRouteChange enables the route-changed milestone.
func WithRouteChange(enabled bool) Option {
	return func(o *Orchestrator) { o.routeChange = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an orchestrator.
func New(conn *connection.Manager, engine *reconcile.Engine, st *state.Plugin, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		conn:   conn,
		engine: engine,
		state:  st,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "orchestrator")
	if o.queue == nil {
		o.queue = lifecycle.NewQueue(o.logger)
	}
	if o.journal != nil {
		o.queue.OnFailure(o.recordFailure)
	}
	return o
}

// Queue returns the lifecycle queue.
func (o *Orchestrator) Queue() *lifecycle.Queue { return o.queue }

// State returns the connection and auth state.
func (o *Orchestrator) State() *state.Plugin { return o.state }

// Register queues a lifecycle action.
func (o *Orchestrator) Register(a lifecycle.Action) error {
	if err := o.queue.Register(a); err != nil {
		o.report(err)
		return err
	}
	return nil
}

// Connect opens the database described by cfg, makes it the default handle
// when none is set and fires the connected milestone. Asking again with an
// equal configuration returns the live handle without a new handshake and
// without firing the milestone again, unless the earlier attempt failed to
// subscribe to the change stream. A new handle also takes over the auth
// subscription when WatchAuthChanges was called.
func (o *Orchestrator) Connect(ctx context.Context, cfg *backend.Config) (backend.DB, error) {
	if cfg == nil {
		err := syncerr.NotAllowed("connecting requires a database configuration")
		o.report(err)
		return nil, err
	}

	o.state.Commit(notify.Configuring, cfg.Clone())
	o.state.Commit(notify.Connecting, nil)

	prev := o.conn.Current()
	db, err := o.conn.Database(ctx, cfg)
	if err != nil {
		cerr := syncerr.Connection(err)
		o.logger.Error("connection failed", "name", cfg.Name, "error", err)
		o.state.Commit(notify.ConnectionError, cerr)
		o.report(cerr)
		return nil, cerr
	}

	o.conn.SetDefaultIfUnset(db)
	o.state.Commit(notify.Connected, nil)

	o.mu.Lock()
	watching := o.watchDB == db
	resubscribe := o.followAuth && o.authDB != db
	o.mu.Unlock()

	if db == prev && watching {
		o.logger.Debug("connection reused", "name", cfg.Name)
		return db, nil
	}

	if err := o.watch(ctx, db); err != nil {
		o.report(err)
		return nil, err
	}

	o.run(ctx, lifecycle.MilestoneConnected, o.eventContext(db))
	if resubscribe {
		o.subscribeAuth(ctx)
	}
	return db, nil
}

// watch routes db's change stream into the engine, replacing any earlier
// subscription.
func (o *Orchestrator) watch(ctx context.Context, db backend.DB) error {
	applyCtx := context.WithoutCancel(ctx)
	stop, err := db.Watch(ctx, func(ev event.Event) {
		if err := o.engine.Apply(applyCtx, ev); err != nil {
			o.logger.Warn("applying change event", "kind", ev.Kind, "key", ev.Key, "error", err)
		}
	})
	if err != nil {
		return syncerr.Connection(err)
	}

	o.mu.Lock()
	prevStop := o.stopWatch
	o.watchDB, o.stopWatch = db, stop
	o.mu.Unlock()

	if prevStop != nil {
		prevStop()
	}
	return nil
}

// AnonymousLogin signs in anonymously unless a session already exists and
// returns the signed-in user.
func (o *Orchestrator) AnonymousLogin(ctx context.Context) (*backend.User, error) {
	auth, err := o.auth(ctx)
	if err != nil {
		o.report(err)
		return nil, err
	}

	if u := auth.CurrentUser(); u != nil {
		o.logger.Debug("session already established", "uid", u.UID, "anonymous", u.IsAnonymous)
		o.state.Commit(notify.UserLoggedIn, u)
		return u, nil
	}

	cred, err := auth.SignInAnonymously(ctx)
	if err != nil {
		o.report(err)
		return nil, err
	}
	o.state.Commit(notify.UserLoggedIn, cred.User)
	o.logger.Info("signed in anonymously", "uid", cred.User.UID)
	return cred.User, nil
}

// WatchAuthChanges follows the backend's auth state, now and on every
// connection Connect opens later. Every notification, the first one
// included, commits the user and fires logged-in or logged-out. Setup
// failures are logged and otherwise ignored.
func (o *Orchestrator) WatchAuthChanges(ctx context.Context) {
	o.mu.Lock()
	o.followAuth = true
	o.mu.Unlock()

	o.subscribeAuth(ctx)
}

// subscribeAuth moves the auth subscription to the live connection.
func (o *Orchestrator) subscribeAuth(ctx context.Context) {
	db, err := o.conn.Database(ctx, nil)
	if err != nil {
		o.logger.Error("watching auth changes", "error", err)
		return
	}
	auth, err := db.Auth(ctx)
	if err != nil {
		o.logger.Error("watching auth changes", "error", err)
		return
	}

	runCtx := context.WithoutCancel(ctx)
	unsubscribe, err := auth.OnAuthStateChanged(func(u *backend.User) {
		o.authChanged(runCtx, u)
	})
	if err != nil {
		o.logger.Error("subscribing to auth changes", "error", err)
		return
	}

	o.mu.Lock()
	prev := o.unsubscribe
	o.unsubscribe, o.authDB = unsubscribe, db
	o.mu.Unlock()

	if prev != nil {
		prev()
	}
}

func (o *Orchestrator) authChanged(ctx context.Context, u *backend.User) {
	ec := o.eventContext(o.conn.Current()).WithUser(u)
	if u != nil {
		o.state.Commit(notify.UserLoggedIn, u)
		o.run(ctx, lifecycle.MilestoneLoggedIn, ec)
		return
	}
	o.state.Commit(notify.UserLoggedOut, nil)
	o.run(ctx, lifecycle.MilestoneLoggedOut, ec)
}

// WatchRouteChanges fires route-changed. Call it on every navigation; it
// does nothing and reports false unless route changes are enabled.
func (o *Orchestrator) WatchRouteChanges(ctx context.Context) (lifecycle.Result, bool) {
	if !o.routeChange {
		return lifecycle.Result{}, false
	}
	u := o.currentProfile()
	ec := o.eventContext(o.conn.Current()).WithUser(u)
	return o.run(ctx, lifecycle.MilestoneRouteChanged, ec), true
}

func (o *Orchestrator) run(ctx context.Context, m lifecycle.Milestone, ec lifecycle.EventContext) lifecycle.Result {
	res := o.queue.Run(ctx, m, ec)
	o.metrics.LifecyclePass(m.String(), len(res.Actions), len(res.Failed))
	return res
}

// Close drops the subscriptions and the connection.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	stop, unsubscribe := o.stopWatch, o.unsubscribe
	o.stopWatch, o.unsubscribe, o.watchDB, o.authDB = nil, nil, nil, nil
	o.mu.Unlock()

	if stop != nil {
		stop()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	return o.conn.Close()
}

func (o *Orchestrator) eventContext(db backend.DB) lifecycle.EventContext {
	return lifecycle.EventContext{
		Cache:    o.engine.Cache(),
		DB:       db,
		Commit:   o.state,
		Dispatch: o.engine,
	}
}

// auth returns the auth capability of the live connection.
func (o *Orchestrator) auth(ctx context.Context) (backend.Auth, error) {
	db, err := o.conn.Database(ctx, nil)
	if err != nil {
		return nil, err
	}
	return db.Auth(ctx)
}

func (o *Orchestrator) currentProfile() *backend.User {
	cu := o.state.CurrentUser()
	if cu == nil {
		return nil
	}
	return cu.FullProfile
}

// report publishes err as an error notification.
func (o *Orchestrator) report(err error) {
	code := string(syncerr.CodeOf(err))
	if code == "" {
		code = "backend-error"
	}
	o.state.Commit(notify.Error, notify.ErrorPayload{Message: err.Error(), Code: code})
}

func (o *Orchestrator) recordFailure(a lifecycle.Action) {
	f := &journal.ActionFailure{
		Name:      a.Name,
		Milestone: a.On.String(),
		Message:   a.Err,
		Stack:     a.ErrStack,
		FailedAt:  a.FailedAt,
	}
	if err := o.journal.RecordFailure(context.Background(), f); err != nil {
		o.logger.Warn("journaling action failure", "name", a.Name, "error", err)
	}
}
