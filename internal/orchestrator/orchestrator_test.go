// ABOUTME: Tests for the orchestrator against the in-memory backend
// ABOUTME: Covers connect reuse, auth milestones, route changes and auth actions

package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/treesync/internal/backend"
	"github.com/2389/treesync/internal/backend/memory"
	"github.com/2389/treesync/internal/connection"
	"github.com/2389/treesync/internal/event"
	"github.com/2389/treesync/internal/journal"
	"github.com/2389/treesync/internal/lifecycle"
	"github.com/2389/treesync/internal/metrics"
	"github.com/2389/treesync/internal/notify"
	"github.com/2389/treesync/internal/reconcile"
	"github.com/2389/treesync/internal/state"
	"github.com/2389/treesync/internal/syncerr"
	"github.com/2389/treesync/internal/tree"
)

type fixture struct {
	backend *memory.Backend
	cache   *tree.Cache
	state   *state.Plugin
	orch    *Orchestrator
}

func newFixture(t *testing.T, b *memory.Backend, opts ...Option) *fixture {
	t.Helper()
	cache := tree.NewCache(nil, nil)
	st := state.New(nil, nil)
	engine := reconcile.New(cache, reconcile.WithCommitter(st))
	o := New(connection.NewManager(b, nil), engine, st, opts...)
	t.Cleanup(func() { o.Close() })
	return &fixture{backend: b, cache: cache, state: st, orch: o}
}

func testConfig() *backend.Config {
	return &backend.Config{Name: "local", ProjectID: "demo", Options: map[string]string{"region": "us"}}
}

func counter(n *int) lifecycle.Callback {
	return func(context.Context, lifecycle.EventContext) error {
		*n++
		return nil
	}
}

func TestConnect_NilConfigIsNotAllowed(t *testing.T) {
	f := newFixture(t, memory.New())

	_, err := f.orch.Connect(t.Context(), nil)

	assert.True(t, syncerr.Is(err, syncerr.CodeNotAllowed))
	snap := f.state.Snapshot()
	require.NotNil(t, snap.LastError)
	assert.Equal(t, "not-allowed", snap.LastError.Code)
	assert.Zero(t, f.backend.Connects())
}

func TestConnect_EqualConfigReusesHandle(t *testing.T) {
	f := newFixture(t, memory.New())
	connected := 0
	require.NoError(t, f.orch.Register(lifecycle.Action{Name: "warm", On: lifecycle.MilestoneConnected, Callback: counter(&connected)}))

	first, err := f.orch.Connect(t.Context(), testConfig())
	require.NoError(t, err)
	second, err := f.orch.Connect(t.Context(), testConfig())
	require.NoError(t, err)

	assert.Same(t, first.(*memory.DB), second.(*memory.DB))
	assert.Equal(t, 1, f.backend.Connects())
	assert.Equal(t, 1, connected)
	assert.Equal(t, state.StatusConnected, f.state.Status())
}

func TestConnect_ChangedConfigReconnects(t *testing.T) {
	f := newFixture(t, memory.New())
	connected := 0
	require.NoError(t, f.orch.Register(lifecycle.Action{Name: "warm", On: lifecycle.MilestoneConnected, Callback: counter(&connected)}))

	_, err := f.orch.Connect(t.Context(), testConfig())
	require.NoError(t, err)

	changed := testConfig()
	changed.Options["region"] = "eu"
	_, err = f.orch.Connect(t.Context(), changed)
	require.NoError(t, err)

	assert.Equal(t, 2, f.backend.Connects())
	assert.Equal(t, 2, connected)
}

// refusingBackend hands out connections whose first Watch calls fail.
type refusingBackend struct {
	*memory.Backend
	refusals int
}

func (b *refusingBackend) Connect(ctx context.Context, cfg backend.Config) (backend.DB, error) {
	db, err := b.Backend.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &refusingDB{DB: db.(*memory.DB), refusals: &b.refusals}, nil
}

type refusingDB struct {
	*memory.DB
	refusals *int
}

func (d *refusingDB) Watch(ctx context.Context, fn func(event.Event)) (func(), error) {
	if *d.refusals > 0 {
		*d.refusals--
		return nil, errors.New("watch refused")
	}
	return d.DB.Watch(ctx, fn)
}

func TestConnect_RetryAfterWatchFailure(t *testing.T) {
	b := &refusingBackend{Backend: memory.New(), refusals: 1}
	cache := tree.NewCache(nil, nil)
	st := state.New(nil, nil)
	o := New(connection.NewManager(b, nil), reconcile.New(cache), st)
	t.Cleanup(func() { o.Close() })

	connected := 0
	require.NoError(t, o.Register(lifecycle.Action{Name: "warm", On: lifecycle.MilestoneConnected, Callback: counter(&connected)}))

	_, err := o.Connect(t.Context(), testConfig())
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.CodeConnectionError))
	assert.Zero(t, connected)

	db, err := o.Connect(t.Context(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, b.Connects(), "the live handle is reused")
	assert.Equal(t, 1, connected)

	db.(*refusingDB).Emit(event.Event{Kind: event.KindServerAdd, Value: event.Record{"id": "a"}, Key: "a", LocalPath: "products"})
	assert.Len(t, tree.List(cache.Get("products"), "all"), 1)
}

func TestConnect_FailureIsConnectionError(t *testing.T) {
	f := newFixture(t, memory.New(memory.WithConnectError(errors.New("handshake refused"))))

	_, err := f.orch.Connect(t.Context(), testConfig())

	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.CodeConnectionError))
	assert.Contains(t, err.Error(), "handshake refused")
	assert.Equal(t, state.StatusConnectionError, f.state.Status())
}

func TestConnect_ChangeStreamFeedsCache(t *testing.T) {
	f := newFixture(t, memory.New())
	db, err := f.orch.Connect(t.Context(), testConfig())
	require.NoError(t, err)

	db.(*memory.DB).Emit(event.Event{
		Kind: event.KindRecordAdded, Value: event.Record{"id": "a", "name": "X"}, Key: "a", LocalPath: "products",
	})

	list := tree.List(f.cache.Get("products"), "all")
	require.Len(t, list, 1)
	assert.Equal(t, "X", list[0]["name"])
}

func TestWatchAuthChanges_FiresMilestones(t *testing.T) {
	f := newFixture(t, memory.New())
	_, err := f.orch.Connect(t.Context(), testConfig())
	require.NoError(t, err)

	loggedOut := 0
	var seen lifecycle.EventContext
	require.NoError(t, f.orch.Register(lifecycle.Action{Name: "reset", On: lifecycle.MilestoneLoggedOut, Callback: counter(&loggedOut)}))
	require.NoError(t, f.orch.Register(lifecycle.Action{
		Name: "load-profile", On: lifecycle.MilestoneLoggedIn,
		Callback: func(context.Context, lifecycle.EventContext) error { return errors.New("profile service down") },
	}))
	require.NoError(t, f.orch.Register(lifecycle.Action{
		Name: "remember", On: lifecycle.MilestoneLoggedIn,
		Callback: func(_ context.Context, ec lifecycle.EventContext) error {
			seen = ec
			return nil
		},
	}))

	f.orch.WatchAuthChanges(t.Context())
	assert.Equal(t, 1, loggedOut, "first observation fires logged-out")
	assert.Equal(t, state.AuthLoggedOut, f.state.Authenticated())

	user, err := f.orch.AnonymousLogin(t.Context())
	require.NoError(t, err)

	assert.Equal(t, user.UID, seen.UID)
	assert.True(t, seen.IsAnonymous)
	assert.Equal(t, lifecycle.MilestoneLoggedIn, seen.Milestone)
	assert.NotNil(t, seen.Dispatch)

	failed := f.orch.Queue().Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "load-profile", failed[0].Name)
	assert.Equal(t, "profile service down", failed[0].Err)

	var loggedIn *notify.LifecycleCompleted
	for _, c := range f.state.Snapshot().Completions {
		if c.Event == "logged-in" {
			loggedIn = &c
		}
	}
	require.NotNil(t, loggedIn)
	assert.Equal(t, []string{"load-profile", "remember"}, loggedIn.Actions)

	require.NoError(t, f.orch.SignOut(t.Context()))
	assert.Equal(t, 2, loggedOut)
	assert.Nil(t, f.state.CurrentUser())
}

func TestWatchAuthChanges_FollowsReconnect(t *testing.T) {
	f := newFixture(t, memory.New())
	_, err := f.orch.Connect(t.Context(), testConfig())
	require.NoError(t, err)

	loggedIn, loggedOut := 0, 0
	require.NoError(t, f.orch.Register(lifecycle.Action{Name: "in", On: lifecycle.MilestoneLoggedIn, Callback: counter(&loggedIn)}))
	require.NoError(t, f.orch.Register(lifecycle.Action{Name: "out", On: lifecycle.MilestoneLoggedOut, Callback: counter(&loggedOut)}))
	f.orch.WatchAuthChanges(t.Context())
	require.Equal(t, 1, loggedOut)

	other := testConfig()
	other.ProjectID = "staging"
	_, err = f.orch.Connect(t.Context(), other)
	require.NoError(t, err)
	assert.Equal(t, 2, loggedOut, "the new connection's auth state is observed")

	_, err = f.orch.AnonymousLogin(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, loggedIn)
}

func TestWatchAuthChanges_WithoutConnectionIsSwallowed(t *testing.T) {
	f := newFixture(t, memory.New())

	assert.NotPanics(t, func() { f.orch.WatchAuthChanges(t.Context()) })
	assert.Equal(t, state.AuthUnknown, f.state.Authenticated())
}

func TestAnonymousLogin(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		f := newFixture(t, memory.New())
		_, err := f.orch.AnonymousLogin(t.Context())
		assert.True(t, syncerr.Is(err, syncerr.CodeNotReady))
	})

	t.Run("reuses existing session", func(t *testing.T) {
		f := newFixture(t, memory.New())
		_, err := f.orch.Connect(t.Context(), testConfig())
		require.NoError(t, err)

		first, err := f.orch.AnonymousLogin(t.Context())
		require.NoError(t, err)
		second, err := f.orch.AnonymousLogin(t.Context())
		require.NoError(t, err)

		assert.Equal(t, first.UID, second.UID)
		cu := f.state.CurrentUser()
		require.NotNil(t, cu)
		assert.True(t, cu.IsAnonymous)
		assert.NotEmpty(t, cu.FullProfile.IDToken)
	})
}

func TestAnonymousLogin_RecordsExistingSession(t *testing.T) {
	f := newFixture(t, memory.New())
	db, err := f.orch.Connect(t.Context(), testConfig())
	require.NoError(t, err)

	auth, err := db.Auth(t.Context())
	require.NoError(t, err)
	cred, err := auth.SignInAnonymously(t.Context())
	require.NoError(t, err)
	require.Nil(t, f.state.CurrentUser())

	user, err := f.orch.AnonymousLogin(t.Context())
	require.NoError(t, err)

	assert.Equal(t, cred.User.UID, user.UID)
	cu := f.state.CurrentUser()
	require.NotNil(t, cu)
	assert.Equal(t, cred.User.UID, cu.UID)
	assert.Equal(t, state.AuthLoggedIn, f.state.Authenticated())
}

func TestWatchRouteChanges(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, memory.New())
		ran := 0
		require.NoError(t, f.orch.Register(lifecycle.Action{Name: "track", On: lifecycle.MilestoneRouteChanged, Callback: counter(&ran)}))

		_, ok := f.orch.WatchRouteChanges(t.Context())
		assert.False(t, ok)
		assert.Zero(t, ran)
	})

	t.Run("enabled", func(t *testing.T) {
		f := newFixture(t, memory.New(), WithRouteChange(true))
		ran := 0
		require.NoError(t, f.orch.Register(lifecycle.Action{Name: "track", On: lifecycle.MilestoneRouteChanged, Callback: counter(&ran)}))

		res, ok := f.orch.WatchRouteChanges(t.Context())
		require.True(t, ok)
		assert.Equal(t, []string{"track"}, res.Actions)
		assert.Equal(t, 1, ran)
	})
}

func TestRegister_InvalidActionReported(t *testing.T) {
	f := newFixture(t, memory.New())

	err := f.orch.Register(lifecycle.Action{Name: "", On: lifecycle.MilestoneConnected})

	require.Error(t, err)
	require.NotNil(t, f.state.Snapshot().LastError)
}

func TestAuthActions_PasswordLifecycle(t *testing.T) {
	b := memory.New()
	f := newFixture(t, b)
	db, err := f.orch.Connect(t.Context(), testConfig())
	require.NoError(t, err)
	ctx := t.Context()

	user, err := f.orch.CreateUserWithEmailAndPassword(ctx, "ada@example.com", "first-pass")
	require.NoError(t, err)
	assert.Equal(t, state.AuthLoggedIn, f.state.Authenticated())
	assert.Equal(t, "ada@example.com", f.state.CurrentUser().Email)

	require.NoError(t, f.orch.SignOut(ctx))
	assert.Equal(t, state.AuthLoggedOut, f.state.Authenticated())

	_, err = f.orch.SignInWithEmailAndPassword(ctx, "ada@example.com", "wrong-pass")
	assert.ErrorIs(t, err, memory.ErrWrongPassword)
	assert.Equal(t, "backend-error", f.state.Snapshot().LastError.Code)

	require.NoError(t, f.orch.SendPasswordResetEmail(ctx, "ada@example.com", &backend.ActionCodeSettings{URL: "https://example.com/reset"}))
	auth, err := db.Auth(ctx)
	require.NoError(t, err)
	outbox := auth.(*memory.Auth).Outbox()
	require.Len(t, outbox, 1)

	email, err := f.orch.VerifyPasswordResetCode(ctx, outbox[0].Code)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", email)

	require.NoError(t, f.orch.ConfirmPasswordReset(ctx, outbox[0].Code, "second-pass"))
	again, err := f.orch.SignInWithEmailAndPassword(ctx, "ada@example.com", "second-pass")
	require.NoError(t, err)
	assert.Equal(t, user.UID, again.UID)
}

func TestAuthActions_UpdateRequiresUser(t *testing.T) {
	f := newFixture(t, memory.New())
	_, err := f.orch.Connect(t.Context(), testConfig())
	require.NoError(t, err)

	err = f.orch.UpdateEmail(t.Context(), "new@example.com")
	assert.True(t, syncerr.Is(err, syncerr.CodeNotReady))

	err = f.orch.UpdatePassword(t.Context(), "whatever")
	assert.True(t, syncerr.Is(err, syncerr.CodeNotReady))
}

func TestAuthActions_UpdateEmailAndPassword(t *testing.T) {
	f := newFixture(t, memory.New())
	_, err := f.orch.Connect(t.Context(), testConfig())
	require.NoError(t, err)
	ctx := t.Context()

	_, err = f.orch.CreateUserWithEmailAndPassword(ctx, "old@example.com", "first-pass")
	require.NoError(t, err)

	require.NoError(t, f.orch.UpdateEmail(ctx, "new@example.com"))
	cu := f.state.CurrentUser()
	assert.Equal(t, "new@example.com", cu.Email)
	assert.False(t, cu.EmailVerified)

	require.NoError(t, f.orch.UpdatePassword(ctx, "second-pass"))
	require.NoError(t, f.orch.SignOut(ctx))
	_, err = f.orch.SignInWithEmailAndPassword(ctx, "new@example.com", "second-pass")
	assert.NoError(t, err)
}

func TestJournal_RecordsActionFailures(t *testing.T) {
	j, err := journal.NewSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	f := newFixture(t, memory.New(), WithJournal(j))
	require.NoError(t, f.orch.Register(lifecycle.Action{
		Name: "seed", On: lifecycle.MilestoneConnected,
		Callback: func(context.Context, lifecycle.EventContext) error { return errors.New("seed failed") },
	}))

	_, err = f.orch.Connect(t.Context(), testConfig())
	require.NoError(t, err)

	failures, err := j.ListFailures(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "seed", failures[0].Name)
	assert.Equal(t, "connected", failures[0].Milestone)
	assert.Equal(t, "seed failed", failures[0].Message)
}

func TestMetrics_CountLifecyclePasses(t *testing.T) {
	m := metrics.New()
	f := newFixture(t, memory.New(), WithMetrics(m))
	ok := 0
	require.NoError(t, f.orch.Register(lifecycle.Action{Name: "warm", On: lifecycle.MilestoneConnected, Callback: counter(&ok)}))
	require.NoError(t, f.orch.Register(lifecycle.Action{
		Name: "seed", On: lifecycle.MilestoneConnected,
		Callback: func(context.Context, lifecycle.EventContext) error { return errors.New("seed failed") },
	}))

	_, err := f.orch.Connect(t.Context(), testConfig())
	require.NoError(t, err)

	expected := `
# HELP treesync_lifecycle_actions_total Lifecycle callbacks run, by milestone and result.
# TYPE treesync_lifecycle_actions_total counter
treesync_lifecycle_actions_total{milestone="connected",result="failed"} 1
treesync_lifecycle_actions_total{milestone="connected",result="ok"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "treesync_lifecycle_actions_total"))
}
