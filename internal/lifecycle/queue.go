// ABOUTME: Lifecycle queue: registration and per-milestone sequential draining
// ABOUTME: Failures are annotated on the action and reported without stopping the pass

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/2389/treesync/internal/notify"
	"github.com/2389/treesync/internal/syncerr"
)

// Callback is a deferred unit of work.
type Callback func(ctx context.Context, ec EventContext) error

// Action is a registered callback. Err, ErrStack and FailedAt describe the
// most recent failed run and are cleared by a later successful run.
type Action struct {
	Name     string
	On       Milestone
	Callback Callback

	Err      string
	ErrStack string
	FailedAt time.Time
}

// Result summarizes one drain pass.
type Result struct {
	Milestone Milestone
	Actions   []string // every selected action, in run order
	Failed    []string
}

// FailureHook observes every failed run. It receives a copy of the annotated action.
type FailureHook func(Action)

// Queue holds the registered actions.
type Queue struct {
	mu        sync.Mutex
	actions   []*Action
	onFailure FailureHook
	logger    *slog.Logger
}

// NewQueue creates an empty queue. Pass nil logger for default.
func NewQueue(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{logger: logger.With("component", "lifecycle")}
}

// OnFailure sets the hook called after each failed callback.
func (q *Queue) OnFailure(hook FailureHook) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onFailure = hook
}

// Register appends an action. It stays registered for the life of the queue.
func (q *Queue) Register(a Action) error {
	if a.Name == "" {
		return syncerr.NotAllowed("lifecycle action requires a name")
	}
	if !a.On.Valid() {
		return syncerr.NotAllowed("lifecycle action %q has an unknown milestone", a.Name)
	}
	if a.Callback == nil {
		return syncerr.NotAllowed("lifecycle action %q has no callback", a.Name)
	}

	a.Err, a.ErrStack, a.FailedAt = "", "", time.Time{}

	q.mu.Lock()
	q.actions = append(q.actions, &a)
	q.mu.Unlock()

	q.logger.Debug("action registered", "name", a.Name, "on", a.On.String())
	return nil
}

// Actions returns copies of all registered actions in registration order.
func (q *Queue) Actions() []Action {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Action, len(q.actions))
	for i, a := range q.actions {
		out[i] = *a
	}
	return out
}

// Failed returns copies of the actions whose latest run failed.
func (q *Queue) Failed() []Action {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Action
	for _, a := range q.actions {
		if a.Err != "" {
			out = append(out, *a)
		}
	}
	return out
}

// Run drains every action tagged with m, one after another.
func (q *Queue) Run(ctx context.Context, m Milestone, ec EventContext) Result {
	ec.Milestone = m
	commit := ec.Commit
	if commit == nil {
		commit = CommitFunc(func(notify.Name, any) {})
	}

	q.mu.Lock()
	var selected []*Action
	for _, a := range q.actions {
		if a.On == m {
			selected = append(selected, a)
		}
	}
	hook := q.onFailure
	q.mu.Unlock()

	result := Result{Milestone: m, Actions: make([]string, 0, len(selected))}

	for _, a := range selected {
		result.Actions = append(result.Actions, a.Name)

		stack, err := invoke(ctx, a.Callback, ec)
		if err == nil {
			q.mu.Lock()
			a.Err, a.ErrStack, a.FailedAt = "", "", time.Time{}
			q.mu.Unlock()
			continue
		}

		result.Failed = append(result.Failed, a.Name)

		q.mu.Lock()
		a.Err = err.Error()
		a.ErrStack = stack
		a.FailedAt = time.Now()
		snapshot := *a
		q.mu.Unlock()

		q.logger.Error("lifecycle action failed",
			"name", a.Name,
			"on", m.String(),
			"error", err)

		commit.Commit(notify.Error, notify.ErrorPayload{
			Message: err.Error(),
			Code:    errorCode(err),
			Stack:   stack,
		})
		if hook != nil {
			hook(snapshot)
		}
	}

	commit.Commit(notify.LifecycleEventCompleted, notify.LifecycleCompleted{
		Event:   m.String(),
		Actions: result.Actions,
	})
	return result
}

// invoke runs cb, turning a panic into an error. The stack comes from the
// panic site or from a pkg/errors stack trace carried by the error.
func invoke(ctx context.Context, cb Callback, ec EventContext) (stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			stack = string(debug.Stack())
		}
	}()

	if err = cb(ctx, ec); err != nil {
		stack = stackOf(err)
	}
	return stack, err
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

func stackOf(err error) string {
	var st stackTracer
	if errors.As(err, &st) {
		return fmt.Sprintf("%+v", st.StackTrace())
	}
	return ""
}

func errorCode(err error) string {
	if code := syncerr.CodeOf(err); code != "" {
		return string(code)
	}
	return fmt.Sprintf("%T", err)
}
