// Package lifecycle runs deferred callbacks when connection and auth
// milestones occur.
//
// # Milestones
//
//   - connected: once after a successful database connection
//   - logged-in, logged-out: on every observed auth transition, including
//     the first observation
//   - route-changed: on each navigation, when enabled by configuration
//
// # Draining
//
// Run selects every registered action tagged with the milestone, in
// registration order, and awaits each callback in turn. A failing callback
// (returned error or panic) gets its message and stack attached to its
// Action, an error notification is committed, and the pass continues.
// After the pass a single lifecycle-event-completed notification lists the
// names of every selected action.
//
// Actions are never removed. A failed action keeps its annotation until a
// later run of the same action overwrites it, so repeated failures do not
// grow the queue.
package lifecycle
