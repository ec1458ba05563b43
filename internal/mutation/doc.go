// Package mutation routes classified change events to cache mutations and
// holds the mutation table.
//
// Every CRUD kind names exactly one mutation. Route decides whether the
// mutation runs at all, which subtree receives it and whether it targets a
// record root or a list offset. Apply runs the mutation against a subtree.
//
// Two routing rules are special:
//
//   - SERVER_CHANGE with a nil value is suppressed. The backend reports a
//     removal through both a change and a remove notification; only the
//     remove is applied.
//   - SERVER_REMOVE on a record node empties the record root instead of
//     removing a list entry.
//
// Confirmations reconcile to the server's value when one is carried.
// Rollbacks undo the optimistic write: a rolled back add is removed, a
// rolled back change or remove restores the prior value carried by the event.
package mutation
