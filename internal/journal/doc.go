// Package journal persists what the cache layer wants to survive a restart
// or be inspected afterward.
//
// # Tables
//
//   - local_changes: every projected local change, in arrival order
//   - action_failures: every failed lifecycle callback with its stack
//   - snapshots: the latest JSON snapshot of each cached subtree
//
// SQLiteJournal uses modernc.org/sqlite (pure Go, no cgo). The schema is
// created on open; parent directories are created as needed.
//
//	j, err := journal.NewSQLiteJournal(path)
//	defer j.Close()
package journal
