// Package state holds the connection and auth slice of the cache layer and
// the commit primitive that mutates it.
//
// Commit is the single write path: it applies the named mutation to the
// slice under a lock and then publishes the matching notification, so a
// reader never observes a half-applied sign-in or sign-out.
package state
