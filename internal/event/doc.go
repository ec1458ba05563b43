// Package event defines the change-event envelope delivered by the backend
// and the closed set of change kinds the cache understands.
//
// # Kinds
//
// Kind is a closed enumeration. The first block of values are CRUD kinds,
// each of which names exactly one cache mutation:
//
//   - client-local: ADDED_LOCALLY, CHANGED_LOCALLY, REMOVED_LOCALLY
//   - relationship local/confirm/rollback for added, removed and set
//   - server confirmations and rollbacks of add, change and remove
//   - server-originated: SERVER_ADD, SERVER_CHANGE, SERVER_REMOVE
//
// The remaining values (RECORD_ADDED, RECORD_CHANGED, RECORD_REMOVED) are
// record-watch kinds. They are not mutations themselves; ServerKind maps
// them onto their server CRUD counterpart.
//
// Every kind has a fixed descriptor (origin, phase, operation) so callers
// switch on properties instead of comparing strings.
//
// # Local changes
//
// Project flattens a client-local event into a LocalChange, the UI-friendly
// record of an optimistic write that has not been confirmed yet.
package event
