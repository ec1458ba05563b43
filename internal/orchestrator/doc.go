// Package orchestrator is the boundary between the application and the
// backend collaborator. It connects, signs in, follows auth-state changes and
// routes the backend's change stream into the reconcile engine. Operations
// the caller awaits report failures through the error notification and then
// return them; the auth-state subscription only logs.
package orchestrator
