// Package syncerr defines the classified error kind reported by the
// connection and auth orchestrator.
//
// Every error carries a short Code tag alongside its human-readable message:
//
//   - not-ready: an operation needed a connection or signed-in user that
//     does not exist yet
//   - not-allowed: an operation was invoked without required input
//   - connection-error: the backend handshake failed
//
// Use CodeOf to recover the tag from a wrapped error chain.
package syncerr
