// Package pending tracks optimistic local changes until the server confirms
// or rolls them back, bounded by a TTL and a maximum size.
package pending
