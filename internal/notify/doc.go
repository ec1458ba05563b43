// Package notify fans out the notifications the cache layer emits to the
// rest of the application.
//
// # Names
//
//   - configuring, connecting, connected, connection-error
//   - user-logged-in, user-logged-out, user-updated
//   - lifecycle-event-completed (payload LifecycleCompleted)
//   - error (payload ErrorPayload)
//   - cache-changed (one per merge, payload CacheChange)
//
// # Delivery
//
// Subscribers receive notifications on a buffered channel. Publish never
// blocks: a subscriber whose buffer is full misses the notification.
//
//	ch, id := b.Subscribe(ctx)
//	for n := range ch {
//		...
//	}
package notify
