// Package reconcile is the data path between the backend's change stream and
// the cache: every event is classified against its subtree, routed to a
// mutation, and merged under the cache lock.
package reconcile
