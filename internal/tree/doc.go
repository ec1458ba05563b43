// Package tree holds the locally cached state tree and the primitives that
// merge change events into it.
//
// A subtree is either a record node (the subtree IS one record) or a list
// node (a named offset property holds an ordered list of records keyed by
// their "id" field). Classify decides which; MergeRecord and MergeList
// apply a value without touching unrelated entries.
//
// Merges never mutate their input. They return a rebuilt State in which
// untouched list entries are the very same maps as before, so consumers
// can detect change by identity.
//
// Cache owns the named subtrees and serializes merges so that no two
// merges interleave their read and write of the same subtree.
package tree
