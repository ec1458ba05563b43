// ABOUTME: Tree merger applying one record value to a record or list node
// ABOUTME: Returns a rebuilt State; untouched entries keep their identity

package tree

import (
	"maps"

	"github.com/2389/treesync/internal/event"
)

// MergeRecord replaces the whole record held by a record node. A nil value
// empties the node.
func MergeRecord(_ State, value event.Record) State {
	if value == nil {
		return nil
	}
	return State(value.Clone())
}

// MergeList applies value to the list held at offset. A non-nil value is
// appended when its id is new and replaces the existing entry in place
// otherwise. A nil value removes the entry whose id equals key; a missing
// entry is not an error.
func MergeList(root State, offset, key string, value event.Record) State {
	current := List(root, offset)

	id := key
	if value != nil {
		if vid, ok := value.ID(); ok {
			id = vid
		}
	}

	next := make([]event.Record, 0, len(current)+1)
	placed, matched := false, false
	for _, rec := range current {
		rid, _ := rec.ID()
		if rid != id {
			next = append(next, rec)
			continue
		}
		matched = true
		if value != nil && !placed {
			next = append(next, value)
			placed = true
		}
	}
	if value != nil && !placed {
		next = append(next, value)
	}
	if value == nil && !matched {
		return root
	}

	out := make(State, len(root)+1)
	maps.Copy(out, root)
	out[offset] = next
	return out
}

// List returns the records held at offset. Lists decoded from JSON arrive
// as []any; their map entries are converted without copying, anything that
// is not a record is skipped.
func List(root State, offset string) []event.Record {
	switch v := root[offset].(type) {
	case []event.Record:
		return v
	case []map[string]any:
		out := make([]event.Record, 0, len(v))
		for _, m := range v {
			out = append(out, event.Record(m))
		}
		return out
	case []any:
		out := make([]event.Record, 0, len(v))
		for _, item := range v {
			switch r := item.(type) {
			case event.Record:
				out = append(out, r)
			case map[string]any:
				out = append(out, event.Record(r))
			}
		}
		return out
	default:
		return nil
	}
}

// Find returns the record with the given id from the list at offset.
func Find(root State, offset, id string) (event.Record, bool) {
	for _, rec := range List(root, offset) {
		if rid, _ := rec.ID(); rid == id {
			return rec, true
		}
	}
	return nil, false
}
