// ABOUTME: The mutation table: one function per CRUD kind
// ABOUTME: Each mutation rebuilds a subtree from its state and the event payload

package mutation

import (
	"fmt"

	"github.com/2389/treesync/internal/event"
	"github.com/2389/treesync/internal/tree"
)

// mutationFunc rebuilds a subtree.
type mutationFunc func(state tree.State, ev event.Event, target tree.Target) tree.State

// table is indexed by kind. Its length is fixed by the number of CRUD kinds.
var table = [event.NumMutations + 1]mutationFunc{
	event.KindAddedLocally:   merge,
	event.KindChangedLocally: merge,
	event.KindRemovedLocally: remove,

	event.KindRelationshipAddedLocally:   restore,
	event.KindRelationshipRemovedLocally: restore,
	event.KindRelationshipSetLocally:     restore,

	event.KindRelationshipAddConfirmation:     restore,
	event.KindRelationshipRemovedConfirmation: restore,
	event.KindRelationshipSetConfirmation:     restore,

	event.KindRelationshipAddRollback:     restore,
	event.KindRelationshipRemovedRollback: restore,
	event.KindRelationshipSetRollback:     restore,

	event.KindServerAddConfirm:    restore,
	event.KindServerChangeConfirm: restore,
	event.KindServerRemoveConfirm: remove,

	event.KindServerAddRollback:    remove,
	event.KindServerChangeRollback: restore,
	event.KindServerRemoveRollback: restore,

	event.KindServerAdd:    merge,
	event.KindServerChange: merge,
	event.KindServerRemove: remove,
}

func init() {
	for k := 1; k <= event.NumMutations; k++ {
		if table[k] == nil {
			panic(fmt.Sprintf("mutation: no mutation for %s", event.Kind(k)))
		}
	}
}

// Apply runs the routed mutation against state and returns the rebuilt subtree.
func Apply(state tree.State, ev event.Event, r Route) tree.State {
	if !r.Mutation.IsMutation() {
		return state
	}
	return table[r.Mutation](state, ev, r.Target)
}

// merge writes the event value as given; a nil value removes.
func merge(state tree.State, ev event.Event, target tree.Target) tree.State {
	if target.Shape == tree.ShapeRecord {
		return tree.MergeRecord(state, ev.Value)
	}
	return tree.MergeList(state, target.Offset, ev.RecordID(), ev.Value)
}

// remove deletes the affected record regardless of any value carried.
func remove(state tree.State, ev event.Event, target tree.Target) tree.State {
	if target.Shape == tree.ShapeRecord {
		return tree.MergeRecord(state, nil)
	}
	return tree.MergeList(state, target.Offset, ev.RecordID(), nil)
}

// restore writes the event value when there is one and leaves state alone otherwise.
func restore(state tree.State, ev event.Event, target tree.Target) tree.State {
	if ev.Value == nil {
		return state
	}
	return merge(state, ev, target)
}
