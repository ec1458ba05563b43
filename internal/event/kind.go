// ABOUTME: Closed enumeration of change kinds with per-kind descriptors
// ABOUTME: Text encoding uses the wire names (e.g. SERVER_ADD)

package event

import (
	"fmt"
)

// Kind identifies the origin and operation of a change event.
type Kind uint8

const (
	KindInvalid Kind = iota

	// client originated
	KindAddedLocally
	KindChangedLocally
	KindRemovedLocally

	KindRelationshipAddedLocally
	KindRelationshipRemovedLocally
	KindRelationshipSetLocally

	KindRelationshipAddConfirmation
	KindRelationshipRemovedConfirmation
	KindRelationshipSetConfirmation

	KindRelationshipAddRollback
	KindRelationshipRemovedRollback
	KindRelationshipSetRollback

	// client originated, answered by the server
	KindServerAddConfirm
	KindServerChangeConfirm
	KindServerRemoveConfirm

	KindServerAddRollback
	KindServerChangeRollback
	KindServerRemoveRollback

	// server originated
	KindServerAdd
	KindServerChange
	KindServerRemove

	// record watch notifications
	KindRecordAdded
	KindRecordChanged
	KindRecordRemoved

	kindCount
)

// NumMutations is the number of CRUD kinds. Kinds in [1, NumMutations] name a mutation.
const NumMutations = int(KindServerRemove)

// Origin says which side started a change.
type Origin uint8

const (
	OriginLocal Origin = iota + 1
	OriginServer
)

// Phase says where in the optimistic write cycle a change sits.
type Phase uint8

const (
	PhaseOptimistic Phase = iota + 1 // applied locally, not yet acknowledged
	PhaseConfirm                     // server accepted a local change
	PhaseRollback                    // server rejected a local change
	PhaseServer                      // server pushed a change nobody here made
	PhaseWatch                       // raw record-watch notification
)

// Op is the operation a change performs.
type Op uint8

const (
	OpAdd Op = iota + 1
	OpChange
	OpRemove
	OpSet
)

type descriptor struct {
	name         string
	origin       Origin
	phase        Phase
	op           Op
	relationship bool
}

var descriptors = [kindCount]descriptor{
	KindAddedLocally:   {"ADDED_LOCALLY", OriginLocal, PhaseOptimistic, OpAdd, false},
	KindChangedLocally: {"CHANGED_LOCALLY", OriginLocal, PhaseOptimistic, OpChange, false},
	KindRemovedLocally: {"REMOVED_LOCALLY", OriginLocal, PhaseOptimistic, OpRemove, false},

	KindRelationshipAddedLocally:   {"RELATIONSHIP_ADDED_LOCALLY", OriginLocal, PhaseOptimistic, OpAdd, true},
	KindRelationshipRemovedLocally: {"RELATIONSHIP_REMOVED_LOCALLY", OriginLocal, PhaseOptimistic, OpRemove, true},
	KindRelationshipSetLocally:     {"RELATIONSHIP_SET_LOCALLY", OriginLocal, PhaseOptimistic, OpSet, true},

	KindRelationshipAddConfirmation:     {"RELATIONSHIP_ADDED_CONFIRMATION", OriginLocal, PhaseConfirm, OpAdd, true},
	KindRelationshipRemovedConfirmation: {"RELATIONSHIP_REMOVED_CONFIRMATION", OriginLocal, PhaseConfirm, OpRemove, true},
	KindRelationshipSetConfirmation:     {"RELATIONSHIP_SET_CONFIRMATION", OriginLocal, PhaseConfirm, OpSet, true},

	KindRelationshipAddRollback:     {"RELATIONSHIP_ADDED_ROLLBACK", OriginLocal, PhaseRollback, OpAdd, true},
	KindRelationshipRemovedRollback: {"RELATIONSHIP_REMOVED_ROLLBACK", OriginLocal, PhaseRollback, OpRemove, true},
	KindRelationshipSetRollback:     {"RELATIONSHIP_SET_ROLLBACK", OriginLocal, PhaseRollback, OpSet, true},

	KindServerAddConfirm:    {"ADD_CONFIRMATION", OriginLocal, PhaseConfirm, OpAdd, false},
	KindServerChangeConfirm: {"CHANGE_CONFIRMATION", OriginLocal, PhaseConfirm, OpChange, false},
	KindServerRemoveConfirm: {"REMOVE_CONFIRMATION", OriginLocal, PhaseConfirm, OpRemove, false},

	KindServerAddRollback:    {"ROLLBACK_ADD", OriginLocal, PhaseRollback, OpAdd, false},
	KindServerChangeRollback: {"ROLLBACK_CHANGE", OriginLocal, PhaseRollback, OpChange, false},
	KindServerRemoveRollback: {"ROLLBACK_REMOVE", OriginLocal, PhaseRollback, OpRemove, false},

	KindServerAdd:    {"SERVER_ADD", OriginServer, PhaseServer, OpAdd, false},
	KindServerChange: {"SERVER_CHANGE", OriginServer, PhaseServer, OpChange, false},
	KindServerRemove: {"SERVER_REMOVE", OriginServer, PhaseServer, OpRemove, false},

	KindRecordAdded:   {"RECORD_ADDED", OriginServer, PhaseWatch, OpAdd, false},
	KindRecordChanged: {"RECORD_CHANGED", OriginServer, PhaseWatch, OpChange, false},
	KindRecordRemoved: {"RECORD_REMOVED", OriginServer, PhaseWatch, OpRemove, false},
}

var byName = func() map[string]Kind {
	m := make(map[string]Kind, kindCount)
	for k := KindInvalid + 1; k < kindCount; k++ {
		m[descriptors[k].name] = k
	}
	return m
}()

// Kinds returns every valid kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount-1)
	for k := KindInvalid + 1; k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// ParseKind resolves a wire name such as "SERVER_ADD".
func ParseKind(s string) (Kind, error) {
	k, ok := byName[s]
	if !ok {
		return KindInvalid, fmt.Errorf("unknown change kind %q", s)
	}
	return k, nil
}

// Valid reports whether k is a declared kind.
func (k Kind) Valid() bool {
	return k > KindInvalid && k < kindCount
}

// IsMutation reports whether k names a cache mutation.
func (k Kind) IsMutation() bool {
	return k.Valid() && int(k) <= NumMutations
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return descriptors[k].name
}

func (k Kind) desc() descriptor {
	if !k.Valid() {
		return descriptor{}
	}
	return descriptors[k]
}

func (k Kind) Origin() Origin     { return k.desc().origin }
func (k Kind) Phase() Phase       { return k.desc().phase }
func (k Kind) Op() Op             { return k.desc().op }
func (k Kind) Relationship() bool { return k.desc().relationship }

// ServerKind maps a record-watch kind onto the server CRUD kind that applies it.
// Other kinds are returned unchanged.
func (k Kind) ServerKind() Kind {
	switch k {
	case KindRecordAdded:
		return KindServerAdd
	case KindRecordChanged:
		return KindServerChange
	case KindRecordRemoved:
		return KindServerRemove
	default:
		return k
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("cannot encode invalid change kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
