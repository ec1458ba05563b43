// ABOUTME: Flattened projection of a client-local change event
// ABOUTME: Produced once per event and never mutated afterward

package event

import "time"

// Action is the UI-facing verb of a local change.
type Action string

const (
	ActionAdd     Action = "add"
	ActionUpdate  Action = "update"
	ActionRemove  Action = "remove"
	ActionUnknown Action = "unknown"
)

// LocalChange records an optimistic local write.
type LocalChange struct {
	DBPath    string `json:"dbPath"`
	LocalPath string `json:"localPath"`
	Action    Action `json:"action"`
	Value     Record `json:"value"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// ActionFor maps a kind to its local-change action. Only the three plain
// client-local kinds have an action; everything else is unknown.
func ActionFor(k Kind) Action {
	switch k {
	case KindAddedLocally:
		return ActionAdd
	case KindChangedLocally:
		return ActionUpdate
	case KindRemovedLocally:
		return ActionRemove
	default:
		return ActionUnknown
	}
}

// Project converts ev into a LocalChange stamped with now. Paths come from
// the event's model when it has one and the event carries a value.
func Project(ev Event, now time.Time) LocalChange {
	dbPath := ev.DBPath
	if ev.Model != nil && ev.Value != nil {
		dbPath = ev.Model.DBPath(ev.Value)
	}
	return LocalChange{
		DBPath:    dbPath,
		LocalPath: ev.Subtree(),
		Action:    ActionFor(ev.Kind),
		Value:     ev.Value,
		Timestamp: now.UnixMilli(),
	}
}
