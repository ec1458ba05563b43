// ABOUTME: Change event envelope and the generic record shape it carries
// ABOUTME: A nil Value signals removal; Key identifies the affected record

package event

import (
	"fmt"
	"maps"
)

// IDField is the field every record uses as its identifier.
const IDField = "id"

// Record is a decoded record: field name to value.
type Record map[string]any

// ID returns the record's identifier. Non-string identifiers are formatted.
func (r Record) ID() (string, bool) {
	v, ok := r[IDField]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// Clone returns a shallow copy of the record. Nested values are shared.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// Model describes where records of one shape live, both in the backing
// database and in the local state tree.
type Model interface {
	Name() string
	DBPath(r Record) string
	LocalPath() string
}

// PathModel is a Model whose records live at <DBOffset>/<id> in the database
// and under the Local subtree in the cache.
type PathModel struct {
	ModelName string
	DBOffset  string
	Local     string
}

func (m PathModel) Name() string      { return m.ModelName }
func (m PathModel) LocalPath() string { return m.Local }

func (m PathModel) DBPath(r Record) string {
	id, _ := r.ID()
	if m.DBOffset == "" {
		return id
	}
	return m.DBOffset + "/" + id
}

// Event is the change envelope delivered by the backend.
type Event struct {
	Kind      Kind   `json:"type"`
	Value     Record `json:"value"`
	Key       string `json:"key"`
	DBPath    string `json:"dbPath"`
	LocalPath string `json:"localPath"`
	Model     Model  `json:"-"`
}

// IsRemoval reports whether the event carries no value.
func (e Event) IsRemoval() bool {
	return e.Value == nil
}

// Subtree names the cached subtree the event targets. A model wins when the
// event carries a value; otherwise the envelope's local path is used, falling
// back to the model's.
func (e Event) Subtree() string {
	if e.Model != nil && (e.Value != nil || e.LocalPath == "") {
		return e.Model.LocalPath()
	}
	return e.LocalPath
}

// RecordID returns the identifier of the affected record: the value's id
// when present, otherwise the event key.
func (e Event) RecordID() string {
	if id, ok := e.Value.ID(); ok {
		return id
	}
	return e.Key
}
