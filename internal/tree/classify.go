// ABOUTME: Event classifier deciding record-node vs list-node targets
// ABOUTME: Records expose their id at the subtree root; lists live at an offset

package tree

import (
	"fmt"

	"github.com/2389/treesync/internal/event"
)

// DefaultOffset is the list property used when a subtree declares none.
const DefaultOffset = "all"

// State is the root of a cached subtree.
type State map[string]any

// Shape is the form of a subtree.
type Shape uint8

const (
	ShapeAuto Shape = iota // decide from the current content
	ShapeRecord
	ShapeList
)

func (s Shape) String() string {
	switch s {
	case ShapeRecord:
		return "record"
	case ShapeList:
		return "list"
	default:
		return "auto"
	}
}

// ParseShape parses "auto", "record" or "list". The empty string is auto.
func ParseShape(s string) (Shape, error) {
	switch s {
	case "", "auto":
		return ShapeAuto, nil
	case "record":
		return ShapeRecord, nil
	case "list":
		return ShapeList, nil
	default:
		return ShapeAuto, fmt.Errorf("unknown shape %q", s)
	}
}

// Options configure how a subtree is classified.
type Options struct {
	Offset string
	Shape  Shape
}

func (o Options) offset() string {
	if o.Offset == "" {
		return DefaultOffset
	}
	return o.Offset
}

// Target is the classifier's verdict for one event.
type Target struct {
	Shape  Shape // ShapeRecord or ShapeList, never ShapeAuto
	Offset string
}

// Classify decides where ev lands in root. A declared shape wins. Otherwise
// the subtree is a record node when it carries an id field itself and does
// not hold a list at the offset; everything else is a list node. The value
// is never consulted, so removals classify the same way as writes.
func Classify(root State, ev event.Event, opts Options) Target {
	offset := opts.offset()
	switch opts.Shape {
	case ShapeRecord:
		return Target{Shape: ShapeRecord}
	case ShapeList:
		return Target{Shape: ShapeList, Offset: offset}
	}

	if _, hasID := root[event.IDField]; hasID {
		if _, hasList := root[offset]; !hasList {
			return Target{Shape: ShapeRecord}
		}
	}
	return Target{Shape: ShapeList, Offset: offset}
}
