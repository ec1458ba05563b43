// ABOUTME: Mutation router mapping (event, kind, classifier target) to a mutation route
// ABOUTME: Pure lookup; suppresses null server changes

package mutation

import (
	"github.com/2389/treesync/internal/event"
	"github.com/2389/treesync/internal/tree"
)

// Scope says where a mutation is dispatched.
type Scope uint8

const (
	ScopeSubtree Scope = iota + 1 // the subtree named by the event's local path
	ScopeRoot                     // the tree root
)

func (s Scope) String() string {
	if s == ScopeRoot {
		return "root"
	}
	return "subtree"
}

// Route is the router's decision for one event.
type Route struct {
	Mutation event.Kind
	Target   tree.Target
	Scope    Scope
	Subtree  string // tree.RootSubtree when Scope is ScopeRoot
}

// Name returns the mutation name, namespaced by subtree when dispatched to one.
func (r Route) Name() string {
	if r.Scope == ScopeRoot {
		return r.Mutation.String()
	}
	return r.Subtree + "/" + r.Mutation.String()
}

// Resolve routes ev as the given CRUD kind against the classifier's target.
// It returns false when no mutation should run: kind is not a mutation, or
// kind is SERVER_CHANGE and ev carries no value.
func Resolve(ev event.Event, kind event.Kind, target tree.Target) (Route, bool) {
	if !kind.IsMutation() {
		return Route{}, false
	}
	if kind == event.KindServerChange && ev.Value == nil {
		return Route{}, false
	}

	r := Route{
		Mutation: kind,
		Target:   target,
		Scope:    ScopeSubtree,
		Subtree:  ev.Subtree(),
	}
	if r.Subtree == tree.RootSubtree {
		r.Scope = ScopeRoot
	}
	return r, true
}
