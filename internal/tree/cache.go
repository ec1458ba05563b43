// ABOUTME: Mutex-guarded cache of named subtrees with one change callback per merge
// ABOUTME: Subtree options declare offset and shape for classification

package tree

import (
	"log/slog"
	"slices"
	"sync"
)

// RootSubtree names the tree root, the target of events without a local path.
const RootSubtree = ""

// Change describes one merge applied to a subtree.
type Change struct {
	Subtree string
	Old     State
	New     State
}

// Cache holds the cached subtrees. All merges go through UpdateIf so the read
// and the write of a subtree happen under one lock.
type Cache struct {
	mu       sync.Mutex
	subtrees map[string]State
	options  map[string]Options
	onChange func(Change)
	logger   *slog.Logger
}

// NewCache creates an empty cache. onChange, when non-nil, is called exactly
// once per applied Update, UpdateIf or Set, after the lock is released. Pass nil logger for default.
func NewCache(logger *slog.Logger, onChange func(Change)) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		subtrees: make(map[string]State),
		options:  make(map[string]Options),
		onChange: onChange,
		logger:   logger.With("component", "cache"),
	}
}

// Declare sets the classification options of a subtree.
func (c *Cache) Declare(name string, opts Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.options[name] = opts
}

// Options returns the declared options of a subtree (zero value if undeclared).
func (c *Cache) Options(name string) Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.options[name]
}

// Get returns the current state of a subtree.
func (c *Cache) Get(name string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subtrees[name]
}

// Set replaces a subtree wholesale.
func (c *Cache) Set(name string, s State) {
	c.mu.Lock()
	old := c.subtrees[name]
	c.subtrees[name] = s
	c.mu.Unlock()

	c.notify(Change{Subtree: name, Old: old, New: s})
}

// Update atomically rebuilds a subtree from its current state and options.
// It returns the new state.
func (c *Cache) Update(name string, fn func(State, Options) State) State {
	next, _ := c.UpdateIf(name, func(s State, o Options) (State, bool) {
		return fn(s, o), true
	})
	return next
}

// UpdateIf is Update where fn may decline the write by returning false. A
// declined update leaves the subtree alone and triggers no change callback.
func (c *Cache) UpdateIf(name string, fn func(State, Options) (State, bool)) (State, bool) {
	c.mu.Lock()
	old := c.subtrees[name]
	next, ok := fn(old, c.options[name])
	if !ok {
		c.mu.Unlock()
		return old, false
	}
	c.subtrees[name] = next
	c.mu.Unlock()

	c.logger.Debug("subtree merged", "subtree", name)
	c.notify(Change{Subtree: name, Old: old, New: next})
	return next, true
}

// Names returns the names of all populated subtrees, sorted.
func (c *Cache) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.subtrees))
	for name := range c.subtrees {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Snapshot returns a copy of the subtree map. The states themselves are shared.
func (c *Cache) Snapshot() map[string]State {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]State, len(c.subtrees))
	for k, v := range c.subtrees {
		out[k] = v
	}
	return out
}

func (c *Cache) notify(ch Change) {
	if c.onChange != nil {
		c.onChange(ch)
	}
}
