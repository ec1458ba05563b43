// ABOUTME: JSON merge patches between two states of a subtree
// ABOUTME: Lets consumers see what a merge changed without diffing by hand

package tree

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"
)

// MergePatch returns the RFC 7386 merge patch turning old into next. A nil
// state is treated as an empty object. Lists are replaced wholesale, as the
// merge patch format has no notion of list entries.
func MergePatch(old, next State) ([]byte, error) {
	o, err := marshalState(old)
	if err != nil {
		return nil, err
	}
	n, err := marshalState(next)
	if err != nil {
		return nil, err
	}
	patch, err := jsonpatch.CreateMergePatch(o, n)
	if err != nil {
		return nil, fmt.Errorf("creating merge patch: %w", err)
	}
	return patch, nil
}

// ApplyPatch applies a merge patch produced by MergePatch to s.
func ApplyPatch(s State, patch []byte) (State, error) {
	doc, err := marshalState(s)
	if err != nil {
		return nil, err
	}
	out, err := jsonpatch.MergePatch(doc, patch)
	if err != nil {
		return nil, fmt.Errorf("applying merge patch: %w", err)
	}
	var next State
	if err := json.Unmarshal(out, &next); err != nil {
		return nil, fmt.Errorf("decoding patched state: %w", err)
	}
	return next, nil
}

func marshalState(s State) ([]byte, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding state: %w", err)
	}
	return b, nil
}
