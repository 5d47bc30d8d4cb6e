// Package state provides the run-scoped, write-once store that carries step
// outputs to downstream input bindings.
package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/plan"
)

// ErrKeyExists indicates a second write to a state key.
var ErrKeyExists = errors.New("state key already written")

// Entry is one materialized output.
type Entry struct {
	Key       string `json:"key"`
	Value     any    `json:"value"`
	WrittenBy string `json:"written_by"`
}

// MissingInputError indicates a binding that references a key no step has
// written, typically because its producer failed under on_error: continue.
type MissingInputError struct {
	// Input is the binding name on the reading node.
	Input string
	// Key is the missing state key.
	Key string
}

// Error implements the error interface.
func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing input binding %q: state key %q was never written", e.Input, e.Key)
}

// Store is an append-only map from state key to output.
// It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewStore creates an empty store. Use one store per run.
func NewStore() *Store {
	return &Store{entries: make(map[string]Entry)}
}

// Put writes key once. A second write returns ErrKeyExists and leaves the
// first value in place.
func (s *Store) Put(key, nodeID string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[key]; ok {
		return fmt.Errorf("%w: %q by %q", ErrKeyExists, key, prev.WrittenBy)
	}
	s.entries[key] = Entry{Key: key, Value: value, WrittenBy: nodeID}
	return nil
}

// Get returns the entry for key.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	return e, ok
}

// Len returns the number of written keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns every entry sorted by key.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Resolve materializes a node's input bindings. Literals pass through;
// state references are read from the store.
func (s *Store) Resolve(bindings []plan.Binding) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inputs := make(map[string]any, len(bindings))
	for _, b := range bindings {
		if !b.IsStateRef() {
			inputs[b.Name] = b.Value
			continue
		}
		e, ok := s.entries[b.StateKey]
		if !ok {
			return nil, &MissingInputError{Input: b.Name, Key: b.StateKey}
		}
		inputs[b.Name] = e.Value
	}
	return inputs, nil
}
