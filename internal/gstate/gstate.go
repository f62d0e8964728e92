// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gstate holds the single, process-wide global-state map (§3,
// §4.3, §5): a name-to-Value table guarded by one reader/writer lock.
// This is the runtime singleton the interpreter's LOAD_GLOBAL node
// reads from; internal/objects.GlobalState is the separate,
// persistable snapshot codec this package serializes through.
package gstate

import (
	"sync"

	"github.com/kraklabs/march/internal/errs"
	"github.com/kraklabs/march/internal/objects"
)

// Store is the process-wide global-state map. The zero value is ready
// to use. read takes a shared lock; write and restore take an
// exclusive lock, per §5.
type Store struct {
	mu      sync.RWMutex
	entries map[string]objects.Value
}

// New returns an empty global-state store.
func New() *Store {
	return &Store{entries: make(map[string]objects.Value)}
}

// Read looks up name under a shared lock. Cancellation is not
// meaningful here: the operation never blocks on I/O (§4.3).
func (s *Store) Read(name string) (objects.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[name]
	if !ok {
		return objects.Value{}, errs.New(errs.NotFound, "gstate.Read", name)
	}
	return v, nil
}

// Write sets name to v under an exclusive lock.
func (s *Store) Write(name string, v objects.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = make(map[string]objects.Value)
	}
	s.entries[name] = v
}

// Snapshot takes a cheap, plain-copy of the current state (§4.3:
// integers, floats, text, tuples, 32-byte quotes are all cheap to
// copy) suitable for persisting via objects.GlobalState.Encode.
func (s *Store) Snapshot() objects.GlobalState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make(map[string]objects.Value, len(s.entries))
	for k, v := range s.entries {
		entries[k] = v
	}
	return objects.GlobalState{Entries: entries}
}

// Restore replaces the entire map under an exclusive lock, e.g. after
// loading an objects.GlobalState snapshot from the store.
func (s *Store) Restore(snapshot objects.GlobalState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make(map[string]objects.Value, len(snapshot.Entries))
	for k, v := range snapshot.Entries {
		entries[k] = v
	}
	s.entries = entries
}
