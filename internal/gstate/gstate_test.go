// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package gstate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/march/internal/errs"
	"github.com/kraklabs/march/internal/objects"
)

func TestRead_UnsetNameIsNotFound(t *testing.T) {
	s := New()
	_, err := s.Read("counter")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.NotFound))
}

func TestWriteThenRead(t *testing.T) {
	s := New()
	s.Write("counter", objects.I64Value(7))

	v, err := s.Read("counter")
	require.NoError(t, err)
	assert.Equal(t, objects.I64Value(7), v)
}

func TestSnapshotIsAPlainCopy(t *testing.T) {
	s := New()
	s.Write("counter", objects.I64Value(1))

	snap := s.Snapshot()
	s.Write("counter", objects.I64Value(2))

	assert.Equal(t, objects.I64Value(1), snap.Entries["counter"], "snapshot must not observe later writes")

	v, err := s.Read("counter")
	require.NoError(t, err)
	assert.Equal(t, objects.I64Value(2), v)
}

func TestRestore_ReplacesEntireMap(t *testing.T) {
	s := New()
	s.Write("a", objects.I64Value(1))
	s.Write("b", objects.I64Value(2))

	s.Restore(objects.GlobalState{Entries: map[string]objects.Value{"c": objects.I64Value(3)}})

	_, err := s.Read("a")
	assert.Error(t, err, "restore replaces rather than merges")

	v, err := s.Read("c")
	require.NoError(t, err)
	assert.Equal(t, objects.I64Value(3), v)
}

func TestConcurrentReadsDoNotRace(t *testing.T) {
	s := New()
	s.Write("x", objects.I64Value(42))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Read("x")
		}()
	}
	wg.Wait()
}
