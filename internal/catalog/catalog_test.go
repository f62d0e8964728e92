// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/march/internal/objects"
	"github.com/kraklabs/march/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "catalog"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

const sampleDoc = `
arith:
  write_log:
    !effect
    doc: "records a line to the write log"

  add_i64:
    !prim
    params: [i64, i64]
    results: [i64]
    domains: []

  log_i64:
    !prim
    params: [i64]
    results: [i64]
    effects: [arith/write_log]
    domains: [io]

  add3:
    !word
    params: [i64, i64, i64]
    results: [i64]
    body:
      - !prim arith/add_i64
      - !prim arith/add_i64

  is_positive:
    !guard
    params: []
    body:
      - !lit 0

  logged_add:
    !word
    params: [i64, i64]
    results: [i64]
    guards: [arith/is_positive]
    body:
      - !prim arith/add_i64
      - !prim arith/log_i64

initial:
  counters:
    !snapshot
    entries:
      seen: !i64 0
      label: !text "start"
`

func TestLoadBytes_ResolvesEffectsPrimsAndWordsAcrossPasses(t *testing.T) {
	st := newTestStore(t)
	l := New(st, nil)

	require.NoError(t, l.LoadBytes([]byte(sampleDoc)))

	_, ok, err := st.GetName("effect", "arith/write_log")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = st.GetName("prim", "arith/add_i64")
	require.NoError(t, err)
	assert.True(t, ok)

	wordCID, ok, err := st.GetName("word", "arith/add3")
	require.NoError(t, err)
	require.True(t, ok)

	data, err := st.LoadForKind(wordCID, objects.KindWord)
	require.NoError(t, err)
	w, err := objects.DecodeWord(data)
	require.NoError(t, err)
	assert.Len(t, w.Params, 3)
	assert.Len(t, w.Results, 1)

	_, ok, err = st.GetName("guard", "arith/is_positive")
	require.NoError(t, err)
	assert.True(t, ok)

	loggedCID, ok, err := st.GetName("word", "arith/logged_add")
	require.NoError(t, err)
	require.True(t, ok)
	data, err = st.LoadForKind(loggedCID, objects.KindWord)
	require.NoError(t, err)
	logged, err := objects.DecodeWord(data)
	require.NoError(t, err)
	assert.Len(t, logged.Guards, 1)
	assert.NotEmpty(t, logged.Effects, "logged_add's body applies an io-effectful prim")
}

func TestLoadBytes_LoadsSnapshotEntries(t *testing.T) {
	st := newTestStore(t)
	l := New(st, nil)
	require.NoError(t, l.LoadBytes([]byte(sampleDoc)))

	cid, ok, err := st.GetName("gstate", "initial/counters")
	require.NoError(t, err)
	require.True(t, ok)

	data, err := st.LoadForKind(cid, objects.KindGstate)
	require.NoError(t, err)
	snap, err := objects.DecodeGlobalState(data)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Entries["seen"].I64)
	assert.Equal(t, "start", snap.Entries["label"].Text)
}

func TestLoadBytes_ReportsProgress(t *testing.T) {
	st := newTestStore(t)
	l := New(st, nil)

	var calls []int
	l.SetProgress(func(current, total int) { calls = append(calls, current) })

	require.NoError(t, l.LoadBytes([]byte(sampleDoc)))
	require.NotEmpty(t, calls)
	assert.Equal(t, len(calls), calls[len(calls)-1], "progress calls are cumulative and end at the total entry count")
}

func TestLoadBytes_UnresolvableReferenceFailsWithNotFound(t *testing.T) {
	st := newTestStore(t)
	l := New(st, nil)

	const broken = `
ns:
  bad_word:
    !word
    params: [i64]
    results: [i64]
    body:
      - !prim ns/missing_prim
`
	err := l.LoadBytes([]byte(broken))
	assert.Error(t, err)
}

func TestLoadBytes_UnknownCatalogTagIsRejected(t *testing.T) {
	st := newTestStore(t)
	l := New(st, nil)

	const broken = `
ns:
  thing:
    !mystery
    doc: "nope"
`
	err := l.LoadBytes([]byte(broken))
	assert.Error(t, err)
}
