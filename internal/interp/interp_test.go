// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package interp

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/march/internal/builder"
	"github.com/kraklabs/march/internal/codec"
	"github.com/kraklabs/march/internal/gstate"
	"github.com/kraklabs/march/internal/objects"
	"github.com/kraklabs/march/internal/store"
	"github.com/kraklabs/march/internal/types"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "interp"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func registerPrim(t *testing.T, st *store.Store, name string, p objects.Prim) codec.CID {
	t.Helper()
	data, cid, err := p.Encode()
	require.NoError(t, err)
	_, err = st.Put(cid, objects.KindPrim, data)
	require.NoError(t, err)
	require.NoError(t, st.PutName("prim", name, cid))
	return cid
}

func TestRunWord_AddTwoArguments(t *testing.T) {
	st := newTestStore(t)
	addCID := registerPrim(t, st, "add_i64", objects.Prim{
		Params:  []types.Tag{types.I64, types.I64},
		Results: []types.Tag{types.I64},
	})

	b := builder.New(st, builder.DefaultOptions(), nil)
	require.NoError(t, b.BeginWord([]types.Tag{types.I64, types.I64}))
	require.NoError(t, b.ApplyPrim(addCID))
	wordCID, err := b.FinishWord([]types.Tag{types.I64}, "add")
	require.NoError(t, err)

	ip := New(st, nil, nil)
	results, err := ip.RunWord(wordCID, []Value{I64(2), I64(3)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(5), results[0].I64)
}

func TestRunWord_ArgumentArityMismatch(t *testing.T) {
	st := newTestStore(t)
	addCID := registerPrim(t, st, "add_i64", objects.Prim{
		Params:  []types.Tag{types.I64, types.I64},
		Results: []types.Tag{types.I64},
	})

	b := builder.New(st, builder.DefaultOptions(), nil)
	require.NoError(t, b.BeginWord([]types.Tag{types.I64, types.I64}))
	require.NoError(t, b.ApplyPrim(addCID))
	wordCID, err := b.FinishWord([]types.Tag{types.I64}, "")
	require.NoError(t, err)

	ip := New(st, nil, nil)
	_, err = ip.RunWord(wordCID, []Value{I64(2)})
	assert.Error(t, err)
}

func TestRunWord_EffectfulWordThreadsIOTokenAndMemoizesSharedSubgraph(t *testing.T) {
	st := newTestStore(t)
	ioEffect, cid, err := objects.Effect{Name: "io.write"}.Encode()
	require.NoError(t, err)
	_, err = st.Put(cid, objects.KindEffect, ioEffect)
	require.NoError(t, err)

	writeCID := registerPrim(t, st, "add_i64", objects.Prim{
		Params:     []types.Tag{types.I64, types.I64},
		Results:    []types.Tag{types.I64},
		Effects:    []codec.CID{cid},
		EffectMask: types.IO,
	})

	b := builder.New(st, builder.DefaultOptions(), nil)
	require.NoError(t, b.BeginWord([]types.Tag{types.I64, types.I64}))
	require.NoError(t, b.ApplyPrim(writeCID))
	wordCID, err := b.FinishWord([]types.Tag{types.I64}, "")
	require.NoError(t, err)

	ip := New(st, nil, nil)
	results, err := ip.RunWord(wordCID, []Value{I64(4), I64(6)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(10), results[0].I64)
}

func TestRunWord_LoadGlobalReadsFromGlobalStateRuntime(t *testing.T) {
	st := newTestStore(t)
	gs := gstate.New()
	gs.Write("counter", objects.I64Value(41))

	b := builder.New(st, builder.DefaultOptions(), nil)
	require.NoError(t, b.BeginWord(nil))
	cid, err := func() (codec.CID, error) {
		n := objects.Node{Kind: objects.NLoadGlobal, Out: []types.Tag{types.I64}, GlobalName: "counter"}
		data, cid, err := n.Encode()
		if err != nil {
			return codec.CID{}, err
		}
		_, err = st.Put(cid, objects.KindNode, data)
		return cid, err
	}()
	require.NoError(t, err)

	w := objects.Word{Root: cid, Results: []types.Tag{types.I64}}
	data, wordCID, err := w.Encode()
	require.NoError(t, err)
	_, err = st.Put(wordCID, objects.KindWord, data)
	require.NoError(t, err)

	ip := New(st, gs, nil)
	results, err := ip.RunWord(wordCID, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(41), results[0].I64)
}

func TestRunWord_GuardPreconditionFailureDeopts(t *testing.T) {
	st := newTestStore(t)

	failingGuard := builder.New(st, builder.DefaultOptions(), nil)
	require.NoError(t, failingGuard.BeginGuard(nil))
	require.NoError(t, failingGuard.PushLitI64(0))
	guardCID, err := failingGuard.FinishGuard("")
	require.NoError(t, err)

	b := builder.New(st, builder.DefaultOptions(), nil)
	require.NoError(t, b.BeginWord(nil))
	b.AttachGuard(guardCID)
	require.NoError(t, b.PushLitI64(99))
	wordCID, err := b.FinishWord([]types.Tag{types.I64}, "")
	require.NoError(t, err)

	ip := New(st, nil, nil)
	_, err = ip.RunWord(wordCID, nil)
	require.Error(t, err)
}

func TestPairUnpair_RoundTripThroughAGraph(t *testing.T) {
	st := newTestStore(t)

	argA := objects.Node{Kind: objects.NArg, Out: []types.Tag{types.I64}, ArgIndex: 0}
	dataA, cidA, err := argA.Encode()
	require.NoError(t, err)
	_, err = st.Put(cidA, objects.KindNode, dataA)
	require.NoError(t, err)

	argB := objects.Node{Kind: objects.NArg, Out: []types.Tag{types.I64}, ArgIndex: 1}
	dataB, cidB, err := argB.Encode()
	require.NoError(t, err)
	_, err = st.Put(cidB, objects.KindNode, dataB)
	require.NoError(t, err)

	pair := objects.Node{
		Kind:   objects.NPair,
		Inputs: []objects.Edge{{Producer: cidA, Port: 0}, {Producer: cidB, Port: 0}},
		Out:    []types.Tag{types.Ptr},
	}
	dataPair, cidPair, err := pair.Encode()
	require.NoError(t, err)
	_, err = st.Put(cidPair, objects.KindNode, dataPair)
	require.NoError(t, err)

	unpair := objects.Node{
		Kind:   objects.NUnpair,
		Inputs: []objects.Edge{{Producer: cidPair, Port: 0}},
		Out:    []types.Tag{types.I64, types.I64},
	}
	dataUnpair, cidUnpair, err := unpair.Encode()
	require.NoError(t, err)
	_, err = st.Put(cidUnpair, objects.KindNode, dataUnpair)
	require.NoError(t, err)

	w := objects.Word{Root: cidUnpair, Params: []types.Tag{types.I64, types.I64}, Results: []types.Tag{types.I64, types.I64}}
	data, wordCID, err := w.Encode()
	require.NoError(t, err)
	_, err = st.Put(wordCID, objects.KindWord, data)
	require.NoError(t, err)

	ip := New(st, nil, nil)
	results, err := ip.RunWord(wordCID, []Value{I64(7), I64(8)})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(7), results[0].I64)
	assert.Equal(t, int64(8), results[1].I64)
}
