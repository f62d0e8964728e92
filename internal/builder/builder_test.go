// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package builder

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/march/internal/codec"
	"github.com/kraklabs/march/internal/objects"
	"github.com/kraklabs/march/internal/store"
	"github.com/kraklabs/march/internal/types"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "builder"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func putPrim(t *testing.T, st *store.Store, p objects.Prim) codec.CID {
	t.Helper()
	data, cid, err := p.Encode()
	require.NoError(t, err)
	_, err = st.Put(cid, objects.KindPrim, data)
	require.NoError(t, err)
	return cid
}

func putEffect(t *testing.T, st *store.Store, e objects.Effect) codec.CID {
	t.Helper()
	data, cid, err := e.Encode()
	require.NoError(t, err)
	_, err = st.Put(cid, objects.KindEffect, data)
	require.NoError(t, err)
	return cid
}

func TestBeginWord_SeedsOneArgNodePerParam(t *testing.T) {
	st := newTestStore(t)
	b := New(st, DefaultOptions(), nil)

	require.NoError(t, b.BeginWord([]types.Tag{types.I64, types.I64}))
	assert.Len(t, b.stack, 2)
	assert.Equal(t, types.I64, b.stack[0].Type)
	assert.Equal(t, uint32(0), b.stack[0].Port)
}

func TestPushLitI64_PushesOneI64Value(t *testing.T) {
	st := newTestStore(t)
	b := New(st, DefaultOptions(), nil)
	require.NoError(t, b.BeginWord(nil))

	require.NoError(t, b.PushLitI64(7))
	assert.Len(t, b.stack, 1)
	assert.Equal(t, types.I64, b.stack[0].Type)
}

func TestDupSwapOver_WireOnlyStackShuffles(t *testing.T) {
	st := newTestStore(t)
	b := New(st, DefaultOptions(), nil)
	require.NoError(t, b.BeginWord(nil))
	require.NoError(t, b.PushLitI64(1))
	require.NoError(t, b.PushLitI64(2))

	require.NoError(t, b.Dup())
	assert.Len(t, b.stack, 3)
	assert.Equal(t, b.stack[1].Producer, b.stack[2].Producer)

	require.NoError(t, b.Swap())
	assert.Equal(t, b.stack[2].Producer, b.stack[len(b.stack)-2].Producer)

	_ = b.Over()
}

func TestDup_UnderflowOnEmptyStack(t *testing.T) {
	st := newTestStore(t)
	b := New(st, DefaultOptions(), nil)
	require.NoError(t, b.BeginWord(nil))

	err := b.Dup()
	assert.Error(t, err, "dup on an empty stack must report underflow")
}

func TestApplyPrim_PopsArgsAndPushesResult(t *testing.T) {
	st := newTestStore(t)
	addCID := putPrim(t, st, objects.Prim{
		Params:  []types.Tag{types.I64, types.I64},
		Results: []types.Tag{types.I64},
	})

	b := New(st, DefaultOptions(), nil)
	require.NoError(t, b.BeginWord([]types.Tag{types.I64, types.I64}))
	require.NoError(t, b.ApplyPrim(addCID))

	assert.Len(t, b.stack, 1)
	assert.Equal(t, types.I64, b.stack[0].Type)
}

func TestApplyPrim_TypeMismatchIsRejected(t *testing.T) {
	st := newTestStore(t)
	addCID := putPrim(t, st, objects.Prim{
		Params:  []types.Tag{types.I64, types.I64},
		Results: []types.Tag{types.I64},
	})

	b := New(st, DefaultOptions(), nil)
	require.NoError(t, b.BeginWord([]types.Tag{types.Ptr, types.I64}))
	err := b.ApplyPrim(addCID)
	assert.Error(t, err, "a ptr argument where i64 is declared must fail type-checking")
}

func TestApplyPrim_StackUnderflow(t *testing.T) {
	st := newTestStore(t)
	addCID := putPrim(t, st, objects.Prim{
		Params:  []types.Tag{types.I64, types.I64},
		Results: []types.Tag{types.I64},
	})

	b := New(st, DefaultOptions(), nil)
	require.NoError(t, b.BeginWord([]types.Tag{types.I64}))
	err := b.ApplyPrim(addCID)
	assert.Error(t, err)
}

func TestApplyPrim_ThreadsIOTokenThroughEffectfulPrims(t *testing.T) {
	st := newTestStore(t)
	ioEffect := putEffect(t, st, objects.Effect{Name: "io.write"})
	writeCID := putPrim(t, st, objects.Prim{
		Params:     []types.Tag{types.I64},
		Results:    []types.Tag{types.I64},
		Effects:    []codec.CID{ioEffect},
		EffectMask: types.IO,
	})

	b := New(st, DefaultOptions(), nil)
	require.NoError(t, b.BeginWord([]types.Tag{types.I64}))
	require.NoError(t, b.ApplyPrim(writeCID))
	require.NoError(t, b.ApplyPrim(writeCID))

	assert.Equal(t, types.IO, b.accumMask)
	assert.Len(t, b.accumEffects, 1)
	tok, ok := b.tokens[types.DomainIO]
	require.True(t, ok, "an IO token chain must exist after an IO-effectful prim")
	assert.Equal(t, uint32(1), tok.Port, "second call's token output sits after its one declared result")
}

func TestFinishWord_EmitsReturnNodeWhenEffectsAccumulated(t *testing.T) {
	st := newTestStore(t)
	ioEffect := putEffect(t, st, objects.Effect{Name: "io.write"})
	writeCID := putPrim(t, st, objects.Prim{
		Params:     []types.Tag{types.I64},
		Results:    []types.Tag{types.I64},
		Effects:    []codec.CID{ioEffect},
		EffectMask: types.IO,
	})

	b := New(st, DefaultOptions(), nil)
	require.NoError(t, b.BeginWord([]types.Tag{types.I64}))
	require.NoError(t, b.ApplyPrim(writeCID))

	wordCID, err := b.FinishWord([]types.Tag{types.I64}, "")
	require.NoError(t, err)

	data, err := st.LoadForKind(wordCID, objects.KindWord)
	require.NoError(t, err)
	w, err := objects.DecodeWord(data)
	require.NoError(t, err)

	rootData, err := st.LoadForKind(w.Root, objects.KindNode)
	require.NoError(t, err)
	root, err := objects.DecodeNode(rootData)
	require.NoError(t, err)
	assert.Equal(t, objects.NReturn, root.Kind)
}

func TestFinishWord_NoEffectsRootIsLastProducer(t *testing.T) {
	st := newTestStore(t)
	addCID := putPrim(t, st, objects.Prim{
		Params:  []types.Tag{types.I64, types.I64},
		Results: []types.Tag{types.I64},
	})

	b := New(st, DefaultOptions(), nil)
	require.NoError(t, b.BeginWord([]types.Tag{types.I64, types.I64}))
	require.NoError(t, b.ApplyPrim(addCID))
	top := b.stack[0].Producer

	wordCID, err := b.FinishWord([]types.Tag{types.I64}, "")
	require.NoError(t, err)

	data, err := st.LoadForKind(wordCID, objects.KindWord)
	require.NoError(t, err)
	w, err := objects.DecodeWord(data)
	require.NoError(t, err)
	assert.Equal(t, top, w.Root, "with no accumulated effects, root is the last value's own producer node")
}

func TestFinishWord_ArityMismatchIsRejected(t *testing.T) {
	st := newTestStore(t)
	b := New(st, DefaultOptions(), nil)
	require.NoError(t, b.BeginWord(nil))
	require.NoError(t, b.PushLitI64(1))
	require.NoError(t, b.PushLitI64(2))

	_, err := b.FinishWord([]types.Tag{types.I64}, "")
	assert.Error(t, err, "two residual values against one declared result must fail")
}

func TestFinishWord_RegistersName(t *testing.T) {
	st := newTestStore(t)
	b := New(st, DefaultOptions(), nil)
	require.NoError(t, b.BeginWord(nil))
	require.NoError(t, b.PushLitI64(1))

	wordCID, err := b.FinishWord([]types.Tag{types.I64}, "answer")
	require.NoError(t, err)

	got, ok, err := st.GetName("word", "answer")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, wordCID, got)
}

func TestApplyDispatch_MatchingCandidateIsReachableViaGuardChain(t *testing.T) {
	st := newTestStore(t)
	intWord := New(st, DefaultOptions(), nil)
	require.NoError(t, intWord.BeginWord([]types.Tag{types.I64}))
	intCID, err := intWord.FinishWord([]types.Tag{types.I64}, "int-case")
	require.NoError(t, err)

	ptrWord := New(st, DefaultOptions(), nil)
	require.NoError(t, ptrWord.BeginWord([]types.Tag{types.Ptr}))
	require.NoError(t, ptrWord.PushLitI64(0))
	ptrCID, err := ptrWord.FinishWord([]types.Tag{types.Ptr, types.I64}, "ptr-case")
	require.NoError(t, err)

	b := New(st, DefaultOptions(), nil)
	require.NoError(t, b.BeginWord([]types.Tag{types.I64}))
	err = b.ApplyDispatch([]DispatchSpec{
		{TypeAtom: "i64", WordCID: intCID},
		{TypeAtom: "ptr", WordCID: ptrCID},
	})
	require.NoError(t, err)
	assert.Len(t, b.stack, 1)
}

func TestApplyDispatch_EmptyCandidateListIsRejected(t *testing.T) {
	st := newTestStore(t)
	b := New(st, DefaultOptions(), nil)
	require.NoError(t, b.BeginWord([]types.Tag{types.I64}))
	err := b.ApplyDispatch(nil)
	assert.Error(t, err)
}

func TestFinishGuard_RequiresSingleI64Result(t *testing.T) {
	st := newTestStore(t)
	b := New(st, DefaultOptions(), nil)
	require.NoError(t, b.BeginGuard(nil))
	require.NoError(t, b.PushLitI64(1))

	guardCID, err := b.FinishGuard("positive")
	require.NoError(t, err)

	data, err := st.LoadForKind(guardCID, objects.KindGuard)
	require.NoError(t, err)
	g, err := objects.DecodeGuard(data)
	require.NoError(t, err)
	assert.Equal(t, []types.Tag{types.I64}, g.Results)
}

func TestAttachGuard_IsCarriedOntoFinishedWord(t *testing.T) {
	st := newTestStore(t)
	guardBuilder := New(st, DefaultOptions(), nil)
	require.NoError(t, guardBuilder.BeginGuard(nil))
	require.NoError(t, guardBuilder.PushLitI64(1))
	guardCID, err := guardBuilder.FinishGuard("")
	require.NoError(t, err)

	b := New(st, DefaultOptions(), nil)
	require.NoError(t, b.BeginWord([]types.Tag{types.I64}))
	b.AttachGuard(guardCID)
	wordCID, err := b.FinishWord([]types.Tag{types.I64}, "")
	require.NoError(t, err)

	data, err := st.LoadForKind(wordCID, objects.KindWord)
	require.NoError(t, err)
	w, err := objects.DecodeWord(data)
	require.NoError(t, err)
	require.Len(t, w.Guards, 1)
	assert.Equal(t, guardCID, w.Guards[0])
}

func TestPeekTopTypes_ReturnsOldestFirstWithoutPopping(t *testing.T) {
	st := newTestStore(t)
	b := New(st, DefaultOptions(), nil)
	require.NoError(t, b.BeginWord(nil))
	require.NoError(t, b.PushLitI64(1))
	require.NoError(t, b.PushLitI64(2))

	types_, err := b.PeekTopTypes(2)
	require.NoError(t, err)
	assert.Equal(t, []types.Tag{types.I64, types.I64}, types_)
	assert.Len(t, b.stack, 2, "peek must not pop")
}
