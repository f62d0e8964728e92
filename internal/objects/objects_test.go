// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package objects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/march/internal/codec"
	"github.com/kraklabs/march/internal/types"
)

func mustCID(seed byte) codec.CID {
	var c codec.CID
	c[0] = seed
	c[31] = seed
	return c
}

func TestEffectEncode_Deterministic(t *testing.T) {
	e := Effect{Name: "io.write", Doc: "writes bytes"}

	data1, cid1, err := e.Encode()
	require.NoError(t, err)
	data2, cid2, err := e.Encode()
	require.NoError(t, err)

	assert.Equal(t, data1, data2, "encoding must be deterministic")
	assert.Equal(t, cid1, cid2, "CID must be deterministic")

	got, err := DecodeEffect(data1)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestEffectEncode_DifferentInputsDifferentCIDs(t *testing.T) {
	a := Effect{Name: "io.write"}
	b := Effect{Name: "io.read"}

	_, cidA, err := a.Encode()
	require.NoError(t, err)
	_, cidB, err := b.Encode()
	require.NoError(t, err)

	assert.NotEqual(t, cidA, cidB, "distinct effects must have distinct CIDs")
}

func TestPrimRoundTrip(t *testing.T) {
	p := Prim{
		Params:     []types.Tag{types.I64, types.I64},
		Results:    []types.Tag{types.I64},
		Effects:    []codec.CID{mustCID(3), mustCID(1), mustCID(1)},
		EffectMask: types.IO,
	}

	data, cid, err := p.Encode()
	require.NoError(t, err)

	got, err := DecodePrim(data)
	require.NoError(t, err)

	assert.Equal(t, []codec.CID{mustCID(1), mustCID(3)}, got.Effects, "effects must be sorted and deduplicated")
	assert.Equal(t, p.Params, got.Params)
	assert.Equal(t, p.Results, got.Results)
	assert.Equal(t, types.IO, got.EffectMask)

	data2, cid2, err := p.Encode()
	require.NoError(t, err)
	assert.Equal(t, data, data2)
	assert.Equal(t, cid, cid2)
}

func TestPrimDecode_MaskWithoutEffectsNormalizesToIO(t *testing.T) {
	p := Prim{
		Params:     []types.Tag{types.I64},
		Results:    []types.Tag{types.I64},
		Effects:    nil,
		EffectMask: types.Test,
	}

	data, _, err := p.Encode()
	require.NoError(t, err)

	got, err := DecodePrim(data)
	require.NoError(t, err)
	assert.Equal(t, types.IO, got.EffectMask, "a non-zero mask with no declared effects normalizes to IO")
}

func TestInterfaceEncode_SortsSymbolsByName(t *testing.T) {
	iface := Interface{Symbols: []Symbol{
		{Name: "zeta", Params: []types.Tag{types.I64}, Results: []types.Tag{types.I64}},
		{Name: "alpha", Params: []types.Tag{types.I64}, Results: []types.Tag{types.I64}},
	}}

	data, _, err := iface.Encode()
	require.NoError(t, err)

	got, err := DecodeInterface(data)
	require.NoError(t, err)
	require.Len(t, got.Symbols, 2)
	assert.Equal(t, "alpha", got.Symbols[0].Name)
	assert.Equal(t, "zeta", got.Symbols[1].Name)
}

func TestNamespaceRoundTrip(t *testing.T) {
	ns := Namespace{
		Imports: []codec.CID{mustCID(5), mustCID(2)},
		Exports: []codec.CID{mustCID(7)},
		Iface:   mustCID(9),
	}

	data, _, err := ns.Encode()
	require.NoError(t, err)

	got, err := DecodeNamespace(data)
	require.NoError(t, err)
	assert.Equal(t, []codec.CID{mustCID(2), mustCID(5)}, got.Imports, "imports are sorted but not deduplicated")
	assert.Equal(t, ns.Exports, got.Exports)
	assert.Equal(t, ns.Iface, got.Iface)
}

func TestAgentRoundTrip(t *testing.T) {
	a := Agent{Name: "pair", Ports: []string{"principal", "fst", "snd"}}

	data, _, err := a.Encode()
	require.NoError(t, err)

	got, err := DecodeAgent(data)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestRuleRoundTrip(t *testing.T) {
	r := Rule{LhsA: "pair", LhsB: "unpair", Rewire: "(pair-unpair)"}

	data, _, err := r.Encode()
	require.NoError(t, err)

	got, err := DecodeRule(data)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestGuardValidate_RejectsNonI64Result(t *testing.T) {
	g := Guard{Root: mustCID(1), Params: []types.Tag{types.I64}, Results: []types.Tag{types.Unit}}
	assert.Error(t, g.Validate())

	g.Results = []types.Tag{types.I64}
	assert.NoError(t, g.Validate())

	g.Results = []types.Tag{types.I64, types.I64}
	assert.Error(t, g.Validate(), "guard must have exactly one result")
}

func TestGuardRoundTrip(t *testing.T) {
	g := Guard{
		Root:       mustCID(4),
		Params:     []types.Tag{types.I64, types.I64},
		Results:    []types.Tag{types.I64},
		Effects:    []codec.CID{mustCID(1)},
		EffectMask: types.Test,
	}

	data, _, err := g.Encode()
	require.NoError(t, err)

	got, err := DecodeGuard(data)
	require.NoError(t, err)
	assert.Equal(t, g.Root, got.Root)
	assert.Equal(t, g.Results, got.Results)
}

func TestWordRoundTrip_CarriesGuardsUnlikeGuard(t *testing.T) {
	w := Word{
		Root:       mustCID(6),
		Params:     []types.Tag{types.I64},
		Results:    []types.Tag{types.I64},
		Effects:    []codec.CID{mustCID(2)},
		EffectMask: types.IO,
		Guards:     []codec.CID{mustCID(8), mustCID(8)},
	}

	data, _, err := w.Encode()
	require.NoError(t, err)

	got, err := DecodeWord(data)
	require.NoError(t, err)
	assert.Equal(t, w.Root, got.Root)
	assert.Equal(t, []codec.CID{mustCID(8), mustCID(8)}, got.Guards, "guard list preserves declaration order, unlike effects")

	// A Guard object built from the same fields (minus Guards) must not
	// decode the extra field; the two wire shapes are distinct.
	g := Guard{Root: w.Root, Params: w.Params, Results: w.Results, Effects: w.Effects, EffectMask: w.EffectMask}
	gData, _, err := g.Encode()
	require.NoError(t, err)
	assert.NotEqual(t, data, gData, "word and guard records must not collide despite sharing most fields")
}

func TestGlobalStateEncode_SortsEntriesByName(t *testing.T) {
	gs := GlobalState{Entries: map[string]Value{
		"counter.b": I64Value(2),
		"counter.a": I64Value(1),
	}}

	data1, cid1, err := gs.Encode()
	require.NoError(t, err)
	data2, cid2, err := gs.Encode()
	require.NoError(t, err)
	assert.Equal(t, data1, data2, "map iteration order must not affect encoding")
	assert.Equal(t, cid1, cid2)

	got, err := DecodeGlobalState(data1)
	require.NoError(t, err)
	assert.Equal(t, gs.Entries, got.Entries)
}

func TestValueRoundTrip_AllKinds(t *testing.T) {
	gs := GlobalState{Entries: map[string]Value{
		"i":     I64Value(-7),
		"f":     F64Value(3.5),
		"u":     UnitValue(),
		"q":     QuoteValue(mustCID(3)),
		"t":     TupleValue([]Value{I64Value(1), TextValue("x")}),
		"text":  TextValue("hello"),
	}}

	data, _, err := gs.Encode()
	require.NoError(t, err)

	got, err := DecodeGlobalState(data)
	require.NoError(t, err)
	assert.Equal(t, gs.Entries, got.Entries)
}

func TestNodeLit_RoundTrip(t *testing.T) {
	n := Node{
		Kind:     NLit,
		Out:      []types.Tag{types.I64},
		LitValue: I64Value(42),
	}

	data, cid1, err := n.Encode()
	require.NoError(t, err)

	got, err := DecodeNode(data)
	require.NoError(t, err)
	assert.Equal(t, NLit, got.Kind)
	assert.Equal(t, I64Value(42), got.LitValue)

	_, cid2, err := n.Encode()
	require.NoError(t, err)
	assert.Equal(t, cid1, cid2, "node CID must be deterministic")
}

func TestNodeReturn_ArityMustMatchVals(t *testing.T) {
	n := Node{
		Kind:       NReturn,
		Out:        []types.Tag{types.I64, types.I64},
		ReturnDeps: []Edge{{Producer: mustCID(1), Port: 0}},
		ReturnVals: nil,
	}

	data, _, err := n.Encode()
	require.NoError(t, err, "Encode does not itself validate arity; DecodeNode does")

	_, err = DecodeNode(data)
	assert.Error(t, err, "decode must reject |out| != |vals| for RETURN")
}

func TestNodeReturn_RoundTrip(t *testing.T) {
	n := Node{
		Kind:       NReturn,
		Out:        []types.Tag{types.I64},
		ReturnVals: []Edge{{Producer: mustCID(4), Port: 0}},
		ReturnDeps: []Edge{{Producer: mustCID(1), Port: 0}},
	}

	data, _, err := n.Encode()
	require.NoError(t, err)

	got, err := DecodeNode(data)
	require.NoError(t, err)
	assert.Equal(t, n.ReturnVals, got.ReturnVals)
	assert.Equal(t, n.ReturnDeps, got.ReturnDeps)
}

func TestEdgeSort_DedupesByProducerAndPort(t *testing.T) {
	n := Node{
		Kind: NPair,
		Inputs: []Edge{
			{Producer: mustCID(2), Port: 0},
			{Producer: mustCID(1), Port: 1},
			{Producer: mustCID(1), Port: 1},
			{Producer: mustCID(1), Port: 0},
		},
		Out: []types.Tag{types.Ptr},
	}

	data, _, err := n.Encode()
	require.NoError(t, err)

	got, err := DecodeNode(data)
	require.NoError(t, err)
	assert.Equal(t, []Edge{
		{Producer: mustCID(1), Port: 0},
		{Producer: mustCID(1), Port: 1},
		{Producer: mustCID(2), Port: 0},
	}, got.Inputs, "inputs sorted by (producer, port) and deduplicated")
}

func TestCIDOf_SameValueSameCID(t *testing.T) {
	a := Effect{Name: "metric.count"}
	b := Effect{Name: "metric.count"}

	_, cidA, err := a.Encode()
	require.NoError(t, err)
	_, cidB, err := b.Encode()
	require.NoError(t, err)

	assert.Equal(t, cidA, cidB, "content-identical objects must share a CID")
}
