// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package inet

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
	s, err := store.Open(filepath.Join(t.TempDir(), "inet"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func putRule(t *testing.T, st *store.Store, r objects.Rule) {
	t.Helper()
	data, cid, err := r.Encode()
	require.NoError(t, err)
	_, err = st.Put(cid, objects.KindRule, data)
	require.NoError(t, err)
}

func TestScanActivePair_FindsFirstConnectedPrincipalPorts(t *testing.T) {
	n := NewNet()
	a := n.AddAgent("era", []string{"principal"})
	b := n.AddAgent("era", []string{"principal"})
	n.Connect(PortRef{Agent: a, Port: 0}, PortRef{Agent: b, Port: 0})

	pair, ok := n.ScanActivePair()
	require.True(t, ok)
	assert.Equal(t, a, pair.Left)
	assert.Equal(t, b, pair.Right)
}

func TestScanActivePair_IgnoresNonPrincipalWires(t *testing.T) {
	n := NewNet()
	a := n.AddAgent("dup", []string{"principal", "out1", "out2"})
	b := n.AddAgent("dup", []string{"principal", "out1", "out2"})
	n.Connect(PortRef{Agent: a, Port: 1}, PortRef{Agent: b, Port: 1})

	_, ok := n.ScanActivePair()
	assert.False(t, ok, "only principal-to-principal wires count as active pairs")
}

func TestPeerOf_ReturnsTheOtherEndpoint(t *testing.T) {
	n := NewNet()
	a := n.AddAgent("k", []string{"p"})
	b := n.AddAgent("k", []string{"p"})
	n.Connect(PortRef{Agent: a, Port: 0}, PortRef{Agent: b, Port: 0})

	peer, ok := n.PeerOf(PortRef{Agent: a, Port: 0})
	require.True(t, ok)
	assert.Equal(t, PortRef{Agent: b, Port: 0}, peer)
}

func TestDeleteAgent_DisconnectsAllPortsAndTombstones(t *testing.T) {
	n := NewNet()
	a := n.AddAgent("k", []string{"p", "q"})
	b := n.AddAgent("k", []string{"p", "q"})
	n.Connect(PortRef{Agent: a, Port: 1}, PortRef{Agent: b, Port: 1})

	n.DeleteAgent(a)
	assert.True(t, n.IsDeleted(a))
	_, ok := n.PeerOf(PortRef{Agent: b, Port: 1})
	assert.False(t, ok, "deleting a neighbor must free the wire on the other side too")
}

func TestReducer_BuiltinPairUnpairAnnihilatesAndRewiresNeighbors(t *testing.T) {
	st := newTestStore(t)
	putRule(t, st, objects.Rule{LhsA: "pair", LhsB: "unpair", Rewire: builtinPairUnpair})
	rd, err := LoadRules(st)
	require.NoError(t, err)

	n := NewNet()
	left := n.AddAgent("producer", []string{"principal"})
	pair := n.AddAgent("pair", []string{"principal", "fst", "snd"})
	unpair := n.AddAgent("unpair", []string{"principal", "fst", "snd"})
	rightFst := n.AddAgent("consumer", []string{"principal"})
	rightSnd := n.AddAgent("consumer", []string{"principal"})

	n.Connect(PortRef{Agent: left, Port: 0}, PortRef{Agent: pair, Port: 1})
	n.Connect(PortRef{Agent: pair, Port: 0}, PortRef{Agent: unpair, Port: 0})
	n.Connect(PortRef{Agent: unpair, Port: 1}, PortRef{Agent: rightFst, Port: 0})
	n.Connect(PortRef{Agent: unpair, Port: 2}, PortRef{Agent: rightSnd, Port: 0})

	fired, err := rd.Run(n, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	assert.True(t, n.IsDeleted(pair))
	assert.True(t, n.IsDeleted(unpair))

	peer, ok := n.PeerOf(PortRef{Agent: left, Port: 0})
	require.True(t, ok, "left's neighbor must now be rewired directly, bypassing the annihilated pair")
	assert.Equal(t, rightFst, peer.Agent)
}

func TestReducer_ExactRuleWinsOverSymmetric(t *testing.T) {
	st := newTestStore(t)
	putRule(t, st, objects.Rule{LhsA: "x", LhsB: "y", Rewire: "(delete A B)"})
	putRule(t, st, objects.Rule{LhsA: "y", LhsB: "x", Rewire: "(delete A)"})
	rd, err := LoadRules(st)
	require.NoError(t, err)

	n := NewNet()
	a := n.AddAgent("x", []string{"principal"})
	b := n.AddAgent("y", []string{"principal"})
	n.Connect(PortRef{Agent: a, Port: 0}, PortRef{Agent: b, Port: 0})

	fired, err := rd.Run(n, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	assert.True(t, n.IsDeleted(a))
	assert.True(t, n.IsDeleted(b), "exact (x,y) rule deletes both agents")
}

func TestReducer_SymmetricRuleSwapsAB(t *testing.T) {
	st := newTestStore(t)
	putRule(t, st, objects.Rule{LhsA: "y", LhsB: "x", Rewire: "(delete A)"})
	rd, err := LoadRules(st)
	require.NoError(t, err)

	n := NewNet()
	a := n.AddAgent("x", []string{"principal"})
	b := n.AddAgent("y", []string{"principal"})
	n.Connect(PortRef{Agent: a, Port: 0}, PortRef{Agent: b, Port: 0})

	_, err = rd.Run(n, 1)
	require.NoError(t, err)
	assert.True(t, n.IsDeleted(b), "rule was declared (y,x); when matched against net order (x,y), A binds the net's right agent")
	assert.False(t, n.IsDeleted(a))
}

func TestApplyRewire_NewFormBindsAFreshAgent(t *testing.T) {
	n := NewNet()
	a := n.AddAgent("x", []string{"principal", "out"})
	b := n.AddAgent("y", []string{"principal"})

	err := n.applyRewire(`(seq (new z c (principal)) (connect (A out) (c principal)))`, a, b)
	require.NoError(t, err)

	peer, ok := n.PeerOf(PortRef{Agent: a, Port: 1})
	require.True(t, ok)
	assert.Equal(t, "z", n.AgentKind(peer.Agent))
}

func TestApplyRewire_UnknownFormIsRejected(t *testing.T) {
	n := NewNet()
	a := n.AddAgent("x", []string{"principal"})
	b := n.AddAgent("y", []string{"principal"})

	err := n.applyRewire(`(frobnicate A B)`, a, b)
	assert.Error(t, err)
}

func TestParseSexp_NestedLists(t *testing.T) {
	root, err := parseSexp(`(seq (connect (A head) (B left)) (delete A B))`)
	require.NoError(t, err)
	head, ok := root.head()
	require.True(t, ok)
	assert.Equal(t, "seq", head)
	assert.Len(t, root.List, 3)
}
