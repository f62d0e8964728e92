// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package inet implements the interaction-net port-graph reducer
// described in §4.6: agents with named ports, wires as unordered
// port-pairs, active-pair scanning, rule resolution, and the minimal
// S-expression rewire DSL.
package inet

// PortRef addresses one port of one agent instance in a Net.
type PortRef struct {
	Agent int
	Port  int
}

// wire is an unordered pair of port references. Reduced-away wires are
// tombstoned (Deleted), never reclaimed, so wire-insertion order stays
// stable for tie-breaking active-pair scans.
type wire struct {
	A, B    PortRef
	Deleted bool
}

// agentInstance is one live (or tombstoned) agent in the net: its kind
// name, its ports' names (in declaration order, port 0 principal), and
// the wire index currently occupying each port (-1 if free).
type agentInstance struct {
	Kind      string
	PortNames []string
	WireOf    []int
	Deleted   bool
}

// Net is the mutable interaction-net state: every agent ever created
// and every wire ever created, both append-only and tombstoned rather
// than compacted.
type Net struct {
	agents []*agentInstance
	wires  []*wire
}

// NewNet returns an empty net.
func NewNet() *Net {
	return &Net{}
}

// AddAgent creates a new agent instance of kind with the given port
// names (port 0 is principal by convention) and returns its index.
func (n *Net) AddAgent(kind string, portNames []string) int {
	wireOf := make([]int, len(portNames))
	for i := range wireOf {
		wireOf[i] = -1
	}
	n.agents = append(n.agents, &agentInstance{
		Kind:      kind,
		PortNames: append([]string(nil), portNames...),
		WireOf:    wireOf,
	})
	return len(n.agents) - 1
}

// AgentKind returns the kind name of agent idx.
func (n *Net) AgentKind(idx int) string { return n.agents[idx].Kind }

// IsDeleted reports whether agent idx has been tombstoned.
func (n *Net) IsDeleted(idx int) bool { return n.agents[idx].Deleted }

// PortIndex resolves a port name to its index for agent idx.
func (n *Net) PortIndex(idx int, name string) (int, bool) {
	for i, p := range n.agents[idx].PortNames {
		if p == name {
			return i, true
		}
	}
	return 0, false
}

// Connect wires a and b directly, replacing whatever (if anything)
// previously occupied either port. This is the low-level primitive;
// the rewire DSL's connect form layers short-circuit peer resolution
// on top of it (see rewire.go).
func (n *Net) Connect(a, b PortRef) {
	if n.agents[a.Agent].WireOf[a.Port] >= 0 {
		n.Disconnect(a)
	}
	if n.agents[b.Agent].WireOf[b.Port] >= 0 {
		n.Disconnect(b)
	}
	n.wires = append(n.wires, &wire{A: a, B: b})
	idx := len(n.wires) - 1
	n.agents[a.Agent].WireOf[a.Port] = idx
	n.agents[b.Agent].WireOf[b.Port] = idx
}

// PeerOf returns the port at the other end of whatever wire currently
// occupies p, if any.
func (n *Net) PeerOf(p PortRef) (PortRef, bool) {
	wi := n.agents[p.Agent].WireOf[p.Port]
	if wi < 0 {
		return PortRef{}, false
	}
	w := n.wires[wi]
	if w.A == p {
		return w.B, true
	}
	return w.A, true
}

// Disconnect removes the wire occupying p, freeing both its endpoints.
// A no-op if p is already free.
func (n *Net) Disconnect(p PortRef) {
	wi := n.agents[p.Agent].WireOf[p.Port]
	if wi < 0 {
		return
	}
	w := n.wires[wi]
	w.Deleted = true
	n.agents[w.A.Agent].WireOf[w.A.Port] = -1
	n.agents[w.B.Agent].WireOf[w.B.Port] = -1
}

// DeleteAgent disconnects every port of agent idx and tombstones it.
// The slot is never reclaimed.
func (n *Net) DeleteAgent(idx int) {
	a := n.agents[idx]
	for port := range a.WireOf {
		n.Disconnect(PortRef{Agent: idx, Port: port})
	}
	a.Deleted = true
}

// NumAgents returns the number of agent slots ever allocated, deleted
// or not — the stable range for iterating with AgentKind/IsDeleted.
func (n *Net) NumAgents() int { return len(n.agents) }

// WireView is a read-only snapshot of one wire, for callers (cmd/march
// reduce) that need to print a net's final state.
type WireView struct {
	A, B    PortRef
	Deleted bool
}

// Wires returns a snapshot of every wire ever created, in insertion
// order, tombstoned ones included.
func (n *Net) Wires() []WireView {
	out := make([]WireView, len(n.wires))
	for i, w := range n.wires {
		out[i] = WireView{A: w.A, B: w.B, Deleted: w.Deleted}
	}
	return out
}

// ActivePair is two connected principal ports of non-deleted agents.
type ActivePair struct {
	WireIndex int
	Left      int // agent index bound as "A"
	Right     int // agent index bound as "B"
}

// ScanActivePair returns the first active pair in wire-insertion order,
// per §4.6's tie-break rule.
func (n *Net) ScanActivePair() (ActivePair, bool) {
	for wi, w := range n.wires {
		if w.Deleted {
			continue
		}
		if w.A.Port != 0 || w.B.Port != 0 {
			continue
		}
		if n.agents[w.A.Agent].Deleted || n.agents[w.B.Agent].Deleted {
			continue
		}
		return ActivePair{WireIndex: wi, Left: w.A.Agent, Right: w.B.Agent}, true
	}
	return ActivePair{}, false
}
