// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package inet

import (
	"github.com/kraklabs/march/internal/errs"
	"github.com/kraklabs/march/internal/objects"
	"github.com/kraklabs/march/internal/store"
)

const builtinPairUnpair = "pair-unpair"

// ruleKey is the (kind_a, kind_b) lookup key for the rule table.
type ruleKey struct{ A, B string }

// Reducer resolves active pairs against a warmed-up rule table loaded
// from the store.
type Reducer struct {
	rules map[ruleKey]objects.Rule
}

// LoadRules bulk-loads every stored Rule object into the reducer's
// table (§4.6, §6: reducer rule-table warmup via ListCBORForKind).
func LoadRules(st *store.Store) (*Reducer, error) {
	entries, err := st.ListCBORForKind(objects.KindRule)
	if err != nil {
		return nil, err
	}
	rules := make(map[ruleKey]objects.Rule, len(entries))
	for _, e := range entries {
		r, err := objects.DecodeRule(e.Cbor)
		if err != nil {
			return nil, errs.Wrap(errs.DecodeError, "inet.LoadRules", err)
		}
		rules[ruleKey{A: r.LhsA, B: r.LhsB}] = r
	}
	return &Reducer{rules: rules}, nil
}

// lookup resolves a rule for the ordered pair (kindA, kindB): exact
// match first, then the symmetric entry (kindB, kindA), in which case
// the rule's own A/B bind to the net's right/left agents respectively.
func (rd *Reducer) lookup(kindA, kindB string) (objects.Rule, bool, bool) {
	if r, ok := rd.rules[ruleKey{A: kindA, B: kindB}]; ok {
		return r, false, true
	}
	if r, ok := rd.rules[ruleKey{A: kindB, B: kindA}]; ok {
		return r, true, true
	}
	return objects.Rule{}, false, false
}

// Step performs at most one reduction: it scans for the first eligible
// active pair in wire-insertion order, resolves its rule, and applies
// it. It reports whether a rule fired.
func (rd *Reducer) Step(n *Net) (bool, error) {
	pair, ok := n.ScanActivePair()
	if !ok {
		return false, nil
	}
	kindA, kindB := n.AgentKind(pair.Left), n.AgentKind(pair.Right)

	rule, swapped, ok := rd.lookup(kindA, kindB)
	if !ok {
		return false, nil
	}

	left, right := pair.Left, pair.Right
	if swapped {
		left, right = right, left
	}

	if rule.Rewire == builtinPairUnpair {
		if err := reducePairUnpair(n, left, right); err != nil {
			return false, err
		}
		return true, nil
	}

	if err := n.applyRewire(rule.Rewire, left, right); err != nil {
		return false, err
	}
	return true, nil
}

// Run steps the reducer until no active pair reduces or maxSteps is
// reached (a non-positive maxSteps means unbounded), returning the
// number of rules fired.
func (rd *Reducer) Run(n *Net, maxSteps int) (int, error) {
	fired := 0
	for maxSteps <= 0 || fired < maxSteps {
		ok, err := rd.Step(n)
		if err != nil {
			return fired, err
		}
		if !ok {
			return fired, nil
		}
		fired++
	}
	return fired, nil
}

// reducePairUnpair is the built-in literal annihilation rule for a
// constructor/destructor pair: every non-principal port of the pair
// agent is short-circuit-wired to the corresponding port of the unpair
// agent, then both agents are deleted. Port counts beyond the
// principal must match; this is the inet-level counterpart of the
// interpreter's PAIR/UNPAIR node pair.
func reducePairUnpair(n *Net, pairAgent, unpairAgent int) error {
	pairPorts := len(n.agents[pairAgent].PortNames)
	unpairPorts := len(n.agents[unpairAgent].PortNames)
	if pairPorts != unpairPorts {
		return errs.New(errs.ArityMismatch, "inet.reducePairUnpair", "pair/unpair port count mismatch")
	}
	for port := 1; port < pairPorts; port++ {
		n.shortCircuitConnect(PortRef{Agent: pairAgent, Port: port}, PortRef{Agent: unpairAgent, Port: port})
	}
	n.DeleteAgent(pairAgent)
	n.DeleteAgent(unpairAgent)
	return nil
}
