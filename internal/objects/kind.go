// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package objects implements the canonical per-kind serialization and
// record decoders for every object kind in the data model (§3): Effect,
// Prim, Node, Word, Guard, Interface, Namespace, Agent, Rule, and the
// global-state snapshot.
package objects

// Kind is the store-level object kind, also used as the name-index
// scope (§3 "Name index").
type Kind string

const (
	KindWord      Kind = "word"
	KindPrim      Kind = "prim"
	KindIface     Kind = "iface"
	KindNamespace Kind = "namespace"
	KindEffect    Kind = "effect"
	KindNode      Kind = "node"
	KindGuard     Kind = "guard"
	KindGstate    Kind = "gstate"
	KindAgent     Kind = "agent"
	KindRule      Kind = "rule"
)

// Tag is the canonical per-kind integer discriminator (§4.1, §6).
// Array-shaped encodings (word, iface, node, guard, gstate) begin with
// this integer; map-shaped encodings (prim, namespace, effect, agent,
// rule) instead carry it implicitly via their "kind" field, whose
// string must map back to the same Kind.
type Tag uint64

const (
	TagWord      Tag = 1
	TagPrim      Tag = 2
	TagIface     Tag = 3
	TagNamespace Tag = 4
	TagEffect    Tag = 5
	TagNode      Tag = 6
	TagGuard     Tag = 7
	TagGstate    Tag = 8
	TagAgent     Tag = 9
	TagRule      Tag = 10
)

func (k Kind) Tag() Tag {
	switch k {
	case KindWord:
		return TagWord
	case KindPrim:
		return TagPrim
	case KindIface:
		return TagIface
	case KindNamespace:
		return TagNamespace
	case KindEffect:
		return TagEffect
	case KindNode:
		return TagNode
	case KindGuard:
		return TagGuard
	case KindGstate:
		return TagGstate
	case KindAgent:
		return TagAgent
	case KindRule:
		return TagRule
	default:
		return 0
	}
}
