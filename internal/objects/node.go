// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package objects

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/kraklabs/march/internal/codec"
	"github.com/kraklabs/march/internal/types"
)

// NodeKind is the closed set of graph node kinds (§3).
type NodeKind uint8

const (
	NLit NodeKind = iota
	NPrim
	NCall
	NArg
	NLoadGlobal
	NReturn
	NPair
	NUnpair
	NQuote
	NApply
	NIf
	NToken
	NGuard
	NDeopt
)

var nodeKindNames = [...]string{
	NLit: "LIT", NPrim: "PRIM", NCall: "CALL", NArg: "ARG",
	NLoadGlobal: "LOAD_GLOBAL", NReturn: "RETURN", NPair: "PAIR",
	NUnpair: "UNPAIR", NQuote: "QUOTE", NApply: "APPLY", NIf: "IF",
	NToken: "TOKEN", NGuard: "GUARD", NDeopt: "DEOPT",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return fmt.Sprintf("NodeKind(%d)", uint8(k))
}

// Edge is an input edge: the CID of the producing object and the
// output port index it reads from.
type Edge struct {
	Producer codec.CID
	Port     uint32
}

type wireEdge struct {
	_    struct{} `cbor:",toarray"`
	CID  []byte
	Port uint32
}

func encodeEdges(es []Edge) []wireEdge {
	out := make([]wireEdge, len(es))
	for i, e := range es {
		out[i] = wireEdge{CID: cidBytes(e.Producer), Port: e.Port}
	}
	return out
}

func decodeEdges(ws []wireEdge) ([]Edge, error) {
	out := make([]Edge, len(ws))
	for i, w := range ws {
		c, err := parseCIDBytes(w.CID)
		if err != nil {
			return nil, err
		}
		out[i] = Edge{Producer: c, Port: w.Port}
	}
	return out, nil
}

// sortDedupeEdges sorts input edges by (cid, port) and removes exact
// duplicates, per the node input-list canonicalization rule (§4.1).
func sortDedupeEdges(es []Edge) []Edge {
	out := append([]Edge(nil), es...)
	less := func(i, j int) bool {
		if out[i].Producer != out[j].Producer {
			return out[i].Producer.Hex() < out[j].Producer.Hex()
		}
		return out[i].Port < out[j].Port
	}
	// insertion sort is fine at node fan-in sizes; keep it simple and stable.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	deduped := out[:0]
	for i, e := range out {
		if i == 0 || e != deduped[len(deduped)-1] {
			deduped = append(deduped, e)
		}
	}
	return deduped
}

// Node is a single graph node. Payload is the kind-specific variant
// described in §3/§4.5; exactly one of the typed payload fields is
// populated, selected by Kind.
type Node struct {
	Kind    NodeKind
	Inputs  []Edge // regular (non-RETURN) data/effect inputs
	Out     []types.Tag
	Effects []codec.CID // declared effect-CID dependencies, sorted

	// Payload variants; only the one matching Kind is meaningful.
	LitValue     Value
	PrimCID      codec.CID
	CallCID      codec.CID
	ArgIndex     uint32
	GlobalName   string
	ReturnVals   []Edge
	ReturnDeps   []Edge
	QuoteTarget  codec.CID
	ApplyTarget  codec.CID
	ApplyTypeKey codec.CID // zero CID means absent
	IfTrue       Edge
	IfFalse      Edge
	GuardTypeKey codec.CID // leading non-zero bytes spell the type atom
	GuardMatch   Edge
	GuardElse    Edge
	TokenDomain  types.Domain
}

type wireNode struct {
	_        struct{} `cbor:",toarray"`
	Tag      uint64
	NodeKind uint64
	Inputs   []wireEdge
	Out      []string
	Effects  [][]byte
	Payload  cbor.RawMessage
}

type payloadLit struct {
	Value []any `cbor:"value"`
}
type payloadPrim struct {
	Prim []byte `cbor:"prim"`
}
type payloadCall struct {
	Word []byte `cbor:"word"`
}
type payloadArg struct {
	Index uint32 `cbor:"index"`
}
type payloadLoadGlobal struct {
	Name string `cbor:"name"`
}
type payloadReturn struct {
	Vals []wireEdge `cbor:"vals"`
	Deps []wireEdge `cbor:"deps"`
}
type payloadQuote struct {
	Target []byte `cbor:"target"`
}
type payloadApply struct {
	Target  []byte `cbor:"target"`
	TypeKey []byte `cbor:"type_key,omitempty"`
}
type payloadIf struct {
	True  wireEdge `cbor:"true"`
	False wireEdge `cbor:"false"`
}
type payloadGuard struct {
	TypeKey []byte   `cbor:"type_key"`
	Match   wireEdge `cbor:"match"`
	Else    wireEdge `cbor:"else"`
}
type payloadToken struct {
	Domain string `cbor:"domain"`
}

// typeKeyBytes packs a type atom into a 32-byte field whose leading
// bytes are the atom's ASCII text, per §4.5 GUARD semantics.
func typeKeyBytes(atom string) codec.CID {
	var c codec.CID
	copy(c[:], atom)
	return c
}

// typeKeyAtom extracts the atom from a type-key field: the leading
// non-zero bytes, per §4.5.
func typeKeyAtom(c codec.CID) string {
	i := 0
	for i < len(c) && c[i] != 0 {
		i++
	}
	return string(c[:i])
}

// Encode canonically serializes the Node as an array-form record tagged
// with TagNode. Regular nodes sort+dedupe their input edges and
// declared effects; RETURN nodes carry vals/deps instead and declare no
// regular inputs or effects (§3 invariant).
func (n Node) Encode() ([]byte, codec.CID, error) {
	w := wireNode{Tag: uint64(TagNode), NodeKind: uint64(n.Kind), Out: tagStrings(n.Out)}

	if n.Kind == NReturn {
		w.Inputs = nil
		w.Effects = nil
		payload, err := codec.EncodeValue(payloadReturn{
			Vals: encodeEdges(n.ReturnVals),
			Deps: encodeEdges(n.ReturnDeps),
		})
		if err != nil {
			return nil, codec.CID{}, err
		}
		w.Payload = payload
	} else {
		w.Inputs = encodeEdges(sortDedupeEdges(n.Inputs))
		w.Effects = cidBytesList(sortCIDs(n.Effects))
		payload, err := n.encodePayload()
		if err != nil {
			return nil, codec.CID{}, err
		}
		w.Payload = payload
	}

	cid, data, err := codec.CIDOf(w)
	return data, cid, err
}

func (n Node) encodePayload() (cbor.RawMessage, error) {
	var v any
	switch n.Kind {
	case NLit:
		v = payloadLit{Value: n.LitValue.encode()}
	case NPrim:
		v = payloadPrim{Prim: cidBytes(n.PrimCID)}
	case NCall:
		v = payloadCall{Word: cidBytes(n.CallCID)}
	case NArg:
		v = payloadArg{Index: n.ArgIndex}
	case NLoadGlobal:
		v = payloadLoadGlobal{Name: n.GlobalName}
	case NPair, NUnpair, NDeopt:
		v = struct{}{}
	case NQuote:
		v = payloadQuote{Target: cidBytes(n.QuoteTarget)}
	case NApply:
		p := payloadApply{Target: cidBytes(n.ApplyTarget)}
		if !n.ApplyTypeKey.IsZero() {
			p.TypeKey = cidBytes(n.ApplyTypeKey)
		}
		v = p
	case NIf:
		v = payloadIf{True: encodeEdges([]Edge{n.IfTrue})[0], False: encodeEdges([]Edge{n.IfFalse})[0]}
	case NGuard:
		v = payloadGuard{
			TypeKey: cidBytes(n.GuardTypeKey),
			Match:   encodeEdges([]Edge{n.GuardMatch})[0],
			Else:    encodeEdges([]Edge{n.GuardElse})[0],
		}
	case NToken:
		v = payloadToken{Domain: n.TokenDomain.String()}
	default:
		return nil, fmt.Errorf("objects: unknown node kind %v", n.Kind)
	}
	b, err := codec.EncodeValue(v)
	if err != nil {
		return nil, err
	}
	return cbor.RawMessage(b), nil
}

// DecodeNode parses bytes previously produced by Node.Encode.
func DecodeNode(data []byte) (Node, error) {
	var w wireNode
	if err := codec.DecodeValue(data, &w); err != nil {
		return Node{}, fmt.Errorf("objects: decode node: %w", err)
	}
	if Tag(w.Tag) != TagNode {
		return Node{}, fmt.Errorf("objects: node record has wrong tag %d", w.Tag)
	}
	if w.NodeKind >= uint64(len(nodeKindNames)) {
		return Node{}, fmt.Errorf("objects: unknown node kind %d", w.NodeKind)
	}
	kind := NodeKind(w.NodeKind)
	out, err := parseTags(w.Out)
	if err != nil {
		return Node{}, err
	}
	n := Node{Kind: kind, Out: out}

	if kind == NReturn {
		var p payloadReturn
		if err := codec.DecodeValue(w.Payload, &p); err != nil {
			return Node{}, fmt.Errorf("objects: decode RETURN payload: %w", err)
		}
		vals, err := decodeEdges(p.Vals)
		if err != nil {
			return Node{}, err
		}
		deps, err := decodeEdges(p.Deps)
		if err != nil {
			return Node{}, err
		}
		if len(vals) != len(out) {
			return Node{}, fmt.Errorf("objects: RETURN |out|=%d != |vals|=%d", len(out), len(vals))
		}
		n.ReturnVals = vals
		n.ReturnDeps = deps
		return n, nil
	}

	inputs, err := decodeEdges(w.Inputs)
	if err != nil {
		return Node{}, err
	}
	effects, err := parseCIDBytesList(w.Effects)
	if err != nil {
		return Node{}, err
	}
	n.Inputs = inputs
	n.Effects = effects

	switch kind {
	case NLit:
		var p payloadLit
		if err := codec.DecodeValue(w.Payload, &p); err != nil {
			return Node{}, err
		}
		v, err := decodeValue(p.Value)
		if err != nil {
			return Node{}, err
		}
		n.LitValue = v
	case NPrim:
		var p payloadPrim
		if err := codec.DecodeValue(w.Payload, &p); err != nil {
			return Node{}, err
		}
		c, err := parseCIDBytes(p.Prim)
		if err != nil {
			return Node{}, err
		}
		n.PrimCID = c
	case NCall:
		var p payloadCall
		if err := codec.DecodeValue(w.Payload, &p); err != nil {
			return Node{}, err
		}
		c, err := parseCIDBytes(p.Word)
		if err != nil {
			return Node{}, err
		}
		n.CallCID = c
	case NArg:
		var p payloadArg
		if err := codec.DecodeValue(w.Payload, &p); err != nil {
			return Node{}, err
		}
		n.ArgIndex = p.Index
	case NLoadGlobal:
		var p payloadLoadGlobal
		if err := codec.DecodeValue(w.Payload, &p); err != nil {
			return Node{}, err
		}
		n.GlobalName = p.Name
	case NPair, NUnpair, NDeopt:
		// no payload fields
	case NQuote:
		var p payloadQuote
		if err := codec.DecodeValue(w.Payload, &p); err != nil {
			return Node{}, err
		}
		c, err := parseCIDBytes(p.Target)
		if err != nil {
			return Node{}, err
		}
		n.QuoteTarget = c
	case NApply:
		var p payloadApply
		if err := codec.DecodeValue(w.Payload, &p); err != nil {
			return Node{}, err
		}
		c, err := parseCIDBytes(p.Target)
		if err != nil {
			return Node{}, err
		}
		n.ApplyTarget = c
		if len(p.TypeKey) > 0 {
			tk, err := parseCIDBytes(p.TypeKey)
			if err != nil {
				return Node{}, err
			}
			n.ApplyTypeKey = tk
		}
	case NIf:
		var p payloadIf
		if err := codec.DecodeValue(w.Payload, &p); err != nil {
			return Node{}, err
		}
		edges, err := decodeEdges([]wireEdge{p.True, p.False})
		if err != nil {
			return Node{}, err
		}
		n.IfTrue, n.IfFalse = edges[0], edges[1]
	case NGuard:
		var p payloadGuard
		if err := codec.DecodeValue(w.Payload, &p); err != nil {
			return Node{}, err
		}
		tk, err := parseCIDBytes(p.TypeKey)
		if err != nil {
			return Node{}, err
		}
		edges, err := decodeEdges([]wireEdge{p.Match, p.Else})
		if err != nil {
			return Node{}, err
		}
		n.GuardTypeKey = tk
		n.GuardMatch, n.GuardElse = edges[0], edges[1]
	case NToken:
		var p payloadToken
		if err := codec.DecodeValue(w.Payload, &p); err != nil {
			return Node{}, err
		}
		switch p.Domain {
		case "io":
			n.TokenDomain = types.DomainIO
		case "state":
			n.TokenDomain = types.DomainState
		case "test":
			n.TokenDomain = types.DomainTest
		case "metric":
			n.TokenDomain = types.DomainMetric
		default:
			return Node{}, fmt.Errorf("objects: unknown token domain %q", p.Domain)
		}
	default:
		return Node{}, fmt.Errorf("objects: unknown node kind %v", kind)
	}
	return n, nil
}

// NewTypeKey is exported for builders/interpreters constructing or
// inspecting GUARD/APPLY type-key fields.
func NewTypeKey(atom string) codec.CID { return typeKeyBytes(atom) }

// TypeKeyAtom is exported for builders/interpreters constructing or
// inspecting GUARD/APPLY type-key fields.
func TypeKeyAtom(c codec.CID) string { return typeKeyAtom(c) }
