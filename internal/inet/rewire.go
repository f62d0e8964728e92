// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package inet

import (
	"fmt"

	"github.com/kraklabs/march/internal/errs"
)

// scope binds the rewire DSL's local names (A, B, and any alias
// introduced by `new`) to agent indices in the net.
type scope map[string]int

func (sc scope) resolveAgent(sym string) (int, error) {
	idx, ok := sc[sym]
	if !ok {
		return 0, errs.New(errs.DecodeError, "inet.rewire", fmt.Sprintf("unbound agent reference %q", sym))
	}
	return idx, nil
}

// resolvePortRef interprets a `(agentRef portName)` form.
func (n *Net) resolvePortRef(sc scope, ref sexp) (PortRef, error) {
	if len(ref.List) != 2 || ref.List[0].List != nil || ref.List[1].List != nil {
		return PortRef{}, errs.New(errs.DecodeError, "inet.rewire", "malformed port reference")
	}
	agentIdx, err := sc.resolveAgent(ref.List[0].Sym)
	if err != nil {
		return PortRef{}, err
	}
	portIdx, ok := n.PortIndex(agentIdx, ref.List[1].Sym)
	if !ok {
		return PortRef{}, errs.New(errs.DecodeError, "inet.rewire",
			fmt.Sprintf("agent kind %q has no port %q", n.AgentKind(agentIdx), ref.List[1].Sym))
	}
	return PortRef{Agent: agentIdx, Port: portIdx}, nil
}

// shortCircuitConnect implements connect's detect-and-rewire-to-peer
// semantics (§4.6): each endpoint's *current* external peer (if any) is
// what actually gets wired, so deleting the agents named in the form
// afterward leaves their neighbors directly connected.
func (n *Net) shortCircuitConnect(a, b PortRef) {
	peerA, okA := n.PeerOf(a)
	peerB, okB := n.PeerOf(b)
	switch {
	case okA && okB:
		n.Connect(peerA, peerB)
	case okA && !okB:
		n.Connect(peerA, b)
	case !okA && okB:
		n.Connect(a, peerB)
	default:
		n.Connect(a, b)
	}
}

// execForm applies one rewire form (connect/disconnect/delete/new).
func (n *Net) execForm(sc scope, form sexp) error {
	head, ok := form.head()
	if !ok {
		return errs.New(errs.DecodeError, "inet.rewire", "rewire form has no head symbol")
	}
	args := form.List[1:]

	switch head {
	case "connect":
		if len(args) != 2 {
			return errs.New(errs.DecodeError, "inet.rewire", "connect takes exactly two port references")
		}
		a, err := n.resolvePortRef(sc, args[0])
		if err != nil {
			return err
		}
		b, err := n.resolvePortRef(sc, args[1])
		if err != nil {
			return err
		}
		n.shortCircuitConnect(a, b)
		return nil

	case "disconnect":
		for _, ref := range args {
			p, err := n.resolvePortRef(sc, ref)
			if err != nil {
				return err
			}
			n.Disconnect(p)
		}
		return nil

	case "delete":
		for _, sym := range args {
			if sym.List != nil {
				return errs.New(errs.DecodeError, "inet.rewire", "delete takes bare agent references")
			}
			idx, err := sc.resolveAgent(sym.Sym)
			if err != nil {
				return err
			}
			n.DeleteAgent(idx)
		}
		return nil

	case "new":
		if len(args) != 3 || args[0].List != nil || args[1].List != nil || args[2].List == nil {
			return errs.New(errs.DecodeError, "inet.rewire", "new takes (KIND alias (port+))")
		}
		kind := args[0].Sym
		alias := args[1].Sym
		portNames := make([]string, len(args[2].List))
		for i, p := range args[2].List {
			if p.List != nil {
				return errs.New(errs.DecodeError, "inet.rewire", "new's port list must be bare names")
			}
			portNames[i] = p.Sym
		}
		sc[alias] = n.AddAgent(kind, portNames)
		return nil

	default:
		return errs.New(errs.DecodeError, "inet.rewire", fmt.Sprintf("unknown rewire form %q", head))
	}
}

// applyRewire parses and executes a rewire body against the net, with
// A and B bound to the active pair's left and right agent indices.
func (n *Net) applyRewire(body string, left, right int) error {
	root, err := parseSexp(body)
	if err != nil {
		return errs.Wrap(errs.DecodeError, "inet.applyRewire", err)
	}
	sc := scope{"A": left, "B": right}

	if head, ok := root.head(); ok && head == "seq" {
		for _, form := range root.List[1:] {
			if err := n.execForm(sc, form); err != nil {
				return err
			}
		}
		return nil
	}
	// A single bare form is also accepted (no outer "seq" wrapper needed).
	return n.execForm(sc, root)
}
