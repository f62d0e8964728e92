// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package interp is the tree-walking, memoizing graph interpreter
// described in §4.5: given a word CID and caller arguments, it
// evaluates the word's root node, threading effect tokens and
// dispatching PRIM nodes to their registered primitive implementation.
package interp

import (
	"log/slog"

	"github.com/kraklabs/march/internal/codec"
	"github.com/kraklabs/march/internal/errs"
	"github.com/kraklabs/march/internal/gstate"
	"github.com/kraklabs/march/internal/jit"
	"github.com/kraklabs/march/internal/objects"
	"github.com/kraklabs/march/internal/store"
	"github.com/kraklabs/march/internal/types"
)

var errUnknownValueKind = errs.New(errs.DecodeError, "interp", "unknown value kind")

// Interp evaluates stored graphs against a store and a global-state
// runtime. It holds no per-run state itself; every RunWord call gets
// its own fresh memo (a run-state), matching §4.5's "per invocation"
// memoization rule.
type Interp struct {
	st     *store.Store
	gs     *gstate.Store
	logger *slog.Logger
}

// New constructs an Interp. gs may be nil if the caller never expects
// LOAD_GLOBAL nodes to be reachable; a nil logger defaults to
// slog.Default().
func New(st *store.Store, gs *gstate.Store, logger *slog.Logger) *Interp {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interp{st: st, gs: gs, logger: logger}
}

func checkArgs(op string, params []types.Tag, args []Value) error {
	if len(args) != len(params) {
		return errs.New(errs.ArityMismatch, op, "argument count does not match word/guard signature")
	}
	for i, p := range params {
		if args[i].Tag != p {
			return errs.New(errs.TypeMismatch, op, "")
		}
	}
	return nil
}

// RunWord type-checks args against wordCID's signature, evaluates the
// word's guards (if any) as preconditions, then evaluates its root
// node and returns the ordered results.
func (ip *Interp) RunWord(wordCID codec.CID, args []Value) ([]Value, error) {
	data, err := ip.st.LoadForKind(wordCID, objects.KindWord)
	if err != nil {
		return nil, err
	}
	w, err := objects.DecodeWord(data)
	if err != nil {
		return nil, errs.Wrap(errs.DecodeError, "interp.RunWord", err)
	}
	if err := checkArgs("interp.RunWord", w.Params, args); err != nil {
		return nil, err
	}

	for _, guardCID := range w.Guards {
		res, err := ip.runGuard(guardCID, args)
		if err != nil {
			return nil, err
		}
		if len(res) != 1 || res[0].I64 == 0 {
			return nil, errs.New(errs.DeoptTriggered, "interp.RunWord", "guard precondition failed")
		}
	}

	return ip.runRooted(w.Root, args)
}

// runGuard evaluates a stored Guard's body the same way a word's body
// is evaluated; FinishGuard already guarantees its single i64 result.
func (ip *Interp) runGuard(guardCID codec.CID, args []Value) ([]Value, error) {
	data, err := ip.st.LoadForKind(guardCID, objects.KindGuard)
	if err != nil {
		return nil, err
	}
	g, err := objects.DecodeGuard(data)
	if err != nil {
		return nil, errs.Wrap(errs.DecodeError, "interp.runGuard", err)
	}
	if err := checkArgs("interp.runGuard", g.Params, args); err != nil {
		return nil, err
	}
	return ip.runRooted(g.Root, args)
}

func (ip *Interp) runRooted(root codec.CID, args []Value) ([]Value, error) {
	rs := &runState{ip: ip, args: args, memo: make(map[codec.CID][]Value)}
	return rs.evalNode(root)
}

// runState is one RunWord/runGuard invocation's evaluation context: its
// caller arguments and its node-CID memo, scoped to this invocation
// only (§4.5: shared subgraphs evaluate once per invocation, not once
// globally — argument values differ across invocations of the same
// content-addressed graph).
type runState struct {
	ip   *Interp
	args []Value
	memo map[codec.CID][]Value
}

func (rs *runState) evalNode(cid codec.CID) ([]Value, error) {
	if out, ok := rs.memo[cid]; ok {
		return out, nil
	}
	data, err := rs.ip.st.LoadForKind(cid, objects.KindNode)
	if err != nil {
		return nil, err
	}
	node, err := objects.DecodeNode(data)
	if err != nil {
		return nil, errs.Wrap(errs.DecodeError, "interp.evalNode", err)
	}
	out, err := rs.dispatch(node)
	if err != nil {
		return nil, err
	}
	rs.memo[cid] = out
	return out, nil
}

func (rs *runState) evalEdge(e objects.Edge) (Value, error) {
	out, err := rs.evalNode(e.Producer)
	if err != nil {
		return Value{}, err
	}
	if int(e.Port) >= len(out) {
		return Value{}, errs.New(errs.DecodeError, "interp.evalEdge", "port index out of range")
	}
	return out[e.Port], nil
}

func (rs *runState) evalInputs(node objects.Node) ([]Value, error) {
	out := make([]Value, len(node.Inputs))
	for i, e := range node.Inputs {
		v, err := rs.evalEdge(e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (rs *runState) dispatch(node objects.Node) ([]Value, error) {
	switch node.Kind {
	case objects.NLit:
		v, err := fromObjectsValue(node.LitValue)
		if err != nil {
			return nil, err
		}
		return []Value{v}, nil

	case objects.NArg:
		if int(node.ArgIndex) >= len(rs.args) {
			return nil, errs.New(errs.ArityMismatch, "interp.NArg", "argument index out of range")
		}
		return []Value{rs.args[node.ArgIndex]}, nil

	case objects.NLoadGlobal:
		return rs.evalLoadGlobal(node)

	case objects.NPrim:
		return rs.evalPrim(node)

	case objects.NCall:
		return rs.evalCall(node)

	case objects.NPair:
		return rs.evalPair(node)

	case objects.NUnpair:
		return rs.evalUnpair(node)

	case objects.NQuote:
		return []Value{{Tag: types.Ptr, Quote: node.QuoteTarget}}, nil

	case objects.NApply:
		return rs.evalApply(node)

	case objects.NIf:
		return rs.evalIf(node)

	case objects.NGuard:
		return rs.evalGuard(node)

	case objects.NDeopt:
		return nil, errs.New(errs.DeoptTriggered, "interp.NDeopt", "")

	case objects.NToken:
		return []Value{Token(node.TokenDomain)}, nil

	case objects.NReturn:
		vals := make([]Value, len(node.ReturnVals))
		for i, e := range node.ReturnVals {
			v, err := rs.evalEdge(e)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		for _, e := range node.ReturnDeps {
			if _, err := rs.evalEdge(e); err != nil {
				return nil, err
			}
		}
		return vals, nil

	default:
		return nil, errs.New(errs.DecodeError, "interp.dispatch", "unknown node kind")
	}
}

func (rs *runState) evalLoadGlobal(node objects.Node) ([]Value, error) {
	if rs.ip.gs == nil {
		return nil, errs.New(errs.NotFound, "interp.NLoadGlobal", "no global-state runtime attached")
	}
	v, err := rs.ip.gs.Read(node.GlobalName)
	if err != nil {
		return nil, err
	}
	conv, err := fromObjectsValue(v)
	if err != nil {
		return nil, err
	}
	return []Value{conv}, nil
}

func (rs *runState) evalPair(node objects.Node) ([]Value, error) {
	args, err := rs.evalInputs(node)
	if err != nil {
		return nil, err
	}
	if len(args) != 2 {
		return nil, errs.New(errs.ArityMismatch, "interp.NPair", "PAIR requires exactly two inputs")
	}
	return []Value{{Tag: types.Ptr, Tuple: []Value{args[0], args[1]}}}, nil
}

func (rs *runState) evalUnpair(node objects.Node) ([]Value, error) {
	args, err := rs.evalInputs(node)
	if err != nil {
		return nil, err
	}
	if len(args) != 1 || args[0].Tuple == nil {
		return nil, errs.New(errs.TypeMismatch, "interp.NUnpair", "UNPAIR requires a single Tuple input")
	}
	return args[0].Tuple, nil
}

func (rs *runState) evalApply(node objects.Node) ([]Value, error) {
	args, err := rs.evalInputs(node)
	if err != nil {
		return nil, err
	}
	return rs.ip.RunWord(node.ApplyTarget, args)
}

func (rs *runState) evalIf(node objects.Node) ([]Value, error) {
	if len(node.Inputs) != 1 {
		return nil, errs.New(errs.ArityMismatch, "interp.NIf", "IF requires exactly one condition input")
	}
	cond, err := rs.evalEdge(node.Inputs[0])
	if err != nil {
		return nil, err
	}
	if cond.I64 == 0 {
		v, err := rs.evalEdge(node.IfFalse)
		return []Value{v}, err
	}
	v, err := rs.evalEdge(node.IfTrue)
	return []Value{v}, err
}

func (rs *runState) evalGuard(node objects.Node) ([]Value, error) {
	if len(node.Inputs) != 1 {
		return nil, errs.New(errs.ArityMismatch, "interp.NGuard", "GUARD requires exactly one input")
	}
	subject, err := rs.evalEdge(node.Inputs[0])
	if err != nil {
		return nil, err
	}
	atom := objects.TypeKeyAtom(node.GuardTypeKey)
	var target objects.Edge
	if subject.DynamicAtom() == atom {
		target = node.GuardMatch
	} else {
		target = node.GuardElse
	}
	v, err := rs.evalEdge(target)
	return []Value{v}, err
}

// builtinBinOp is the pure-Go fallback used when the jit package has
// no installed code page for name (unsupported GOARCH or a prior
// mmap/mprotect failure).
func builtinBinOp(name string) (func(a, b int64) int64, bool) {
	switch name {
	case "add_i64":
		return func(a, b int64) int64 { return a + b }, true
	case "sub_i64":
		return func(a, b int64) int64 { return a - b }, true
	default:
		return nil, false
	}
}

func (rs *runState) evalPrim(node objects.Node) ([]Value, error) {
	primData, err := rs.ip.st.LoadForKind(node.PrimCID, objects.KindPrim)
	if err != nil {
		return nil, err
	}
	p, err := objects.DecodePrim(primData)
	if err != nil {
		return nil, errs.Wrap(errs.DecodeError, "interp.evalPrim", err)
	}
	argc := len(p.Params)
	if len(node.Inputs) < argc {
		return nil, errs.New(errs.ArityMismatch, "interp.evalPrim", "")
	}

	argVals := make([]Value, argc)
	for i := 0; i < argc; i++ {
		v, err := rs.evalEdge(node.Inputs[i])
		if err != nil {
			return nil, err
		}
		argVals[i] = v
	}
	// Token inputs are consumed only for ordering; evaluate for any
	// side effects threaded through them, then discard.
	for i := argc; i < len(node.Inputs); i++ {
		if _, err := rs.evalEdge(node.Inputs[i]); err != nil {
			return nil, err
		}
	}

	name, ok, err := rs.ip.st.GetNameByCID("prim", node.PrimCID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.New(errs.UnknownPrimitive, "interp.evalPrim", "primitive has no registered name")
	}

	results, err := rs.ip.invokePrimitive(name, argVals)
	if err != nil {
		return nil, err
	}

	domains := p.EffectMask.Domains()
	out := make([]Value, 0, len(results)+len(domains))
	out = append(out, results...)
	for _, d := range domains {
		out = append(out, Token(d))
	}
	return out, nil
}

// invokePrimitive dispatches a primitive call by its registered name.
// add_i64 and sub_i64 are the two built-ins required by §4.5; either
// consults an installed JIT code page or falls back to the plain Go
// scalar operation.
func (ip *Interp) invokePrimitive(name string, args []Value) ([]Value, error) {
	switch name {
	case "add_i64", "sub_i64":
		if len(args) != 2 {
			return nil, errs.New(errs.ArityMismatch, "interp.invokePrimitive", name)
		}
		op, ok := jit.Lookup(name)
		if !ok {
			op, _ = builtinBinOp(name)
		}
		return []Value{I64(op(args[0].I64, args[1].I64))}, nil
	default:
		return nil, errs.New(errs.UnknownPrimitive, "interp.invokePrimitive", name)
	}
}

func (rs *runState) evalCall(node objects.Node) ([]Value, error) {
	wordData, err := rs.ip.st.LoadForKind(node.CallCID, objects.KindWord)
	if err != nil {
		return nil, err
	}
	w, err := objects.DecodeWord(wordData)
	if err != nil {
		return nil, errs.Wrap(errs.DecodeError, "interp.evalCall", err)
	}
	argc := len(w.Params)
	if len(node.Inputs) < argc {
		return nil, errs.New(errs.ArityMismatch, "interp.evalCall", "")
	}

	argVals := make([]Value, argc)
	for i := 0; i < argc; i++ {
		v, err := rs.evalEdge(node.Inputs[i])
		if err != nil {
			return nil, err
		}
		argVals[i] = v
	}
	for i := argc; i < len(node.Inputs); i++ {
		if _, err := rs.evalEdge(node.Inputs[i]); err != nil {
			return nil, err
		}
	}

	results, err := rs.ip.RunWord(node.CallCID, argVals)
	if err != nil {
		return nil, err
	}

	domains := w.EffectMask.Domains()
	out := make([]Value, 0, len(results)+len(domains))
	out = append(out, results...)
	for _, d := range domains {
		out = append(out, Token(d))
	}
	return out, nil
}
