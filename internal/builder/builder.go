// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package builder implements the Forth-style stack machine that
// assembles typed graph nodes, accumulates effects, threads per-domain
// effect tokens, and emits canonical word/guard objects (§4.4).
package builder

import (
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kraklabs/march/internal/codec"
	"github.com/kraklabs/march/internal/errs"
	"github.com/kraklabs/march/internal/objects"
	"github.com/kraklabs/march/internal/store"
	"github.com/kraklabs/march/internal/types"
)

// Options resolves the encoder-authoritative open questions in spec
// §9(a)/(b): whether a word/guard may finish with zero or multiple
// results. Defaults are permissive, matching what the node/word wire
// format already allows.
type Options struct {
	AllowZeroResults bool
	AllowMultiResult bool
}

// DefaultOptions returns the builder's default, permissive resolution
// of the open questions.
func DefaultOptions() Options {
	return Options{AllowZeroResults: true, AllowMultiResult: true}
}

const cacheSize = 256

// PrimInfo is the cached, decoded signature of a stored Prim.
type PrimInfo struct {
	CID        codec.CID
	Params     []types.Tag
	Results    []types.Tag
	Effects    []codec.CID
	EffectMask types.EffectMask
}

// WordInfo is the cached, decoded signature of a stored Word.
type WordInfo struct {
	CID        codec.CID
	Root       codec.CID
	Params     []types.Tag
	Results    []types.Tag
	Effects    []codec.CID
	EffectMask types.EffectMask
	Guards     []codec.CID
}

// stackItem is one stack-machine value: the node producing it, the
// output port it reads, and its static type.
type stackItem struct {
	Producer codec.CID
	Port     uint32
	Type     types.Tag
}

// Builder is the single-threaded stack machine described in §4.4. It
// is not safe for concurrent use; callers serialize access the same
// way they serialize access to the underlying Store.
type Builder struct {
	st     *store.Store
	opts   Options
	logger *slog.Logger

	stack      []stackItem
	paramTypes []types.Tag
	guards     []codec.CID

	accumEffects []codec.CID
	accumMask    types.EffectMask
	tokens       map[types.Domain]stackItem

	primCache *lru.Cache[codec.CID, PrimInfo]
	wordCache *lru.Cache[codec.CID, WordInfo]
}

// New constructs a Builder over st. A nil logger defaults to
// slog.Default().
func New(st *store.Store, opts Options, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	primCache, _ := lru.New[codec.CID, PrimInfo](cacheSize)
	wordCache, _ := lru.New[codec.CID, WordInfo](cacheSize)
	return &Builder{st: st, opts: opts, logger: logger, primCache: primCache, wordCache: wordCache}
}

func (b *Builder) reset() {
	b.stack = nil
	b.paramTypes = nil
	b.guards = nil
	b.accumEffects = nil
	b.accumMask = types.None
	b.tokens = make(map[types.Domain]stackItem)
}

// BeginWord clears builder state and seeds one ARG node per parameter.
func (b *Builder) BeginWord(params []types.Tag) error {
	return b.begin(params)
}

// BeginGuard has the same contract as BeginWord; guards are built with
// the identical stack-machine state, only FinishGuard's invariants
// differ.
func (b *Builder) BeginGuard(params []types.Tag) error {
	return b.begin(params)
}

func (b *Builder) begin(params []types.Tag) error {
	b.reset()
	b.paramTypes = append([]types.Tag(nil), params...)
	for i, t := range params {
		cid, err := b.putNode(objects.Node{
			Kind:     objects.NArg,
			Out:      []types.Tag{t},
			ArgIndex: uint32(i),
		})
		if err != nil {
			return err
		}
		b.stack = append(b.stack, stackItem{Producer: cid, Port: 0, Type: t})
	}
	return nil
}

// PushLitI64 emits a LIT node and pushes its i64 result.
func (b *Builder) PushLitI64(n int64) error {
	cid, err := b.putNode(objects.Node{
		Kind:     objects.NLit,
		Out:      []types.Tag{types.I64},
		LitValue: objects.I64Value(n),
	})
	if err != nil {
		return err
	}
	b.stack = append(b.stack, stackItem{Producer: cid, Port: 0, Type: types.I64})
	return nil
}

// Dup duplicates the top stack value. Wire-only: no node is emitted.
func (b *Builder) Dup() error {
	if len(b.stack) < 1 {
		return errs.New(errs.StackUnderflow, "builder.Dup", "need 1, have 0")
	}
	top := b.stack[len(b.stack)-1]
	b.stack = append(b.stack, top)
	return nil
}

// Swap exchanges the top two stack values. Wire-only.
func (b *Builder) Swap() error {
	n := len(b.stack)
	if n < 2 {
		return errs.New(errs.StackUnderflow, "builder.Swap", "need 2, have fewer")
	}
	b.stack[n-1], b.stack[n-2] = b.stack[n-2], b.stack[n-1]
	return nil
}

// Over pushes a copy of the second-from-top value. Wire-only.
func (b *Builder) Over() error {
	n := len(b.stack)
	if n < 2 {
		return errs.New(errs.StackUnderflow, "builder.Over", "need 2, have fewer")
	}
	b.stack = append(b.stack, b.stack[n-2])
	return nil
}

// PeekTopTypes returns the static types of the top n stack values,
// oldest first, without popping. Used for overload dispatch planning.
func (b *Builder) PeekTopTypes(n int) ([]types.Tag, error) {
	if len(b.stack) < n {
		return nil, errs.New(errs.StackUnderflow, "builder.PeekTopTypes", "")
	}
	out := make([]types.Tag, n)
	base := len(b.stack) - n
	for i := 0; i < n; i++ {
		out[i] = b.stack[base+i].Type
	}
	return out, nil
}

func (b *Builder) putNode(n objects.Node) (codec.CID, error) {
	data, cid, err := n.Encode()
	if err != nil {
		return codec.CID{}, errs.Wrap(errs.DecodeError, "builder.putNode", err)
	}
	if _, err := b.st.Put(cid, objects.KindNode, data); err != nil {
		return codec.CID{}, err
	}
	return cid, nil
}

func (b *Builder) loadPrimInfo(cid codec.CID) (PrimInfo, error) {
	if info, ok := b.primCache.Get(cid); ok {
		return info, nil
	}
	data, err := b.st.LoadForKind(cid, objects.KindPrim)
	if err != nil {
		return PrimInfo{}, err
	}
	p, err := objects.DecodePrim(data)
	if err != nil {
		return PrimInfo{}, errs.Wrap(errs.DecodeError, "builder.loadPrimInfo", err)
	}
	info := PrimInfo{CID: cid, Params: p.Params, Results: p.Results, Effects: p.Effects, EffectMask: p.EffectMask}
	b.primCache.Add(cid, info)
	return info, nil
}

func (b *Builder) loadWordInfo(cid codec.CID) (WordInfo, error) {
	if info, ok := b.wordCache.Get(cid); ok {
		return info, nil
	}
	data, err := b.st.LoadForKind(cid, objects.KindWord)
	if err != nil {
		return WordInfo{}, err
	}
	w, err := objects.DecodeWord(data)
	if err != nil {
		return WordInfo{}, errs.Wrap(errs.DecodeError, "builder.loadWordInfo", err)
	}
	info := WordInfo{
		CID: cid, Root: w.Root, Params: w.Params, Results: w.Results,
		Effects: w.Effects, EffectMask: w.EffectMask, Guards: w.Guards,
	}
	b.wordCache.Add(cid, info)
	return info, nil
}

// popArgs pops n items (as pushed, right-to-left on the physical
// stack) and returns them left-to-right, matching declared parameter
// order.
func (b *Builder) popArgs(n int) ([]stackItem, error) {
	if len(b.stack) < n {
		return nil, errs.New(errs.StackUnderflow, "builder", "")
	}
	base := len(b.stack) - n
	args := append([]stackItem(nil), b.stack[base:]...)
	b.stack = b.stack[:base]
	return args, nil
}

func typeCheck(op string, args []stackItem, want []types.Tag) error {
	if len(args) != len(want) {
		return errs.New(errs.ArityMismatch, op, "")
	}
	for i, a := range args {
		if a.Type != want[i] {
			return errs.New(errs.TypeMismatch, op, "")
		}
	}
	return nil
}

// threadTokens appends, for each effect domain in mask, a token input
// edge (creating an initial TOKEN node for the domain on first use)
// and returns the extra input edges plus the token output types the
// node must also declare. The node's eventual CID is not yet known
// when this runs; callers pass it to commitTokens once the node is
// stored so the per-domain "current token" can advance to the new
// output port.
func (b *Builder) threadTokens(mask types.EffectMask) (inputs []objects.Edge, outTypes []types.Tag, domains []types.Domain, err error) {
	domains = mask.Domains()
	for _, d := range domains {
		cur, ok := b.tokens[d]
		if !ok {
			tokCID, terr := b.putNode(objects.Node{
				Kind:        objects.NToken,
				Out:         []types.Tag{d.TokenTag()},
				TokenDomain: d,
			})
			if terr != nil {
				return nil, nil, nil, terr
			}
			cur = stackItem{Producer: tokCID, Port: 0, Type: d.TokenTag()}
			b.tokens[d] = cur
		}
		inputs = append(inputs, objects.Edge{Producer: cur.Producer, Port: cur.Port})
		outTypes = append(outTypes, d.TokenTag())
	}
	return inputs, outTypes, domains, nil
}

// commitTokens advances the per-domain current-token pointer to the
// node just stored, whose token outputs begin at port resultCount.
func (b *Builder) commitTokens(nodeCID codec.CID, domains []types.Domain, resultCount int) {
	for i, d := range domains {
		b.tokens[d] = stackItem{Producer: nodeCID, Port: uint32(resultCount + i), Type: d.TokenTag()}
	}
}

func unionEffects(base []codec.CID, add []codec.CID) []codec.CID {
	seen := make(map[codec.CID]bool, len(base))
	out := append([]codec.CID(nil), base...)
	for _, c := range base {
		seen[c] = true
	}
	for _, c := range add {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// ApplyPrim loads primCID's signature, pops and type-checks its
// arguments, wires any declared effect-token chains, stores a PRIM
// node, and pushes its results.
func (b *Builder) ApplyPrim(primCID codec.CID) error {
	info, err := b.loadPrimInfo(primCID)
	if err != nil {
		return err
	}
	args, err := b.popArgs(len(info.Params))
	if err != nil {
		return err
	}
	if err := typeCheck("builder.ApplyPrim", args, info.Params); err != nil {
		return err
	}

	inputs := make([]objects.Edge, len(args))
	for i, a := range args {
		inputs[i] = objects.Edge{Producer: a.Producer, Port: a.Port}
	}
	tokenInputs, tokenOut, domains, err := b.threadTokens(info.EffectMask)
	if err != nil {
		return err
	}
	inputs = append(inputs, tokenInputs...)
	out := append(append([]types.Tag(nil), info.Results...), tokenOut...)

	nodeCID, err := b.putNode(objects.Node{
		Kind:    objects.NPrim,
		Inputs:  inputs,
		Out:     out,
		Effects: info.Effects,
		PrimCID: primCID,
	})
	if err != nil {
		return err
	}
	b.commitTokens(nodeCID, domains, len(info.Results))

	for i, t := range info.Results {
		b.stack = append(b.stack, stackItem{Producer: nodeCID, Port: uint32(i), Type: t})
	}
	b.accumEffects = unionEffects(b.accumEffects, info.Effects)
	b.accumMask = b.accumMask.Union(info.EffectMask)
	return nil
}

// ApplyWord is ApplyPrim's analogue for calling a stored word: it
// emits a CALL node instead of a PRIM node and inherits the callee's
// effects the same way.
func (b *Builder) ApplyWord(wordCID codec.CID) error {
	info, err := b.loadWordInfo(wordCID)
	if err != nil {
		return err
	}
	args, err := b.popArgs(len(info.Params))
	if err != nil {
		return err
	}
	if err := typeCheck("builder.ApplyWord", args, info.Params); err != nil {
		return err
	}

	inputs := make([]objects.Edge, len(args))
	for i, a := range args {
		inputs[i] = objects.Edge{Producer: a.Producer, Port: a.Port}
	}
	tokenInputs, tokenOut, domains, err := b.threadTokens(info.EffectMask)
	if err != nil {
		return err
	}
	inputs = append(inputs, tokenInputs...)
	out := append(append([]types.Tag(nil), info.Results...), tokenOut...)

	nodeCID, err := b.putNode(objects.Node{
		Kind:    objects.NCall,
		Inputs:  inputs,
		Out:     out,
		Effects: info.Effects,
		CallCID: wordCID,
	})
	if err != nil {
		return err
	}
	b.commitTokens(nodeCID, domains, len(info.Results))

	for i, t := range info.Results {
		b.stack = append(b.stack, stackItem{Producer: nodeCID, Port: uint32(i), Type: t})
	}
	b.accumEffects = unionEffects(b.accumEffects, info.Effects)
	b.accumMask = b.accumMask.Union(info.EffectMask)
	return nil
}

// Quote emits a QUOTE node referencing targetCID (a word or guard) and
// pushes a ptr-typed value.
func (b *Builder) Quote(targetCID codec.CID) error {
	cid, err := b.putNode(objects.Node{
		Kind:        objects.NQuote,
		Out:         []types.Tag{types.Ptr},
		QuoteTarget: targetCID,
	})
	if err != nil {
		return err
	}
	b.stack = append(b.stack, stackItem{Producer: cid, Port: 0, Type: types.Ptr})
	return nil
}

// AttachGuard records guardCID to be stored on the word produced by
// the next FinishWord, evaluated as a precondition before the body.
func (b *Builder) AttachGuard(guardCID codec.CID) {
	b.guards = append(b.guards, guardCID)
}

// finishCommon validates the residual stack against declared results
// and, if any effects were accumulated over the word's body, emits a
// RETURN node; otherwise the last value's producer becomes root.
func (b *Builder) finishCommon(op string, results []types.Tag) (codec.CID, error) {
	if len(b.paramTypes) == 0 && len(b.stack) == 0 {
		// a zero-parameter, zero-result word is degenerate but not an error
	}
	if len(results) == 0 && !b.opts.AllowZeroResults {
		return codec.CID{}, errs.New(errs.ArityMismatch, op, "zero-result words are disabled")
	}
	if len(results) > 1 && !b.opts.AllowMultiResult {
		return codec.CID{}, errs.New(errs.ArityMismatch, op, "multi-result words are disabled")
	}
	if len(b.stack) != len(results) {
		return codec.CID{}, errs.New(errs.ArityMismatch, op,
			"residual stack does not match declared results")
	}
	for i, want := range results {
		if b.stack[i].Type != want {
			return codec.CID{}, errs.New(errs.TypeMismatch, op, "")
		}
	}

	if len(b.accumEffects) == 0 && b.accumMask == types.None {
		if len(b.stack) == 0 {
			// zero-result word with no body value: an empty RETURN still
			// needs a root node, since every word needs one.
			return b.putNode(objects.Node{Kind: objects.NReturn, Out: nil})
		}
		return b.stack[len(b.stack)-1].Producer, nil
	}

	vals := make([]objects.Edge, len(b.stack))
	for i, s := range b.stack {
		vals[i] = objects.Edge{Producer: s.Producer, Port: s.Port}
	}
	var deps []objects.Edge
	for _, d := range b.accumMask.Domains() {
		if tok, ok := b.tokens[d]; ok {
			deps = append(deps, objects.Edge{Producer: tok.Producer, Port: tok.Port})
		}
	}
	return b.putNode(objects.Node{
		Kind:       objects.NReturn,
		Out:        results,
		ReturnVals: vals,
		ReturnDeps: deps,
	})
}

// FinishWord validates the builder's final state, stores a Word
// object rooted at the computed root node, optionally registers name
// under the "word" scope, resets builder state, and returns the new
// Word's CID.
func (b *Builder) FinishWord(results []types.Tag, name string) (codec.CID, error) {
	root, err := b.finishCommon("builder.FinishWord", results)
	if err != nil {
		return codec.CID{}, err
	}
	w := objects.Word{
		Root:       root,
		Params:     append([]types.Tag(nil), b.paramTypes...),
		Results:    append([]types.Tag(nil), results...),
		Effects:    b.accumEffects,
		EffectMask: b.accumMask,
		Guards:     append([]codec.CID(nil), b.guards...),
	}
	data, cid, err := w.Encode()
	if err != nil {
		return codec.CID{}, errs.Wrap(errs.DecodeError, "builder.FinishWord", err)
	}
	if _, err := b.st.Put(cid, objects.KindWord, data); err != nil {
		return codec.CID{}, err
	}
	if name != "" {
		if err := b.st.PutName("word", name, cid); err != nil {
			return codec.CID{}, err
		}
	}
	b.reset()
	return cid, nil
}

// FinishGuard is FinishWord's counterpart for guard quotations: result
// arity must be exactly one i64.
func (b *Builder) FinishGuard(name string) (codec.CID, error) {
	results := []types.Tag{types.I64}
	root, err := b.finishCommon("builder.FinishGuard", results)
	if err != nil {
		return codec.CID{}, err
	}
	g := objects.Guard{
		Root:       root,
		Params:     append([]types.Tag(nil), b.paramTypes...),
		Results:    results,
		Effects:    b.accumEffects,
		EffectMask: b.accumMask,
	}
	data, cid, err := g.Encode()
	if err != nil {
		return codec.CID{}, errs.Wrap(errs.DecodeError, "builder.FinishGuard", err)
	}
	if _, err := b.st.Put(cid, objects.KindGuard, data); err != nil {
		return codec.CID{}, err
	}
	if name != "" {
		if err := b.st.PutName("guard", name, cid); err != nil {
			return codec.CID{}, err
		}
	}
	b.reset()
	return cid, nil
}

// DispatchSpec is one candidate in an apply_dispatch overload chain:
// the dynamic type atom it matches and the word to call when it does.
type DispatchSpec struct {
	TypeAtom string
	WordCID  codec.CID
}

// ApplyDispatch pops the dispatch subject and builds a chain of GUARD
// nodes trying specs in declaration order, terminating in a DEOPT node
// if none match.
func (b *Builder) ApplyDispatch(specs []DispatchSpec) error {
	if len(specs) == 0 {
		return errs.New(errs.ArityMismatch, "builder.ApplyDispatch", "no candidates")
	}
	args, err := b.popArgs(1)
	if err != nil {
		return err
	}
	arg := args[0]

	deoptCID, err := b.putNode(objects.Node{Kind: objects.NDeopt, Out: []types.Tag{arg.Type}})
	if err != nil {
		return err
	}
	elseEdge := objects.Edge{Producer: deoptCID, Port: 0}
	var resultType types.Tag = arg.Type

	for i := len(specs) - 1; i >= 0; i-- {
		info, err := b.loadWordInfo(specs[i].WordCID)
		if err != nil {
			return err
		}
		callCID, err := b.putNode(objects.Node{
			Kind:    objects.NCall,
			Inputs:  []objects.Edge{{Producer: arg.Producer, Port: arg.Port}},
			Out:     info.Results,
			Effects: info.Effects,
			CallCID: specs[i].WordCID,
		})
		if err != nil {
			return err
		}
		matchEdge := objects.Edge{Producer: callCID, Port: 0}
		if len(info.Results) > 0 {
			resultType = info.Results[0]
		}

		guardCID, err := b.putNode(objects.Node{
			Kind:         objects.NGuard,
			Inputs:       []objects.Edge{{Producer: arg.Producer, Port: arg.Port}},
			Out:          []types.Tag{resultType},
			GuardTypeKey: objects.NewTypeKey(specs[i].TypeAtom),
			GuardMatch:   matchEdge,
			GuardElse:    elseEdge,
		})
		if err != nil {
			return err
		}
		elseEdge = objects.Edge{Producer: guardCID, Port: 0}
	}

	b.stack = append(b.stack, stackItem{Producer: elseEdge.Producer, Port: 0, Type: resultType})
	return nil
}
