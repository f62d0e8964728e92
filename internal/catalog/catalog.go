// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog is the external YAML loader (§6, §9 [EXPANDED]): it
// parses a tagged mapping of namespace → symbol → !kind {...} and
// drives the builder to emit the corresponding effect/prim/guard/word
// objects, registering each under the store's name index.
package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/march/internal/builder"
	"github.com/kraklabs/march/internal/codec"
	"github.com/kraklabs/march/internal/errs"
	"github.com/kraklabs/march/internal/objects"
	"github.com/kraklabs/march/internal/store"
	"github.com/kraklabs/march/internal/types"
)

// Catalog tags, one per top-level entry kind and per stack-op form in
// a word/guard body (§9 [EXPANDED]). The op-level !prim/!word tags
// share a spelling with the entry-level kind tags but are decoded in
// a different context (runOp vs. loadOne), so they get distinct names
// here for clarity at the call site.
const (
	tagEffect    = "!effect"
	tagPrim      = "!prim"
	tagGuard     = "!guard"
	tagWord      = "!word"
	tagOverloads = "!overloads"
	tagSnapshot  = "!snapshot"

	tagOpPrim  = "!prim"
	tagOpWord  = "!word"
	tagOpQuote = "!quote"
	tagOpDup   = "!dup"
	tagOpSwap  = "!swap"
	tagOpOver  = "!over"
	tagOpLit   = "!lit"
)

// ProgressFunc is called after each top-level catalog entry is
// resolved, so a caller (typically cmd/march) can drive a progress
// bar; current/total are entry counts, not bytes.
type ProgressFunc func(current, total int)

// Loader resolves a catalog document against a store, using one
// builder instance per word/guard body it assembles.
type Loader struct {
	st     *store.Store
	logger *slog.Logger
	onProgress ProgressFunc
}

// New constructs a Loader. A nil logger defaults to slog.Default().
func New(st *store.Store, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{st: st, logger: logger}
}

// SetProgress installs a progress callback, replacing any previous one.
func (l *Loader) SetProgress(fn ProgressFunc) { l.onProgress = fn }

// qualifiedEntry is one namespace/symbol pair and its parsed node,
// flattened out of the two-level YAML mapping for ordered processing.
type qualifiedEntry struct {
	Namespace string
	Symbol    string
	Node      yaml.Node
}

// LoadFile reads and loads a catalog document from disk.
func (l *Loader) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.Wrap(errs.StoreIOError, "catalog.LoadFile", err)
	}
	return l.LoadBytes(data)
}

// LoadBytes parses and loads a catalog document already in memory.
func (l *Loader) LoadBytes(data []byte) error {
	var doc map[string]map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errs.Wrap(errs.DecodeError, "catalog.LoadBytes", err)
	}

	var entries []qualifiedEntry
	for ns, symbols := range doc {
		for sym, node := range symbols {
			entries = append(entries, qualifiedEntry{Namespace: ns, Symbol: sym, Node: node})
		}
	}
	// Deterministic processing order; Go map iteration above is not,
	// and later passes' fixed-point retry loop depends on a stable
	// starting order for its error messages to be reproducible.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Namespace != entries[j].Namespace {
			return entries[i].Namespace < entries[j].Namespace
		}
		return entries[i].Symbol < entries[j].Symbol
	})

	total := len(entries)
	done := 0
	report := func() {
		done++
		if l.onProgress != nil {
			l.onProgress(done, total)
		}
	}

	// Pass 1: effects have no dependencies on other catalog entries.
	var rest []qualifiedEntry
	for _, e := range entries {
		if e.Node.Tag == tagEffect {
			if err := l.loadEffect(e); err != nil {
				return err
			}
			report()
			continue
		}
		rest = append(rest, e)
	}

	// Pass 2: prims depend only on already-loaded effects.
	var pending []qualifiedEntry
	for _, e := range rest {
		if e.Node.Tag == tagPrim {
			if err := l.loadPrim(e); err != nil {
				return err
			}
			report()
			continue
		}
		pending = append(pending, e)
	}

	// Pass 3: guards, words, and overload dispatch tables may reference
	// each other (a word's body can !quote or !word-call another word
	// defined later in the document), so resolve them with a
	// fixed-point retry loop instead of a single ordered pass.
	for len(pending) > 0 {
		var failed []qualifiedEntry
		var lastErr error
		progressed := false
		for _, e := range pending {
			err := l.loadOne(e)
			if err != nil {
				failed = append(failed, e)
				lastErr = err
				continue
			}
			progressed = true
			report()
		}
		if !progressed {
			return errs.Wrap(errs.NotFound, "catalog.LoadBytes",
				fmt.Errorf("could not resolve %d catalog entries (possible cycle or missing reference): %w", len(failed), lastErr))
		}
		pending = failed
	}
	return nil
}

func (l *Loader) loadOne(e qualifiedEntry) error {
	switch e.Node.Tag {
	case tagGuard:
		return l.loadGuard(e)
	case tagWord:
		return l.loadWord(e)
	case tagOverloads:
		return l.loadOverloads(e)
	case tagSnapshot:
		return l.loadSnapshot(e)
	default:
		return errs.New(errs.DecodeError, "catalog.loadOne", fmt.Sprintf("unknown catalog tag %q", e.Node.Tag))
	}
}

func qualifiedName(ns, sym string) string { return ns + "/" + sym }

// resolve looks up a catalog reference by name. A bare name is
// resolved within ns; a name containing "/" is taken as already
// qualified.
func resolve(name, ns string) string {
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			return name
		}
	}
	return qualifiedName(ns, name)
}

func (l *Loader) mustName(scope, name string) (codec.CID, error) {
	cid, ok, err := l.st.GetName(scope, name)
	if err != nil {
		return codec.CID{}, err
	}
	if !ok {
		return codec.CID{}, errs.New(errs.NotFound, "catalog", fmt.Sprintf("%s %q not registered", scope, name))
	}
	return cid, nil
}

func parseTagAtoms(atoms []string) ([]types.Tag, error) {
	out := make([]types.Tag, len(atoms))
	for i, a := range atoms {
		t, err := types.ParseTag(a)
		if err != nil {
			return nil, errs.Wrap(errs.DecodeError, "catalog.parseTagAtoms", err)
		}
		out[i] = t
	}
	return out, nil
}

var domainFlags = map[string]types.EffectMask{
	"io":          types.IO,
	"state_read":  types.StateRead,
	"state_write": types.StateWrite,
	"test":        types.Test,
	"metric":      types.Metric,
}

func parseDomains(names []string) (types.EffectMask, error) {
	var mask types.EffectMask
	for _, n := range names {
		flag, ok := domainFlags[n]
		if !ok {
			return 0, errs.New(errs.DecodeError, "catalog.parseDomains", fmt.Sprintf("unknown effect domain %q", n))
		}
		mask |= flag
	}
	return mask, nil
}

func (l *Loader) loadEffect(e qualifiedEntry) error {
	var body struct {
		Doc string `yaml:"doc"`
	}
	if err := e.Node.Decode(&body); err != nil {
		return errs.Wrap(errs.DecodeError, "catalog.loadEffect", err)
	}
	eff := objects.Effect{Name: qualifiedName(e.Namespace, e.Symbol), Doc: body.Doc}
	data, cid, err := eff.Encode()
	if err != nil {
		return errs.Wrap(errs.DecodeError, "catalog.loadEffect", err)
	}
	if _, err := l.st.Put(cid, objects.KindEffect, data); err != nil {
		return err
	}
	return l.st.PutName("effect", qualifiedName(e.Namespace, e.Symbol), cid)
}

func (l *Loader) loadPrim(e qualifiedEntry) error {
	var body struct {
		Params  []string `yaml:"params"`
		Results []string `yaml:"results"`
		Effects []string `yaml:"effects"`
		Domains []string `yaml:"domains"`
	}
	if err := e.Node.Decode(&body); err != nil {
		return errs.Wrap(errs.DecodeError, "catalog.loadPrim", err)
	}
	params, err := parseTagAtoms(body.Params)
	if err != nil {
		return err
	}
	results, err := parseTagAtoms(body.Results)
	if err != nil {
		return err
	}
	mask, err := parseDomains(body.Domains)
	if err != nil {
		return err
	}
	effects := make([]codec.CID, len(body.Effects))
	for i, name := range body.Effects {
		cid, err := l.mustName("effect", resolve(name, e.Namespace))
		if err != nil {
			return err
		}
		effects[i] = cid
	}

	p := objects.Prim{Params: params, Results: results, Effects: effects, EffectMask: mask}
	data, cid, err := p.Encode()
	if err != nil {
		return errs.Wrap(errs.DecodeError, "catalog.loadPrim", err)
	}
	if _, err := l.st.Put(cid, objects.KindPrim, data); err != nil {
		return err
	}
	return l.st.PutName("prim", qualifiedName(e.Namespace, e.Symbol), cid)
}

func (l *Loader) loadGuard(e qualifiedEntry) error {
	var body struct {
		Params []string    `yaml:"params"`
		Body   []yaml.Node `yaml:"body"`
	}
	if err := e.Node.Decode(&body); err != nil {
		return errs.Wrap(errs.DecodeError, "catalog.loadGuard", err)
	}
	params, err := parseTagAtoms(body.Params)
	if err != nil {
		return err
	}

	b := builder.New(l.st, builder.DefaultOptions(), l.logger)
	if err := b.BeginGuard(params); err != nil {
		return err
	}
	if err := l.runOps(b, body.Body, e.Namespace); err != nil {
		return err
	}
	cid, err := b.FinishGuard(qualifiedName(e.Namespace, e.Symbol))
	if err != nil {
		return err
	}
	l.logger.Debug("catalog.guard", "name", qualifiedName(e.Namespace, e.Symbol), "cid", cid.Hex())
	return nil
}

func (l *Loader) loadWord(e qualifiedEntry) error {
	var body struct {
		Params  []string    `yaml:"params"`
		Results []string    `yaml:"results"`
		Body    []yaml.Node `yaml:"body"`
		Guards  []string    `yaml:"guards"`
	}
	if err := e.Node.Decode(&body); err != nil {
		return errs.Wrap(errs.DecodeError, "catalog.loadWord", err)
	}
	params, err := parseTagAtoms(body.Params)
	if err != nil {
		return err
	}
	results, err := parseTagAtoms(body.Results)
	if err != nil {
		return err
	}

	b := builder.New(l.st, builder.DefaultOptions(), l.logger)
	if err := b.BeginWord(params); err != nil {
		return err
	}
	for _, name := range body.Guards {
		cid, err := l.mustName("guard", resolve(name, e.Namespace))
		if err != nil {
			return err
		}
		b.AttachGuard(cid)
	}
	if err := l.runOps(b, body.Body, e.Namespace); err != nil {
		return err
	}
	cid, err := b.FinishWord(results, qualifiedName(e.Namespace, e.Symbol))
	if err != nil {
		return err
	}
	l.logger.Debug("catalog.word", "name", qualifiedName(e.Namespace, e.Symbol), "cid", cid.Hex())
	return nil
}

// loadOverloads builds a dispatch word: its body is exactly one
// apply_dispatch over the declared candidates, taking one argument
// (the dispatch subject) and forwarding to whichever candidate's
// runtime type matches.
func (l *Loader) loadOverloads(e qualifiedEntry) error {
	var body struct {
		Param      string `yaml:"param"`
		Candidates []struct {
			Type string `yaml:"type"`
			Word string `yaml:"word"`
		} `yaml:"candidates"`
	}
	if err := e.Node.Decode(&body); err != nil {
		return errs.Wrap(errs.DecodeError, "catalog.loadOverloads", err)
	}
	paramTag, err := types.ParseTag(body.Param)
	if err != nil {
		return errs.Wrap(errs.DecodeError, "catalog.loadOverloads", err)
	}

	specs := make([]builder.DispatchSpec, len(body.Candidates))
	var resultTags []types.Tag
	for i, c := range body.Candidates {
		wordCID, err := l.mustName("word", resolve(c.Word, e.Namespace))
		if err != nil {
			return err
		}
		specs[i] = builder.DispatchSpec{TypeAtom: c.Type, WordCID: wordCID}
		if i == 0 {
			data, err := l.st.LoadForKind(wordCID, objects.KindWord)
			if err != nil {
				return err
			}
			w, err := objects.DecodeWord(data)
			if err != nil {
				return errs.Wrap(errs.DecodeError, "catalog.loadOverloads", err)
			}
			resultTags = w.Results
		}
	}

	b := builder.New(l.st, builder.DefaultOptions(), l.logger)
	if err := b.BeginWord([]types.Tag{paramTag}); err != nil {
		return err
	}
	if err := b.ApplyDispatch(specs); err != nil {
		return err
	}
	_, err = b.FinishWord(resultTags, qualifiedName(e.Namespace, e.Symbol))
	return err
}

func (l *Loader) loadSnapshot(e qualifiedEntry) error {
	var body struct {
		Entries map[string]yaml.Node `yaml:"entries"`
	}
	if err := e.Node.Decode(&body); err != nil {
		return errs.Wrap(errs.DecodeError, "catalog.loadSnapshot", err)
	}
	entries := make(map[string]objects.Value, len(body.Entries))
	for name, node := range body.Entries {
		v, err := decodeSnapshotValue(node)
		if err != nil {
			return err
		}
		entries[name] = v
	}
	snap := objects.GlobalState{Entries: entries}
	data, cid, err := snap.Encode()
	if err != nil {
		return errs.Wrap(errs.DecodeError, "catalog.loadSnapshot", err)
	}
	if _, err := l.st.Put(cid, objects.KindGstate, data); err != nil {
		return err
	}
	return l.st.PutName(string(objects.KindGstate), qualifiedName(e.Namespace, e.Symbol), cid)
}

func decodeSnapshotValue(node yaml.Node) (objects.Value, error) {
	switch node.Tag {
	case "!i64":
		var n int64
		if err := node.Decode(&n); err != nil {
			return objects.Value{}, errs.Wrap(errs.DecodeError, "catalog.decodeSnapshotValue", err)
		}
		return objects.I64Value(n), nil
	case "!f64":
		var f float64
		if err := node.Decode(&f); err != nil {
			return objects.Value{}, errs.Wrap(errs.DecodeError, "catalog.decodeSnapshotValue", err)
		}
		return objects.F64Value(f), nil
	case "!unit", "":
		return objects.UnitValue(), nil
	case "!text":
		var s string
		if err := node.Decode(&s); err != nil {
			return objects.Value{}, errs.Wrap(errs.DecodeError, "catalog.decodeSnapshotValue", err)
		}
		return objects.TextValue(s), nil
	default:
		return objects.Value{}, errs.New(errs.DecodeError, "catalog.decodeSnapshotValue", fmt.Sprintf("unsupported snapshot value tag %q", node.Tag))
	}
}

// runOps replays a parsed stack-op sequence against b.
func (l *Loader) runOps(b *builder.Builder, ops []yaml.Node, ns string) error {
	for _, op := range ops {
		if err := l.runOp(b, op, ns); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) runOp(b *builder.Builder, op yaml.Node, ns string) error {
	switch op.Tag {
	case tagOpPrim:
		var name string
		if err := op.Decode(&name); err != nil {
			return errs.Wrap(errs.DecodeError, "catalog.runOp", err)
		}
		cid, err := l.mustName("prim", resolve(name, ns))
		if err != nil {
			return err
		}
		return b.ApplyPrim(cid)
	case tagOpWord:
		var name string
		if err := op.Decode(&name); err != nil {
			return errs.Wrap(errs.DecodeError, "catalog.runOp", err)
		}
		cid, err := l.mustName("word", resolve(name, ns))
		if err != nil {
			return err
		}
		return b.ApplyWord(cid)
	case tagOpQuote:
		var name string
		if err := op.Decode(&name); err != nil {
			return errs.Wrap(errs.DecodeError, "catalog.runOp", err)
		}
		// A quote target may be a word or a guard; try word first.
		cid, ok, err := l.st.GetName("word", resolve(name, ns))
		if err != nil {
			return err
		}
		if !ok {
			cid, err = l.mustName("guard", resolve(name, ns))
			if err != nil {
				return err
			}
		}
		return b.Quote(cid)
	case tagOpDup:
		return b.Dup()
	case tagOpSwap:
		return b.Swap()
	case tagOpOver:
		return b.Over()
	case tagOpLit:
		var n int64
		if err := op.Decode(&n); err != nil {
			return errs.Wrap(errs.DecodeError, "catalog.runOp", err)
		}
		return b.PushLitI64(n)
	default:
		return errs.New(errs.DecodeError, "catalog.runOp", fmt.Sprintf("unknown stack op tag %q", op.Tag))
	}
}
