// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package objects

import (
	"fmt"

	"github.com/kraklabs/march/internal/codec"
	"github.com/kraklabs/march/internal/types"
)

// Guard has the same shape as Word but is interpreted as a predicate
// quotation: its result arity must be exactly one i64 (§3). It has no
// guards-of-its-own field, per §6.
type Guard struct {
	Root       codec.CID
	Params     []types.Tag
	Results    []types.Tag
	Effects    []codec.CID
	EffectMask types.EffectMask
}

type wireGuard struct {
	_          struct{} `cbor:",toarray"`
	Tag        uint64
	Root       []byte
	Params     []string
	Results    []string
	Effects    [][]byte
	EffectMask uint32
}

// Validate enforces the Guard-specific invariant: exactly one i64
// result.
func (g Guard) Validate() error {
	if len(g.Results) != 1 || g.Results[0] != types.I64 {
		return fmt.Errorf("objects: guard must have exactly one i64 result, got %v", g.Results)
	}
	return nil
}

// Encode canonically serializes the Guard as an array-form record
// tagged with TagGuard.
func (g Guard) Encode() ([]byte, codec.CID, error) {
	if err := g.Validate(); err != nil {
		return nil, codec.CID{}, err
	}
	wg := wireGuard{
		Tag:        uint64(TagGuard),
		Root:       cidBytes(g.Root),
		Params:     tagStrings(g.Params),
		Results:    tagStrings(g.Results),
		Effects:    cidBytesList(sortCIDs(g.Effects)),
		EffectMask: uint32(g.EffectMask),
	}
	cid, data, err := codec.CIDOf(wg)
	return data, cid, err
}

// DecodeGuard parses bytes previously produced by Guard.Encode.
func DecodeGuard(data []byte) (Guard, error) {
	var wg wireGuard
	if err := codec.DecodeValue(data, &wg); err != nil {
		return Guard{}, fmt.Errorf("objects: decode guard: %w", err)
	}
	if Tag(wg.Tag) != TagGuard {
		return Guard{}, fmt.Errorf("objects: guard record has wrong tag %d", wg.Tag)
	}
	root, err := parseCIDBytes(wg.Root)
	if err != nil {
		return Guard{}, err
	}
	params, err := parseTags(wg.Params)
	if err != nil {
		return Guard{}, err
	}
	results, err := parseTags(wg.Results)
	if err != nil {
		return Guard{}, err
	}
	effects, err := parseCIDBytesList(wg.Effects)
	if err != nil {
		return Guard{}, err
	}
	mask := types.EffectMask(wg.EffectMask).Normalize(len(effects) > 0)
	g := Guard{Root: root, Params: params, Results: results, Effects: effects, EffectMask: mask}
	if err := g.Validate(); err != nil {
		return Guard{}, err
	}
	return g, nil
}
