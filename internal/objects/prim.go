// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package objects

import (
	"fmt"
	"sort"

	"github.com/kraklabs/march/internal/codec"
	"github.com/kraklabs/march/internal/types"
)

// Prim is a named built-in operation: a fixed signature, a set of
// declared effect-CID dependencies, and an effect mask over domains
// (§3).
type Prim struct {
	Params     []types.Tag
	Results    []types.Tag
	Effects    []codec.CID // deduplicated, stored sorted by CID
	EffectMask types.EffectMask
}

// sortCIDs returns cids sorted by hex and deduplicated.
func sortCIDs(cids []codec.CID) []codec.CID {
	out := append([]codec.CID(nil), cids...)
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	deduped := out[:0]
	for i, c := range out {
		if i == 0 || c != deduped[len(deduped)-1] {
			deduped = append(deduped, c)
		}
	}
	return deduped
}

func tagStrings(ts []types.Tag) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.String()
	}
	return out
}

func parseTags(ss []string) ([]types.Tag, error) {
	out := make([]types.Tag, len(ss))
	for i, s := range ss {
		t, err := types.ParseTag(s)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func cidBytesList(cids []codec.CID) [][]byte {
	out := make([][]byte, len(cids))
	for i, c := range cids {
		b := make([]byte, 32)
		copy(b, c[:])
		out[i] = b
	}
	return out
}

func parseCIDBytesList(raw [][]byte) ([]codec.CID, error) {
	out := make([]codec.CID, len(raw))
	for i, b := range raw {
		if len(b) != 32 {
			return nil, fmt.Errorf("objects: CID field must be 32 bytes, got %d", len(b))
		}
		copy(out[i][:], b)
	}
	return out, nil
}

func cidBytes(c codec.CID) []byte {
	b := make([]byte, 32)
	copy(b, c[:])
	return b
}

func parseCIDBytes(b []byte) (codec.CID, error) {
	var c codec.CID
	if len(b) == 0 {
		return c, nil
	}
	if len(b) != 32 {
		return c, fmt.Errorf("objects: CID field must be 32 bytes, got %d", len(b))
	}
	copy(c[:], b)
	return c, nil
}

type wirePrim struct {
	Kind       string   `cbor:"kind"`
	Params     []string `cbor:"params"`
	Results    []string `cbor:"results"`
	Effects    [][]byte `cbor:"effects"`
	EffectMask uint32   `cbor:"effect_mask"`
}

// Encode canonically serializes the Prim as a map-form record tagged
// kind="prim".
func (p Prim) Encode() ([]byte, codec.CID, error) {
	w := wirePrim{
		Kind:       string(KindPrim),
		Params:     tagStrings(p.Params),
		Results:    tagStrings(p.Results),
		Effects:    cidBytesList(sortCIDs(p.Effects)),
		EffectMask: uint32(p.EffectMask),
	}
	cid, data, err := codec.CIDOf(w)
	return data, cid, err
}

// DecodePrim parses bytes previously produced by Prim.Encode. A mask
// with no declared effects is normalized to IO, per the legacy-load
// invariant in §3.
func DecodePrim(data []byte) (Prim, error) {
	var w wirePrim
	if err := codec.DecodeValue(data, &w); err != nil {
		return Prim{}, fmt.Errorf("objects: decode prim: %w", err)
	}
	if Kind(w.Kind) != KindPrim {
		return Prim{}, fmt.Errorf("objects: prim record has wrong kind tag %q", w.Kind)
	}
	params, err := parseTags(w.Params)
	if err != nil {
		return Prim{}, err
	}
	results, err := parseTags(w.Results)
	if err != nil {
		return Prim{}, err
	}
	effects, err := parseCIDBytesList(w.Effects)
	if err != nil {
		return Prim{}, err
	}
	mask := types.EffectMask(w.EffectMask).Normalize(len(effects) > 0)
	return Prim{Params: params, Results: results, Effects: effects, EffectMask: mask}, nil
}
