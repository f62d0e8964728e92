// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package objects

import (
	"fmt"

	"github.com/kraklabs/march/internal/codec"
	"github.com/kraklabs/march/internal/types"
)

// Word is the entry point of a graph: a root-node CID plus its
// parameter/result/effect signature and optional guards (§3).
type Word struct {
	Root       codec.CID
	Params     []types.Tag
	Results    []types.Tag
	Effects    []codec.CID // stored sorted by CID
	EffectMask types.EffectMask
	Guards     []codec.CID // preconditions, tried in order before the body
}

// wireWord mirrors §6's summarized Word format extended with the
// effect_mask and guards fields §3's data model declares; field order
// is the encoding order.
type wireWord struct {
	_          struct{} `cbor:",toarray"`
	Tag        uint64
	Root       []byte
	Params     []string
	Results    []string
	Effects    [][]byte
	EffectMask uint32
	Guards     [][]byte
}

// Encode canonically serializes the Word as an array-form record
// tagged with TagWord.
func (w Word) Encode() ([]byte, codec.CID, error) {
	ww := wireWord{
		Tag:        uint64(TagWord),
		Root:       cidBytes(w.Root),
		Params:     tagStrings(w.Params),
		Results:    tagStrings(w.Results),
		Effects:    cidBytesList(sortCIDs(w.Effects)),
		EffectMask: uint32(w.EffectMask),
		Guards:     cidBytesList(w.Guards),
	}
	cid, data, err := codec.CIDOf(ww)
	return data, cid, err
}

// DecodeWord parses bytes previously produced by Word.Encode.
func DecodeWord(data []byte) (Word, error) {
	var ww wireWord
	if err := codec.DecodeValue(data, &ww); err != nil {
		return Word{}, fmt.Errorf("objects: decode word: %w", err)
	}
	if Tag(ww.Tag) != TagWord {
		return Word{}, fmt.Errorf("objects: word record has wrong tag %d", ww.Tag)
	}
	root, err := parseCIDBytes(ww.Root)
	if err != nil {
		return Word{}, err
	}
	params, err := parseTags(ww.Params)
	if err != nil {
		return Word{}, err
	}
	results, err := parseTags(ww.Results)
	if err != nil {
		return Word{}, err
	}
	effects, err := parseCIDBytesList(ww.Effects)
	if err != nil {
		return Word{}, err
	}
	guards, err := parseCIDBytesList(ww.Guards)
	if err != nil {
		return Word{}, err
	}
	mask := types.EffectMask(ww.EffectMask).Normalize(len(effects) > 0)
	return Word{Root: root, Params: params, Results: results, Effects: effects, EffectMask: mask, Guards: guards}, nil
}
