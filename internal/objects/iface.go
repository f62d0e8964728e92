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

// Symbol is one named entry of an Interface.
type Symbol struct {
	Name    string
	Params  []types.Tag
	Results []types.Tag
	Effects []codec.CID // stored sorted by CID
}

// Interface is an ordered list of named symbols, stored sorted by name
// (§3).
type Interface struct {
	Symbols []Symbol
}

type wireSymbol struct {
	Name    string   `cbor:"name"`
	Params  []string `cbor:"params"`
	Results []string `cbor:"results"`
	Effects [][]byte `cbor:"effects"`
}

type wireIface struct {
	_       struct{} `cbor:",toarray"`
	Tag     uint64
	Symbols []wireSymbol
}

// Encode canonically serializes the Interface as an array-form record
// tagged with TagIface, symbols sorted by name.
func (iface Interface) Encode() ([]byte, codec.CID, error) {
	syms := append([]Symbol(nil), iface.Symbols...)
	sort.Slice(syms, func(i, j int) bool { return syms[i].Name < syms[j].Name })

	w := wireIface{Tag: uint64(TagIface), Symbols: make([]wireSymbol, len(syms))}
	for i, s := range syms {
		w.Symbols[i] = wireSymbol{
			Name:    s.Name,
			Params:  tagStrings(s.Params),
			Results: tagStrings(s.Results),
			Effects: cidBytesList(sortCIDs(s.Effects)),
		}
	}
	cid, data, err := codec.CIDOf(w)
	return data, cid, err
}

// DecodeInterface parses bytes previously produced by Interface.Encode.
func DecodeInterface(data []byte) (Interface, error) {
	var w wireIface
	if err := codec.DecodeValue(data, &w); err != nil {
		return Interface{}, fmt.Errorf("objects: decode iface: %w", err)
	}
	if Tag(w.Tag) != TagIface {
		return Interface{}, fmt.Errorf("objects: iface record has wrong tag %d", w.Tag)
	}
	syms := make([]Symbol, len(w.Symbols))
	for i, ws := range w.Symbols {
		params, err := parseTags(ws.Params)
		if err != nil {
			return Interface{}, err
		}
		results, err := parseTags(ws.Results)
		if err != nil {
			return Interface{}, err
		}
		effects, err := parseCIDBytesList(ws.Effects)
		if err != nil {
			return Interface{}, err
		}
		syms[i] = Symbol{Name: ws.Name, Params: params, Results: results, Effects: effects}
	}
	return Interface{Symbols: syms}, nil
}
