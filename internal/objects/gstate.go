// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package objects

import (
	"fmt"
	"sort"

	"github.com/kraklabs/march/internal/codec"
)

// GlobalState is a persistable, ordered map from qualified name to
// typed value (§3). Encoding sorts entries by name so the snapshot is
// byte-stable regardless of construction order.
type GlobalState struct {
	Entries map[string]Value
}

type wireGstate struct {
	_       struct{} `cbor:",toarray"`
	Tag     uint64
	Entries []wireGstateEntry
}

type wireGstateEntry struct {
	_     struct{} `cbor:",toarray"`
	Name  string
	Value []any
}

// Encode canonically serializes the snapshot as an array-form record
// tagged with TagGstate, entries sorted by name.
func (g GlobalState) Encode() ([]byte, codec.CID, error) {
	names := make([]string, 0, len(g.Entries))
	for n := range g.Entries {
		names = append(names, n)
	}
	sort.Strings(names)

	w := wireGstate{Tag: uint64(TagGstate), Entries: make([]wireGstateEntry, len(names))}
	for i, n := range names {
		w.Entries[i] = wireGstateEntry{Name: n, Value: g.Entries[n].encode()}
	}
	cid, data, err := codec.CIDOf(w)
	return data, cid, err
}

// DecodeGlobalState parses bytes previously produced by
// GlobalState.Encode.
func DecodeGlobalState(data []byte) (GlobalState, error) {
	var w wireGstate
	if err := codec.DecodeValue(data, &w); err != nil {
		return GlobalState{}, fmt.Errorf("objects: decode gstate: %w", err)
	}
	if Tag(w.Tag) != TagGstate {
		return GlobalState{}, fmt.Errorf("objects: gstate record has wrong tag %d", w.Tag)
	}
	entries := make(map[string]Value, len(w.Entries))
	for _, e := range w.Entries {
		v, err := decodeValue(e.Value)
		if err != nil {
			return GlobalState{}, fmt.Errorf("objects: gstate entry %q: %w", e.Name, err)
		}
		entries[e.Name] = v
	}
	return GlobalState{Entries: entries}, nil
}
