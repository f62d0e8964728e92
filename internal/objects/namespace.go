// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package objects

import (
	"fmt"
	"sort"

	"github.com/kraklabs/march/internal/codec"
)

// Namespace binds an ordered set of interface imports and word exports
// to the interface it satisfies (§3).
type Namespace struct {
	Imports []codec.CID // interface CIDs
	Exports []codec.CID // word CIDs
	Iface   codec.CID
}

type wireNamespace struct {
	Kind    string   `cbor:"kind"`
	Imports [][]byte `cbor:"imports"`
	Exports [][]byte `cbor:"exports"`
	Iface   []byte   `cbor:"iface"`
}

func sortedCIDHexes(cids []codec.CID) []codec.CID {
	out := append([]codec.CID(nil), cids...)
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}

// Encode canonically serializes the Namespace as a map-form record
// tagged kind="namespace", imports/exports sorted.
func (ns Namespace) Encode() ([]byte, codec.CID, error) {
	w := wireNamespace{
		Kind:    string(KindNamespace),
		Imports: cidBytesList(sortedCIDHexes(ns.Imports)),
		Exports: cidBytesList(sortedCIDHexes(ns.Exports)),
		Iface:   cidBytes(ns.Iface),
	}
	cid, data, err := codec.CIDOf(w)
	return data, cid, err
}

// DecodeNamespace parses bytes previously produced by Namespace.Encode.
func DecodeNamespace(data []byte) (Namespace, error) {
	var w wireNamespace
	if err := codec.DecodeValue(data, &w); err != nil {
		return Namespace{}, fmt.Errorf("objects: decode namespace: %w", err)
	}
	if Kind(w.Kind) != KindNamespace {
		return Namespace{}, fmt.Errorf("objects: namespace record has wrong kind tag %q", w.Kind)
	}
	imports, err := parseCIDBytesList(w.Imports)
	if err != nil {
		return Namespace{}, err
	}
	exports, err := parseCIDBytesList(w.Exports)
	if err != nil {
		return Namespace{}, err
	}
	iface, err := parseCIDBytes(w.Iface)
	if err != nil {
		return Namespace{}, err
	}
	return Namespace{Imports: imports, Exports: exports, Iface: iface}, nil
}
