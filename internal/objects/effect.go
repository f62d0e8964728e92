// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package objects

import (
	"fmt"

	"github.com/kraklabs/march/internal/codec"
)

// Effect is the declarative effect descriptor (§3): a human-readable
// name, referenced by CID from prims and words.
type Effect struct {
	Name string
	Doc  string // optional; empty means absent
}

type wireEffect struct {
	Kind string `cbor:"kind"`
	Name string `cbor:"name"`
	Doc  string `cbor:"doc,omitempty"`
}

// Encode canonically serializes the Effect as a map-form record tagged
// kind="effect".
func (e Effect) Encode() ([]byte, codec.CID, error) {
	cid, data, err := codec.CIDOf(wireEffect{Kind: string(KindEffect), Name: e.Name, Doc: e.Doc})
	return data, cid, err
}

// DecodeEffect parses bytes previously produced by Effect.Encode,
// rejecting a record whose kind tag disagrees with "effect".
func DecodeEffect(data []byte) (Effect, error) {
	var w wireEffect
	if err := codec.DecodeValue(data, &w); err != nil {
		return Effect{}, fmt.Errorf("objects: decode effect: %w", err)
	}
	if Kind(w.Kind) != KindEffect {
		return Effect{}, fmt.Errorf("objects: effect record has wrong kind tag %q", w.Kind)
	}
	return Effect{Name: w.Name, Doc: w.Doc}, nil
}
