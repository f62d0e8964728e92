// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package codec implements March's canonical binary encoding and the
// CID (content identifier) derived from it. Encoding is built on
// fxamacker/cbor's canonical mode: sorted map keys and shortest-form
// integer/length headers, restricted to the subset of CBOR the core
// data model needs (arrays, maps, (u)ints, text, byte strings, f64).
package codec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// CID is the 32-byte SHA-256 digest of an object's canonical encoding.
type CID [32]byte

// Zero is the all-zero CID; no stored object ever hashes to it in
// practice, but callers should not rely on that to mean "absent" —
// use a pointer or bool alongside it instead.
var Zero CID

// Hex renders the CID as lowercase hex, per spec §3.
func (c CID) Hex() string { return hex.EncodeToString(c[:]) }

func (c CID) String() string { return c.Hex() }

// IsZero reports whether c is the zero value.
func (c CID) IsZero() bool { return c == Zero }

// ParseCID decodes a 64-character lowercase hex string into a CID.
func ParseCID(s string) (CID, error) {
	if len(s) != 64 {
		return CID{}, fmt.Errorf("codec: CID must be 64 hex characters, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return CID{}, fmt.Errorf("codec: decode CID hex: %w", err)
	}
	var c CID
	copy(c[:], b)
	return c, nil
}

// Sum computes the CID of raw bytes (the caller is responsible for
// having produced them via canonical encoding).
func Sum(data []byte) CID { return CID(sha256.Sum256(data)) }
