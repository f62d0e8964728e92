// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package codec

import (
	"sync"

	"github.com/fxamacker/cbor/v2"
)

var (
	encModeOnce sync.Once
	encMode     cbor.EncMode
	decMode     cbor.DecMode
)

func modes() (cbor.EncMode, cbor.DecMode) {
	encModeOnce.Do(func() {
		opts := cbor.CanonicalEncOptions()
		// Canonical mode already sorts map keys and uses shortest-form
		// headers (RFC 8949 §4.2); Time/BigInt/etc. aren't part of our
		// data model so the defaults otherwise are left alone.
		var err error
		encMode, err = opts.EncMode()
		if err != nil {
			panic("codec: build canonical encoder: " + err.Error())
		}
		decMode, err = cbor.DecOptions{}.DecMode()
		if err != nil {
			panic("codec: build decoder: " + err.Error())
		}
	})
	return encMode, decMode
}

// EncodeValue canonically encodes v. Maps are sorted by their encoded
// key bytes and array element order is whatever the caller constructed
// it in — callers are responsible for pre-sorting any set-like field
// (effects, imports/exports, interface symbols) before calling this.
func EncodeValue(v any) ([]byte, error) {
	enc, _ := modes()
	return enc.Marshal(v)
}

// DecodeValue decodes canonically-encoded bytes into v.
func DecodeValue(data []byte, v any) error {
	_, dec := modes()
	return dec.Unmarshal(data, v)
}

// CIDOf canonically encodes v and returns both its CID and the encoded
// bytes (the bytes are what gets persisted; the CID is derived from
// them, never recomputed from a decoded copy).
func CIDOf(v any) (CID, []byte, error) {
	b, err := EncodeValue(v)
	if err != nil {
		return CID{}, nil, err
	}
	return Sum(b), b, nil
}
