// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package interp

import (
	"github.com/kraklabs/march/internal/codec"
	"github.com/kraklabs/march/internal/objects"
	"github.com/kraklabs/march/internal/types"
)

// Value is a runtime value flowing through graph evaluation. Unlike
// objects.Value it can also hold a Token — tokens are a purely runtime
// concept that is never persisted (§4.5).
type Value struct {
	Tag   types.Tag
	I64   int64
	F64   float64
	Quote codec.CID
	Tuple []Value
	Text  string
}

func I64(n int64) Value   { return Value{Tag: types.I64, I64: n} }
func F64(f float64) Value { return Value{Tag: types.F64, F64: f} }
func Unit() Value         { return Value{Tag: types.Unit} }
func Token(d types.Domain) Value { return Value{Tag: d.TokenTag()} }

// DynamicAtom returns the GUARD-comparable dynamic type atom for v, per
// §4.5: I64→i64, F64→f64, Ptr/Tuple/Quote→ptr, Unit→unit, any
// token variant→token.
func (v Value) DynamicAtom() string {
	switch {
	case v.Tag == types.I64:
		return "i64"
	case v.Tag == types.F64:
		return "f64"
	case v.Tag == types.Unit:
		return "unit"
	case v.Tag.IsTokenTag():
		return "token"
	default:
		return "ptr"
	}
}

// fromObjectsValue converts a persisted objects.Value (used by LIT
// payloads and global-state entries) into a runtime Value.
func fromObjectsValue(v objects.Value) (Value, error) {
	switch v.Kind {
	case objects.VI64:
		return I64(v.I64), nil
	case objects.VF64:
		return F64(v.F64), nil
	case objects.VUnit:
		return Unit(), nil
	case objects.VQuote:
		return Value{Tag: types.Ptr, Quote: v.Quote}, nil
	case objects.VText:
		return Value{Tag: types.Ptr, Text: v.Text}, nil
	case objects.VTuple:
		elems := make([]Value, len(v.Tuple))
		for i, e := range v.Tuple {
			conv, err := fromObjectsValue(e)
			if err != nil {
				return Value{}, err
			}
			elems[i] = conv
		}
		return Value{Tag: types.Ptr, Tuple: elems}, nil
	default:
		return Value{}, errUnknownValueKind
	}
}
