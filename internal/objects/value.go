// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package objects

import (
	"fmt"

	"github.com/kraklabs/march/internal/codec"
)

// ValueKind discriminates the typed variants a global-state snapshot
// (and a LIT node's literal payload) can hold.
type ValueKind uint8

const (
	VI64 ValueKind = iota
	VF64
	VUnit
	VQuote
	VTuple
	VText
)

// Value is the persistable, typed-variant value used by global-state
// snapshots (§3) and literal node payloads. It deliberately excludes
// Token: tokens are a purely runtime concept (§4.5) and are never
// persisted.
type Value struct {
	Kind  ValueKind
	I64   int64
	F64   float64
	Quote codec.CID
	Tuple []Value
	Text  string
}

func I64Value(n int64) Value      { return Value{Kind: VI64, I64: n} }
func F64Value(f float64) Value    { return Value{Kind: VF64, F64: f} }
func UnitValue() Value            { return Value{Kind: VUnit} }
func QuoteValue(c codec.CID) Value { return Value{Kind: VQuote, Quote: c} }
func TupleValue(vs []Value) Value { return Value{Kind: VTuple, Tuple: vs} }
func TextValue(s string) Value    { return Value{Kind: VText, Text: s} }

// encode renders a Value into a small CBOR-friendly tree: a 2-element
// array [kind-string, payload].
func (v Value) encode() []any {
	switch v.Kind {
	case VI64:
		return []any{"i64", v.I64}
	case VF64:
		return []any{"f64", v.F64}
	case VUnit:
		return []any{"unit", nil}
	case VQuote:
		b := make([]byte, 32)
		copy(b, v.Quote[:])
		return []any{"quote", b}
	case VTuple:
		elems := make([]any, len(v.Tuple))
		for i, e := range v.Tuple {
			elems[i] = e.encode()
		}
		return []any{"tuple", elems}
	case VText:
		return []any{"text", v.Text}
	default:
		return []any{"unit", nil}
	}
}

func decodeValue(raw any) (Value, error) {
	arr, ok := raw.([]any)
	if !ok || len(arr) != 2 {
		return Value{}, fmt.Errorf("objects: malformed value")
	}
	tag, ok := arr[0].(string)
	if !ok {
		return Value{}, fmt.Errorf("objects: value tag is not text")
	}
	switch tag {
	case "i64":
		n, err := asInt64(arr[1])
		if err != nil {
			return Value{}, err
		}
		return I64Value(n), nil
	case "f64":
		f, err := asFloat64(arr[1])
		if err != nil {
			return Value{}, err
		}
		return F64Value(f), nil
	case "unit":
		return UnitValue(), nil
	case "quote":
		b, ok := arr[1].([]byte)
		if !ok || len(b) != 32 {
			return Value{}, fmt.Errorf("objects: quote value must be 32 bytes")
		}
		var c codec.CID
		copy(c[:], b)
		return QuoteValue(c), nil
	case "tuple":
		elems, ok := arr[1].([]any)
		if !ok {
			return Value{}, fmt.Errorf("objects: tuple value must be an array")
		}
		out := make([]Value, len(elems))
		for i, e := range elems {
			v, err := decodeValue(e)
			if err != nil {
				return Value{}, err
			}
			out[i] = v
		}
		return TupleValue(out), nil
	case "text":
		s, ok := arr[1].(string)
		if !ok {
			return Value{}, fmt.Errorf("objects: text value must be a string")
		}
		return TextValue(s), nil
	default:
		return Value{}, fmt.Errorf("objects: unknown value tag %q", tag)
	}
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("objects: expected integer, got %T", v)
	}
}

func asFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("objects: expected float, got %T", v)
	}
}
