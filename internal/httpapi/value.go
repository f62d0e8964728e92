// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package httpapi

import (
	"fmt"

	"github.com/kraklabs/march/internal/codec"
	"github.com/kraklabs/march/internal/interp"
	"github.com/kraklabs/march/internal/types"
)

// wireValue is the JSON rendering of an interp.Value used by the
// run-word ABI's request/response bodies: {"type": "...", ...}.
type wireValue struct {
	Type string  `json:"type"`
	I64  int64   `json:"i64,omitempty"`
	F64  float64 `json:"f64,omitempty"`
	Text string  `json:"text,omitempty"`
	Quote string `json:"quote,omitempty"`
}

func (v wireValue) toInterp() (interp.Value, error) {
	switch v.Type {
	case "i64":
		return interp.I64(v.I64), nil
	case "f64":
		return interp.F64(v.F64), nil
	case "unit":
		return interp.Unit(), nil
	case "text":
		return interp.Value{Tag: types.Ptr, Text: v.Text}, nil
	case "ptr":
		cid, err := codec.ParseCID(v.Quote)
		if err != nil {
			return interp.Value{}, fmt.Errorf("httpapi: decode ptr value: %w", err)
		}
		return interp.Value{Tag: types.Ptr, Quote: cid}, nil
	default:
		return interp.Value{}, fmt.Errorf("httpapi: unsupported wire value type %q", v.Type)
	}
}

func fromInterp(v interp.Value) wireValue {
	switch v.DynamicAtom() {
	case "i64":
		return wireValue{Type: "i64", I64: v.I64}
	case "f64":
		return wireValue{Type: "f64", F64: v.F64}
	case "unit":
		return wireValue{Type: "unit"}
	default:
		if v.Text != "" {
			return wireValue{Type: "text", Text: v.Text}
		}
		return wireValue{Type: "ptr", Quote: v.Quote.Hex()}
	}
}
