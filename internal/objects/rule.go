// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package objects

import (
	"fmt"

	"github.com/kraklabs/march/internal/codec"
)

// Rule is an interaction-net rewrite rule: the two active-pair agent
// kinds it fires on and the rewire body (§3, §4.6). LhsA/LhsB are agent
// kind names, not CIDs — rules are resolved by exact (kind_a, kind_b)
// then symmetric (kind_b, kind_a).
type Rule struct {
	LhsA   string
	LhsB   string
	Rewire string // "(pair-unpair)" or an S-expression per the rewire DSL
}

type wireRule struct {
	Kind   string `cbor:"kind"`
	LhsA   string `cbor:"lhs_a"`
	LhsB   string `cbor:"lhs_b"`
	Rewire string `cbor:"rewire"`
}

// Encode canonically serializes the Rule as a map-form record tagged
// kind="rule".
func (r Rule) Encode() ([]byte, codec.CID, error) {
	cid, data, err := codec.CIDOf(wireRule{Kind: string(KindRule), LhsA: r.LhsA, LhsB: r.LhsB, Rewire: r.Rewire})
	return data, cid, err
}

// DecodeRule parses bytes previously produced by Rule.Encode.
func DecodeRule(data []byte) (Rule, error) {
	var w wireRule
	if err := codec.DecodeValue(data, &w); err != nil {
		return Rule{}, fmt.Errorf("objects: decode rule: %w", err)
	}
	if Kind(w.Kind) != KindRule {
		return Rule{}, fmt.Errorf("objects: rule record has wrong kind tag %q", w.Kind)
	}
	return Rule{LhsA: w.LhsA, LhsB: w.LhsB, Rewire: w.Rewire}, nil
}
