// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package jit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup_UnknownNameFallsBack(t *testing.T) {
	_, ok := Lookup("mul_i64")
	assert.False(t, ok, "no code page is defined for mul_i64 on any architecture")
}

func TestLookup_KnownNamesInstallOrFallBackCleanly(t *testing.T) {
	for _, name := range []string{"add_i64", "sub_i64"} {
		op, ok := Lookup(name)
		if !ok {
			// Unsupported GOARCH or a sandboxed environment that denies
			// mmap/mprotect; the contract is "never panic", not "always succeed".
			continue
		}
		assert.NotNil(t, op)
	}
}

func TestLookup_IsIdempotent(t *testing.T) {
	op1, ok1 := Lookup("add_i64")
	op2, ok2 := Lookup("add_i64")
	assert.Equal(t, ok1, ok2)
	if ok1 {
		assert.NotNil(t, op1)
		assert.NotNil(t, op2)
	}
}
