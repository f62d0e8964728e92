// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build amd64

package jit

// platformCode returns the hand-encoded amd64 machine code for a JIT
// primitive, using Go's internal register ABI for two int64 args and
// one int64 result (first two integer args in AX/BX, result in AX;
// see cmd/compile/abi-internal.md). Instruction bytes are written out
// directly: golang.org/x/arch ships disassembly tables, not an
// assembler, so there is no library encoder to call into here.
func platformCode(name string) ([]byte, bool) {
	switch name {
	case "add_i64":
		// ADD RAX, RBX; RET
		return []byte{0x48, 0x01, 0xD8, 0xC3}, true
	case "sub_i64":
		// SUB RAX, RBX; RET
		return []byte{0x48, 0x29, 0xD8, 0xC3}, true
	default:
		return nil, false
	}
}
