// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package jit installs the two anonymous, lazily-mapped code pages
// described in §4.3/§5: one each for the primitives add_i64 and
// sub_i64. A page is RW while its machine code is copied in, then
// flipped to RX with mprotect and never written again. Lookup reports
// false on any unsupported GOARCH or mmap/mprotect failure;
// callers MUST fall back to the pure Go primitive in that case — this
// package never panics to enforce JIT use.
package jit

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// BinOp is a compiled two-argument, one-result int64 primitive.
type BinOp func(a, b int64) int64

var (
	mu       sync.Mutex
	pages    = map[string][]byte{}
	compiled = map[string]BinOp{}
	failed   = map[string]bool{}
)

// Lookup returns the installed code page for name, installing it on
// first use. The second return value is false if no JIT page is
// available (unsupported architecture or a prior mmap/mprotect
// failure); the caller must use the pure Go primitive instead.
func Lookup(name string) (BinOp, bool) {
	mu.Lock()
	defer mu.Unlock()

	if op, ok := compiled[name]; ok {
		return op, true
	}
	if failed[name] {
		return nil, false
	}

	code, ok := platformCode(name)
	if !ok {
		failed[name] = true
		return nil, false
	}

	op, err := install(name, code)
	if err != nil {
		failed[name] = true
		return nil, false
	}
	compiled[name] = op
	return op, true
}

// install maps an anonymous RW page, copies code into it, then
// mprotects it RX. The page lives until process exit.
func install(name string, code []byte) (BinOp, error) {
	size := pageRoundUp(len(code))
	page, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("jit: mmap %s: %w", name, err)
	}
	copy(page, code)
	if err := unix.Mprotect(page, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		unix.Munmap(page)
		return nil, fmt.Errorf("jit: mprotect %s: %w", name, err)
	}
	pages[name] = page

	fnPtr := unsafe.Pointer(&page[0])
	return makeBinOp(fnPtr), nil
}

func pageRoundUp(n int) int {
	const pageSize = 4096
	if n <= 0 {
		return pageSize
	}
	return ((n + pageSize - 1) / pageSize) * pageSize
}

// makeBinOp turns a raw code-page entry point into a callable Go func
// value. A Go func value is, in the runtime's own layout, a pointer to
// a structure whose first word is the code's entry point; constructing
// that structure by hand and reinterpreting it as the target func type
// is the standard trick for calling into a hand-built code page
// without cgo. It depends on the two-arg/one-result case matching the
// compiler's current register ABI (cmd/compile/abi-internal.md), which
// is why Lookup only ever hands back BinOp, never an arbitrary
// signature.
func makeBinOp(entry unsafe.Pointer) BinOp {
	funcVal := &struct{ entry unsafe.Pointer }{entry: entry}
	return *(*BinOp)(unsafe.Pointer(&funcVal))
}
