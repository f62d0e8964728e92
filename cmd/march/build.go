// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/march/internal/catalog"
	"github.com/kraklabs/march/internal/store"
)

func printBuildUsage() {
	fmt.Println(`Usage: march build <catalog.yaml> [options]

Loads a YAML catalog document into the store, registering every
effect/prim/guard/word/overloads/snapshot entry under the name index.

Options:
  --store <dir>   Store directory (default: .march/store, or MARCH_STORE_DIR)
  -q, --quiet     Suppress the progress bar`)
}

func runBuild(args []string, globals GlobalFlags, cfg *Config) int {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	storeDir := fs.String("store", "", "store directory")
	quiet := fs.BoolP("quiet", "q", false, "suppress progress bar")
	fs.Usage = printBuildUsage
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) != 1 {
		printBuildUsage()
		return 2
	}

	dir := resolveStoreDir(cfg, *storeDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		printErr("march build: create store dir: %v", err)
		return 1
	}
	st, err := store.Open(storeNameIn(dir))
	if err != nil {
		printErr("march build: open store: %v", err)
		return 1
	}
	defer st.Close()

	l := catalog.New(st, nil)
	var bar progressBarLike
	l.SetProgress(func(current, total int) {
		if bar == nil {
			bar = newProgressBar(total, globals.Quiet || *quiet)
		}
		_ = bar.Set(current)
	})

	if err := l.LoadFile(rest[0]); err != nil {
		if bar != nil {
			_ = bar.Finish()
		}
		printErr("march build: %v", err)
		return 1
	}
	if bar != nil {
		_ = bar.Finish()
	}

	printOK("built %s into %s", rest[0], dir)
	return 0
}
