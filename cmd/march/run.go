// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/march/internal/codec"
	"github.com/kraklabs/march/internal/gstate"
	"github.com/kraklabs/march/internal/interp"
	"github.com/kraklabs/march/internal/store"
)

func printRunUsage() {
	fmt.Println(`Usage: march run <name-or-cid> <args...> [options]

Runs a stored word, printing its results. A 64-character hex string is
treated as a CID; anything else is resolved via the "word" name-index scope.
Arguments are parsed as i64 unless they contain a '.', in which case
they are parsed as f64.

Options:
  --store <dir>   Store directory (default: .march/store, or MARCH_STORE_DIR)`)
}

func runRun(args []string, globals GlobalFlags, cfg *Config) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	storeDir := fs.String("store", "", "store directory")
	fs.Usage = printRunUsage
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) < 1 {
		printRunUsage()
		return 2
	}

	dir := resolveStoreDir(cfg, *storeDir)
	st, err := store.Open(storeNameIn(dir))
	if err != nil {
		printErr("march run: open store: %v", err)
		return 1
	}
	defer st.Close()

	cid, err := resolveWordCID(st, rest[0])
	if err != nil {
		printErr("march run: %v", err)
		return 1
	}

	vals := make([]interp.Value, len(rest[1:]))
	for i, raw := range rest[1:] {
		v, err := parseArg(raw)
		if err != nil {
			printErr("march run: argument %d: %v", i, err)
			return 2
		}
		vals[i] = v
	}

	ip := interp.New(st, gstate.New(), nil)
	results, err := ip.RunWord(cid, vals)
	if err != nil {
		printErr("march run: %v", err)
		return 1
	}

	if globals.JSON {
		out := make([]map[string]any, len(results))
		for i, r := range results {
			out[i] = map[string]any{"atom": r.DynamicAtom(), "i64": r.I64, "f64": r.F64}
		}
		data, _ := json.Marshal(out)
		fmt.Println(string(data))
		return 0
	}

	for _, r := range results {
		switch r.DynamicAtom() {
		case "i64":
			fmt.Println(r.I64)
		case "f64":
			fmt.Println(r.F64)
		default:
			fmt.Println(r.DynamicAtom())
		}
	}
	return 0
}

func resolveWordCID(st *store.Store, token string) (codec.CID, error) {
	if cid, err := codec.ParseCID(token); err == nil {
		return cid, nil
	}
	cid, ok, err := st.GetName("word", token)
	if err != nil {
		return codec.CID{}, err
	}
	if !ok {
		return codec.CID{}, fmt.Errorf("no word registered under name %q", token)
	}
	return cid, nil
}

func parseArg(raw string) (interp.Value, error) {
	if strings.Contains(raw, ".") {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return interp.Value{}, err
		}
		return interp.F64(f), nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return interp.Value{}, err
	}
	return interp.I64(n), nil
}
