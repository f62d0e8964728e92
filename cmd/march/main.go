// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main implements the march CLI: building YAML catalogs into a
// store, running stored words, reducing interaction nets, and serving
// a read-only HTTP inspector.
//
// Usage:
//
//	march build <catalog.yaml>         Load a catalog into the store
//	march run <name-or-cid> <args...>  Run a stored word
//	march reduce <net.yaml>             Reduce an interaction net to normal form
//	march serve                         Start the HTTP inspector
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"
)

var (
	version = "dev"
	commit  = "unknown"
)

// GlobalFlags holds flags shared across every subcommand.
type GlobalFlags struct {
	JSON    bool
	NoColor bool
	Verbose int
	Quiet   bool
}

func storeNameIn(dir string) string { return filepath.Join(dir, "march") }

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		configPath  = flag.StringP("config", "c", "", "Path to .march/project.yaml")
		jsonOutput  = flag.Bool("json", false, "Output in JSON where applicable")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v info, -vv debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output")
	)
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `march - content-addressed IR engine

Usage:
  march <command> [options]

Commands:
  build    Load a YAML catalog into the store
  run      Run a stored word by name or CID
  reduce   Reduce an interaction net described by a YAML document
  serve    Start the read-only HTTP inspector

Global Options:
  --json          Output in JSON where applicable
  --no-color      Disable color output (respects NO_COLOR)
  -v, --verbose   Increase verbosity (-v info, -vv debug)
  -q, --quiet     Suppress non-essential output
  -c, --config    Path to .march/project.yaml
  -V, --version   Show version and exit

For detailed command help: march <command> --help
`)
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("march version %s (commit %s)\n", version, commit)
		os.Exit(0)
	}
	if *jsonOutput {
		*quiet = true
	}

	globals := GlobalFlags{JSON: *jsonOutput, NoColor: *noColor, Verbose: *verbose, Quiet: *quiet}
	initColors(globals.NoColor)

	level := slog.LevelWarn
	switch {
	case globals.Verbose >= 2:
		level = slog.LevelDebug
	case globals.Verbose == 1:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		printWarn("march: reading config: %v", err)
		cfg = DefaultConfig()
	}

	command, cmdArgs := args[0], args[1:]
	switch command {
	case "build":
		os.Exit(runBuild(cmdArgs, globals, cfg))
	case "run":
		os.Exit(runRun(cmdArgs, globals, cfg))
	case "reduce":
		os.Exit(runReduce(cmdArgs, globals, cfg))
	case "serve":
		os.Exit(runServe(cmdArgs, globals, cfg))
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
