// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// initColors mirrors the teacher's color-gating rule: disable color
// when explicitly asked, when NO_COLOR is set, or when stdout isn't a
// terminal.
func initColors(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" || !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

func printErr(format string, args ...any) {
	fmt.Fprintln(os.Stderr, color.RedString(format, args...))
}

func printWarn(format string, args ...any) {
	fmt.Fprintln(os.Stderr, color.YellowString(format, args...))
}

func printOK(format string, args ...any) {
	fmt.Println(color.GreenString(format, args...))
}

// progressBarLike is the slice of *progressbar.ProgressBar's API that
// build.go drives; kept narrow so tests could fake it if needed.
type progressBarLike interface {
	Set(int) error
	Finish() error
}

// newProgressBar builds the progress bar cmd/march feeds from a
// catalog.ProgressFunc, one per `march build` invocation.
func newProgressBar(total int, quiet bool) *progressbar.ProgressBar {
	if quiet || total == 0 {
		return progressbar.DefaultSilent(int64(total))
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("building catalog"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
