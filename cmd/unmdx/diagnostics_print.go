package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/druarnfield/unmdx/diagnostics"
)

const (
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
	ansiReset  = "\x1b[0m"
)

// printDiagnostics writes each diagnostic in bag to w, one per line, with
// ANSI severity coloring when w is a terminal.
func printDiagnostics(w io.Writer, bag *diagnostics.Bag) {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd())
	}

	for _, d := range bag.All() {
		fmt.Fprintln(w, formatDiagnostic(d, color))
	}
}

func formatDiagnostic(d diagnostics.Diagnostic, color bool) string {
	if !color {
		return d.String()
	}

	var prefix string
	switch d.Severity {
	case diagnostics.Error:
		prefix = ansiRed
	case diagnostics.Warning:
		prefix = ansiYellow
	default:
		prefix = ansiCyan
	}
	return prefix + d.String() + ansiReset
}
