package main

import (
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// colorsEnabled honours NO_COLOR and non-terminal output through fatih/color.
func colorsEnabled(w io.Writer) bool {
	return isTerminal(w) && !color.NoColor
}
