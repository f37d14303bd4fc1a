package ui

import (
	"io"
	"os"

	"golang.org/x/term"
)

// ANSI color and style constants for CLI output
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorDim   = "\033[2m"

	ColorCyan   = "\033[36m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorWhite  = "\033[97m"
	ColorRed    = "\033[31m"
)

// ColorEnabled reports whether w is a terminal that should receive colors.
// NO_COLOR disables colors everywhere.
func ColorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Paint wraps s in color when enabled is set.
func Paint(enabled bool, color, s string) string {
	if !enabled {
		return s
	}
	return color + s + ColorReset
}
