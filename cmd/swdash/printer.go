package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

func printSuccess(w io.Writer, format string, a ...any) {
	green.Fprintf(w, "✓ %s\n", fmt.Sprintf(format, a...))
}

func printWarning(w io.Writer, format string, a ...any) {
	yellow.Fprintf(w, "⚠ %s\n", fmt.Sprintf(format, a...))
}

func printHeading(w io.Writer, format string, a ...any) {
	cyan.Fprintf(w, "%s\n", fmt.Sprintf(format, a...))
}

// printError writes a red error line and returns a plain error for cobra,
// which is configured not to print it again.
func printError(w io.Writer, format string, a ...any) error {
	msg := fmt.Sprintf(format, a...)
	red.Fprintf(w, "✗ %s\n", msg)
	return fmt.Errorf("%s", msg)
}
