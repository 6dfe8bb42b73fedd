package main

import (
	"os"
)

func main() {
	// Errors are printed by the printer helpers with color formatting.
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
