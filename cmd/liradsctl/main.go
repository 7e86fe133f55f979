// Command liradsctl classifies findings and verifies audit packs offline,
// and manages the audit database schema.
package main

import (
	"errors"
	"fmt"
	"os"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errTampered) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
