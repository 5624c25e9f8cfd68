// portal is the command-line interface for the identity portal.
//
// Usage:
//
//	portal <command> [flags]
//
// Commands:
//
//	migrate     Create the event store schema
//	verify-replay  Verify the event log replays cleanly through the projections
//	version     Show version information
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
