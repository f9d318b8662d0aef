// Package main is the entry point for the microfirst device CLI.
//
// Usage:
//
//	microfirst [flags] <command> [subcommand] [args]
//
// Commands:
//
//	run        - Run the device loop with loopback peripherals
//	clips      - Expression clip tooling (ls, info, sync)
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/Devam42/Microfirst/cmd/microfirst/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
