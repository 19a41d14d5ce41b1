// Package main is the entry point for the stanbot service CLI.
package main

import (
	"os"

	"github.com/nyka2002/stanbot/cmd/stanbot/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
