// Package main is the entry point for the kleinsync CLI.
package main

import (
	"os"

	"github.com/jmylchreest/kleinsync/cmd/kleinsync/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
