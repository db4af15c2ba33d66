// Package main provides the entry point for the postdex CLI.
package main

import (
	"os"

	"github.com/postdex/postdex/cmd/postdex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
