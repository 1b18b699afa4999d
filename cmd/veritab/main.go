// Package main provides the CLI entry point for VeriTab.
package main

import (
	"os"

	"github.com/leapstack-labs/veritab/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
