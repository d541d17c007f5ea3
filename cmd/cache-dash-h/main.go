// Package main is the entry point for the cache-dash-h CLI.
package main

import (
	"os"

	"github.com/runger/cache-dash-h/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
