// Package main is the entry point for the blazealert service and CLI.
package main

import (
	"os"

	"github.com/good-yellow-bee/blazealert/cmd/blazealert/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
