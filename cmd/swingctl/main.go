// Package main is the entrypoint for swingctl, the operator CLI for the swing
// analysis server.
package main

import (
	"os"

	"github.com/pffise-create/PinhighAI-sub003/cmd/swingctl/cmd"
)

func main() {
	if err := cmd.NewRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
