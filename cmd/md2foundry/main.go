// Package main is the entry point for the md2foundry CLI.
package main

import (
	"os"

	"github.com/CePeU/MarkdownToFoundry-sub001/cmd/md2foundry/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
