package main

import (
	"github.com/asad/blobmirror/internal/cli"
)

// main is the entry point for blobmirror.
// It delegates to the CLI package which handles command parsing and execution.
func main() {
	cli.Execute()
}
