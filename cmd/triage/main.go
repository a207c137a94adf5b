// Package main provides the triage command: it investigates monitoring
// alarms with an LLM that gathers evidence by running sandboxed snippets.
package main

import (
	"fmt"
	"os"
)

func main() {
	root := newRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
