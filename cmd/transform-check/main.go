// Command transform-check validates a serialized transform log: it decodes
// the JSON envelope list, runs per-step validation and prints one line per
// step. Notebook files and support bundles embed these logs, so a failing
// file can be triaged without loading it into a kernel.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"notebookcore/pkg/transform"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("transform-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var path string
	fs.StringVar(&path, "file", "-", "path to a JSON transform log, - for stdin")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	raw, err := readInput(path, os.Stdin)
	if err != nil {
		fmt.Fprintf(stderr, "transform-check: %v\n", err)
		return 1
	}

	var ts transform.Transformations
	if err := json.Unmarshal(raw, &ts); err != nil {
		fmt.Fprintf(stderr, "transform-check: decode: %v\n", err)
		return 1
	}

	failures := 0
	for i, step := range ts {
		if err := step.Validate(); err != nil {
			fmt.Fprintf(stderr, "step %d (%s): %v\n", i, step.Kind(), err)
			failures++
			continue
		}
		fmt.Fprintf(stdout, "step %d: %s\n", i, step.Kind())
	}
	if failures > 0 {
		fmt.Fprintf(stderr, "transform-check: %d of %d steps invalid\n", failures, len(ts))
		return 1
	}
	fmt.Fprintf(stdout, "%d steps ok\n", len(ts))
	return 0
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
