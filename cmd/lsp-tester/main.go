package main

import (
	"errors"
	"fmt"
	"os"

	"lsp-tester/src/cli"
)

// Exit codes: 1 when --fail-on-error trips, 2 when the run itself failed
const (
	exitFindings = 1
	exitFailure  = 2
)

// runMain executes the main application logic and returns the exit code
func runMain() int {
	err := cli.Execute()
	if err == nil {
		return 0
	}

	var findings *cli.FindingsError
	if errors.As(err, &findings) {
		fmt.Fprintln(os.Stderr, err)
		return exitFindings
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return exitFailure
}

func main() {
	os.Exit(runMain())
}
