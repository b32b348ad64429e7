package main

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/embedpg/embedpg"
)

// buildOptions assembles acquisition options from the global flags.
func buildOptions() *embedpg.Options {
	return &embedpg.Options{
		Registry:          flagRegistry,
		OS:                flagOS,
		Arch:              flagArch,
		Libc:              flagLibc,
		NoCache:           flagNoCache,
		IncludePrerelease: flagPrerelease,
		ShowProgress:      !flagQuiet && term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// printError writes an error to stderr in a consistent format.
func printError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// fail prints the error and exits with its mapped code.
func fail(err error) {
	printError(err)
	exitWithCode(exitCodeFor(err))
}
