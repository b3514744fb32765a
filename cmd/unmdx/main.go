// Command unmdx translates MDX queries to DAX from the command line.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "unmdx",
		Usage: "translate MDX queries to DAX",
		Commands: []*cli.Command{
			convertCommand(),
			explainCommand(),
			versionCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "unmdx:", err)
		os.Exit(exitCodeFor(err))
	}
}

// usageError marks an error as a CLI usage mistake (exit code 2) rather
// than a pipeline failure (exit code 1), per §6.
type usageError struct{ err error }

func (u usageError) Error() string { return u.err.Error() }
func (u usageError) Unwrap() error { return u.err }

func exitCodeFor(err error) int {
	var u usageError
	if asUsageError(err, &u) {
		return 2
	}
	return 1
}

func asUsageError(err error, target *usageError) bool {
	for err != nil {
		if u, ok := err.(usageError); ok { //nolint:errorlint
			*target = u
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error }) //nolint:errorlint
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
