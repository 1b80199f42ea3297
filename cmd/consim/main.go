// Command consim simulates consensus protocols over lossy synchronous
// rounds.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/consim/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()

	// Commands print their own failures; only report errors that never
	// reached an output formatter.
	var exitErr *cli.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
