package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/consim/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string // scenario filter (glob pattern on the file name)
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-dir|scenario.yaml>...",
		Short: "Run acceptance scenarios",
		Long: `Run YAML acceptance scenarios. Each scenario sweeps one or more protocols
and checks assertions on mean discrepancy, consensus probability, trace
length and comparison conditions.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  consim test ./scenarios
  consim test ./scenarios --filter "amp_*"
  consim test ./scenarios/amp_vs_fv.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	paths, err := scenarioPaths(args, opts.Filter)
	if err != nil {
		return reportError(f, ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	if len(paths) == 0 {
		return reportError(f, ExitCommandError, ErrCodeNotFound, "no scenario files matched", nil)
	}

	h := harness.New(opts.logger(cmd))
	result := h.RunSuite(commandContext(cmd), paths)

	if f.IsJSON() {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		outputTestText(cmd.OutOrStdout(), result)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.TotalScenarios))
	}
	return nil
}

// scenarioPaths expands directories to their scenario files and applies the
// filter to file names.
func scenarioPaths(args []string, filter string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("scenario path not found: %s", arg)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := harness.FindScenarios(arg)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}

	if filter == "" {
		return paths, nil
	}
	var kept []string
	for _, p := range paths {
		matched, err := filepath.Match(filter, filepath.Base(p))
		if err != nil {
			return nil, fmt.Errorf("invalid filter %q: %w", filter, err)
		}
		if matched {
			kept = append(kept, p)
		}
	}
	return kept, nil
}

func outputTestText(w io.Writer, result *harness.SuiteResult) {
	for _, failure := range result.Failures {
		fmt.Fprintf(w, "✗ %s (%s)\n", failure.Scenario, failure.Path)
		for _, e := range failure.Errors {
			fmt.Fprintf(w, "    %s\n", e)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.TotalScenarios)
}
