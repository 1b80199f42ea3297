package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/consim/internal/compiler"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Rounds int
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.Warning         `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <protocol>",
		Short: "Check a protocol without running it",
		Long: `Parse a protocol and run the static checks: process ids, parameters,
initializers, phases and delivery models.

Warnings point at legal but likely unintended features, such as a phase that
never activates within --rounds.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Rounds, "rounds", 1, "rounds assumed when checking phases")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	loaded, err := LoadProtocol(path, false)
	if err != nil {
		return reportLoadError(f, err)
	}

	result := ValidationResult{Valid: true}
	if err := compiler.Validate(loaded.IR); err != nil {
		result.Valid = false
		result.Errors = compiler.ValidationErrors(err)
	} else {
		result.Warnings = compiler.Analyze(loaded.IR, opts.Rounds)
	}

	if f.IsJSON() {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		outputValidationText(cmd, path, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %d validation error(s)", path, len(result.Errors)))
	}
	return nil
}

func outputValidationText(cmd *cobra.Command, path string, result ValidationResult) {
	w := cmd.OutOrStdout()
	if !result.Valid {
		fmt.Fprintf(w, "✗ %s: %d validation error(s)\n", path, len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  [%s] %s: %s\n", e.Code, e.Field, e.Message)
		}
		return
	}
	fmt.Fprintf(w, "✓ %s is valid\n", path)
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "  %s: %s: %s\n", warn.Level, warn.Field, warn.Message)
	}
}
