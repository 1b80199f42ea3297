package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/consim/internal/ir"
	"github.com/roach88/consim/internal/montecarlo"
	"github.com/roach88/consim/internal/runner"
	"github.com/roach88/consim/internal/study"
)

// CompareOptions holds flags for the compare command.
type CompareOptions struct {
	*RootOptions
	SweepFlags
	Conditions []string
}

// CompareOutput is the JSON payload of the compare command.
type CompareOutput struct {
	Protocols []string                       `json:"protocols"`
	Results   map[string][]montecarlo.Result `json:"results"`
	Outcomes  []*study.Outcome               `json:"outcomes"`
	AllHold   bool                           `json:"all_hold"`
}

// NewCompareCommand creates the compare command.
func NewCompareCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompareOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compare <protocol>...",
		Short: "Run protocols over one sweep and check conditions",
		Long: `Run several protocols over the same sweep and check comparison conditions
between their results, for example:

  for p > 0.6: AMP.consensus > FV.consensus

Metrics are consensus, discrepancy, variance and messages. Protocols are
referred to by the name in their PROTOCOL header.

Exit codes:
  0 - All conditions hold
  1 - A condition fails, or a protocol is invalid
  2 - Command error (missing file, bad condition, bad config)

Examples:
  consim compare amp.consim fv.consim -n 2000 \
    --condition "for p > 0.6: AMP.consensus > FV.consensus"`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(opts, args, cmd)
		},
	}

	opts.SweepFlags.register(cmd)
	cmd.Flags().StringArrayVar(&opts.Conditions, "condition", nil, "condition to check (repeatable)")

	return cmd
}

func runCompare(opts *CompareOptions, paths []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.logger(cmd)
	ctx := commandContext(cmd)

	conds := make([]*study.Condition, len(opts.Conditions))
	for i, text := range opts.Conditions {
		cond, err := study.Parse(text)
		if err != nil {
			return reportError(f, ExitCommandError, ErrCodeConfig, err.Error(), nil)
		}
		conds[i] = cond
	}

	params, workers, _, err := opts.experiment(cmd)
	if err != nil {
		return reportConfigError(f, err)
	}

	out := CompareOutput{
		Protocols: []string{},
		Results:   make(map[string][]montecarlo.Result),
		Outcomes:  []*study.Outcome{},
		AllHold:   true,
	}
	protocols := make(map[string]*ir.ProtocolIR, len(paths))
	for _, path := range paths {
		loaded, err := LoadProtocol(path, true)
		if err != nil {
			return reportLoadError(f, err)
		}
		name := loaded.IR.Name
		if _, dup := out.Results[name]; dup {
			return reportError(f, ExitCommandError, ErrCodeConfig, fmt.Sprintf("protocol %s given twice", name), nil)
		}

		sweep, err := params.Sweep()
		if err != nil {
			return reportError(f, ExitCommandError, ErrCodeConfig, err.Error(), nil)
		}
		sweep.Workers = workers
		sweep.Logger = logger
		results, err := runner.RunIR(ctx, loaded.IR, sweep)
		if err != nil {
			return reportError(f, ExitFailure, ErrCodeSimulation, err.Error(), nil)
		}
		out.Protocols = append(out.Protocols, name)
		out.Results[name] = results
		protocols[name] = loaded.IR
	}

	outcomes, all, err := study.EvaluateAll(conds, out.Results)
	if err != nil {
		return reportError(f, ExitCommandError, ErrCodeConfig, err.Error(), nil)
	}
	out.Outcomes = outcomes
	out.AllHold = all

	if f.IsJSON() {
		if err := f.Success(out); err != nil {
			return err
		}
	} else {
		outputCompareText(cmd.OutOrStdout(), out, protocols)
	}

	if !out.AllHold {
		return NewExitError(ExitFailure, "one or more conditions do not hold")
	}
	return nil
}

func outputCompareText(w io.Writer, out CompareOutput, protocols map[string]*ir.ProtocolIR) {
	for i, name := range out.Protocols {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Protocol %s\n", name)
		writeResultsTable(w, out.Results[name], protocols[name])
	}
	if len(out.Outcomes) == 0 {
		return
	}

	fmt.Fprintln(w)
	for _, o := range out.Outcomes {
		if o.Holds {
			fmt.Fprintf(w, "✓ %s (%d p value(s) checked)\n", o.Condition, len(o.Checked))
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", o.Condition)
		for _, v := range o.Violations {
			fmt.Fprintf(w, "    p=%g: %g vs %g\n", v.P, v.Left, v.Right)
		}
	}
}
