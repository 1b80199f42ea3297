package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/consim/internal/compiler"
	"github.com/roach88/consim/internal/engine"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	P        float64
	Rounds   int
	Seed     int64
	Eps      float64
	Topology string
}

// TraceOutput is the JSON payload of the trace command.
type TraceOutput struct {
	Protocol string               `json:"protocol"`
	P        float64              `json:"p"`
	Seed     int64                `json:"seed"`
	Summary  *engine.RunSummary   `json:"summary"`
	Records  []engine.RoundRecord `json:"records"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <protocol>",
		Short: "Run a single repetition and show every round",
		Long: `Run one seeded repetition of a protocol and print the committed state,
delivered messages and discrepancy of every round.

Examples:
  consim trace amp.consim --p 0.5 --rounds 3 --seed 7
  consim trace leader.consim --topology star --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().Float64Var(&opts.P, "p", 1, "delivery probability")
	cmd.Flags().IntVar(&opts.Rounds, "rounds", 1, "synchronous rounds")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "run seed")
	cmd.Flags().Float64Var(&opts.Eps, "eps", compiler.DefaultConsensusEps, "consensus threshold on final discrepancy")
	cmd.Flags().StringVar(&opts.Topology, "topology", "complete", "communication graph (complete|ring|star)")

	return cmd
}

func runTrace(opts *TraceOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.logger(cmd)

	loaded, err := LoadProtocol(path, true)
	if err != nil {
		return reportLoadError(f, err)
	}
	topology, err := engine.ParseTopology(opts.Topology)
	if err != nil {
		return reportError(f, ExitCommandError, ErrCodeConfig, err.Error(), nil)
	}
	spec, err := compiler.Compile(loaded.IR, opts.P, opts.Rounds, compiler.WithConsensusEps(opts.Eps))
	if err != nil {
		return reportError(f, ExitFailure, ErrCodeSimulation, err.Error(), nil)
	}

	recorder := &engine.RecordingSink{}
	summary, err := engine.RunContext(commandContext(cmd), spec, opts.Seed,
		engine.WithTraceSink(engine.MultiSink{recorder, engine.LogSink{Logger: logger}}),
		engine.WithTopology(topology),
		engine.WithLogger(logger),
	)
	if err != nil {
		return reportError(f, ExitFailure, ErrCodeSimulation, err.Error(), nil)
	}

	out := TraceOutput{
		Protocol: loaded.IR.Name,
		P:        opts.P,
		Seed:     opts.Seed,
		Summary:  summary,
		Records:  recorder.Records(),
	}
	if f.IsJSON() {
		return f.Success(out)
	}
	outputTraceText(cmd.OutOrStdout(), out, opts.Verbose)
	return nil
}

func outputTraceText(w io.Writer, out TraceOutput, verbose bool) {
	fmt.Fprintf(w, "Trace %s (p=%g, seed %d)\n", out.Protocol, out.P, out.Seed)
	for _, rec := range out.Records {
		fmt.Fprintf(w, "  %-5s %3d  values=%s  delivered=%d  discrepancy=%g\n",
			rec.Stage, rec.Round, formatValues(rec.Values), len(rec.Delivered), rec.Discrepancy)
		if verbose {
			for _, m := range rec.Delivered {
				fmt.Fprintf(w, "        %d -> %d: %g\n", m.Sender, m.Receiver, m.Payload)
			}
		}
	}

	consensus := "no"
	if out.Summary.ConsensusFinal {
		consensus = "yes"
	}
	fmt.Fprintf(w, "Final discrepancy %g, consensus %s, %d message(s) delivered\n",
		out.Summary.DiscrepancyFinal, consensus, out.Summary.TotalMessagesDelivered)
}

func formatValues(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
