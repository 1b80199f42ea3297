package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/consim/internal/config"
	"github.com/roach88/consim/internal/ir"
	"github.com/roach88/consim/internal/montecarlo"
	"github.com/roach88/consim/internal/runner"
	"github.com/roach88/consim/internal/store"
)

// SweepFlags are the experiment flags shared by run and compare. Flags the
// user sets override values from --config.
type SweepFlags struct {
	Config      string
	PValues     []float64
	Rounds      int
	Repetitions int
	Seed        int64
	Eps         float64
	Workers     int
	Topology    string
}

func (s *SweepFlags) register(cmd *cobra.Command) {
	defaults := runner.DefaultSweep()
	cmd.Flags().StringVarP(&s.Config, "config", "c", "", "CUE experiment file")
	cmd.Flags().Float64SliceVar(&s.PValues, "p", defaults.PValues, "delivery probabilities to sweep")
	cmd.Flags().IntVar(&s.Rounds, "rounds", defaults.Rounds, "synchronous rounds per run")
	cmd.Flags().IntVarP(&s.Repetitions, "repetitions", "n", defaults.Repetitions, "valid runs per p")
	cmd.Flags().Int64Var(&s.Seed, "seed", 0, "seed of the first repetition")
	cmd.Flags().Float64Var(&s.Eps, "eps", defaults.ConsensusEps, "consensus threshold on final discrepancy")
	cmd.Flags().IntVar(&s.Workers, "workers", 0, "p values simulated at once (0 = all)")
	cmd.Flags().StringVar(&s.Topology, "topology", "complete", "communication graph (complete|ring|star)")
}

// experiment resolves the sweep: the config file first, then flags the user
// changed. protocol is the config's protocol path, if any.
func (s *SweepFlags) experiment(cmd *cobra.Command) (params store.Params, workers int, protocol string, err error) {
	params = store.Params{
		PValues:      s.PValues,
		Rounds:       s.Rounds,
		Repetitions:  s.Repetitions,
		Seed:         s.Seed,
		ConsensusEps: s.Eps,
		Topology:     s.Topology,
	}
	workers = s.Workers
	if s.Config == "" {
		return params, workers, "", nil
	}

	exp, err := config.Load(s.Config)
	if err != nil {
		return store.Params{}, 0, "", err
	}
	changed := cmd.Flags().Changed
	if !changed("p") {
		params.PValues = exp.PValues
	}
	if !changed("rounds") {
		params.Rounds = exp.Rounds
	}
	if !changed("repetitions") {
		params.Repetitions = exp.Repetitions
	}
	if !changed("seed") {
		params.Seed = exp.Seed
	}
	if !changed("eps") {
		params.ConsensusEps = exp.ConsensusEps
	}
	if !changed("workers") {
		workers = exp.Workers
	}
	if !changed("topology") {
		params.Topology = exp.Topology
	}
	if exp.Faults != nil {
		params.Faults = &store.FaultParams{
			Kind:  exp.Faults.Kind,
			Nodes: exp.Faults.Nodes,
			From:  exp.Faults.From,
			Value: exp.Faults.Value,
		}
	}
	return params, workers, exp.Protocol, nil
}

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	SweepFlags
	Database string
	Debug    bool

	// IDGenerator overrides sweep ids in the database (for testing).
	IDGenerator store.IDGenerator
}

// RunOutput is the JSON payload of the run command.
type RunOutput struct {
	Protocol     string              `json:"protocol"`
	ProtocolHash string              `json:"protocol_hash"`
	SweepID      string              `json:"sweep_id,omitempty"`
	Params       store.Params        `json:"params"`
	Results      []montecarlo.Result `json:"results"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [protocol]",
		Short: "Run a Monte Carlo sweep over delivery probabilities",
		Long: `Run a protocol for every delivery probability and print discrepancy and
consensus statistics.

Settings come from flags, or from a CUE experiment file given with --config.
Flags set on the command line override the file. With --db the sweep is
stored for later replay.

Exit codes:
  0 - Sweep completed
  1 - Protocol invalid or simulation failed
  2 - Command error (missing file, bad config, database error)

Examples:
  consim run amp.consim --p 0,0.5,1 --rounds 2 -n 5000
  consim run --config experiment.cue --db sweeps.db
  consim run amp.consim --topology ring --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(opts, args, cmd)
		},
	}

	opts.SweepFlags.register(cmd)
	cmd.Flags().StringVar(&opts.Database, "db", "", "store the sweep in this SQLite database")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "report raw errors instead of stage summaries")

	return cmd
}

func runSweep(opts *RunOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.logger(cmd)

	params, workers, protocolPath, err := opts.experiment(cmd)
	if err != nil {
		return reportConfigError(f, err)
	}
	if len(args) == 1 {
		protocolPath = args[0]
	}
	if protocolPath == "" {
		return reportError(f, ExitCommandError, ErrCodeConfig, "no protocol: pass a file or set protocol in --config", nil)
	}

	loaded, err := LoadProtocol(protocolPath, true)
	if err != nil {
		return reportLoadError(f, err)
	}
	sweep, err := params.Sweep()
	if err != nil {
		return reportError(f, ExitCommandError, ErrCodeConfig, err.Error(), nil)
	}
	sweep.Workers = workers
	sweep.Logger = logger
	sweep.Debug = opts.Debug

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Debug("sweep starting",
		"protocol", loaded.IR.Name,
		"p_values", len(params.PValues),
		"repetitions", params.Repetitions,
	)
	results, err := runner.RunIR(ctx, loaded.IR, sweep)
	if err != nil {
		return reportError(f, ExitFailure, ErrCodeSimulation, err.Error(), nil)
	}

	sw, err := store.NewSweep(loaded.Source, loaded.IR, params, results)
	if err != nil {
		return reportError(f, ExitFailure, ErrCodeSimulation, err.Error(), nil)
	}
	if opts.Database != "" {
		if err := saveSweep(ctx, opts, sw, logger); err != nil {
			return reportError(f, ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
	}

	out := RunOutput{
		Protocol:     sw.ProtocolName,
		ProtocolHash: sw.ProtocolHash,
		SweepID:      sw.ID,
		Params:       params,
		Results:      results,
	}
	if f.IsJSON() {
		return f.Success(out)
	}
	outputRunText(cmd.OutOrStdout(), out, loaded.IR)
	return nil
}

func saveSweep(ctx context.Context, opts *RunOptions, sw *store.Sweep, logger *slog.Logger) error {
	var storeOpts []store.Option
	if opts.IDGenerator != nil {
		storeOpts = append(storeOpts, store.WithIDGenerator(opts.IDGenerator))
	}
	st, err := store.Open(opts.Database, storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()
	if err := st.SaveSweep(ctx, sw); err != nil {
		return err
	}
	logger.Info("sweep stored", "sweep", sw.ID, "db", opts.Database)
	return nil
}

func reportConfigError(f *OutputFormatter, err error) error {
	var ce *config.ConfigError
	if errors.As(err, &ce) {
		return reportError(f, ExitCommandError, ErrCodeConfig, ce.Error(), nil)
	}
	return reportError(f, ExitCommandError, ErrCodeConfig, err.Error(), nil)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func outputRunText(w io.Writer, out RunOutput, protocol *ir.ProtocolIR) {
	fmt.Fprintf(w, "Protocol %s (%s)\n", out.Protocol, shortHash(out.ProtocolHash))
	fmt.Fprintf(w, "%d repetition(s), %d round(s), seed %d, topology %s\n\n",
		out.Params.Repetitions, out.Params.Rounds, out.Params.Seed, out.Params.Topology)
	writeResultsTable(w, out.Results, protocol)
	if out.SweepID != "" {
		fmt.Fprintf(w, "\nStored as sweep %s\n", out.SweepID)
	}
}

// writeResultsTable prints one row per p. The protocol's METRICS select the
// statistic columns; JSON output always carries every statistic.
func writeResultsTable(w io.Writer, results []montecarlo.Result, protocol *ir.ProtocolIR) {
	discrepancy := protocol.HasMetric(ir.MetricDiscrepancy)
	consensus := protocol.HasMetric(ir.MetricConsensus)

	header := []string{"p"}
	if discrepancy {
		header = append(header, "mean_discrepancy", "var_discrepancy")
	}
	if consensus {
		header = append(header, "consensus")
	}
	header = append(header, "messages", "runs")

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	var warnings []string
	for _, r := range results {
		row := []string{fmt.Sprintf("%g", r.P)}
		if discrepancy {
			row = append(row, fmt.Sprintf("%.6f", r.MeanDiscrepancy), fmt.Sprintf("%.6f", r.VarDiscrepancy))
		}
		if consensus {
			row = append(row, fmt.Sprintf("%.4f", r.ConsensusProbability))
		}
		row = append(row,
			fmt.Sprintf("%.2f", r.MeanMessagesDelivered),
			fmt.Sprintf("%d/%d", r.Repetitions, r.Attempts),
		)
		fmt.Fprintln(tw, strings.Join(row, "\t"))
		warnings = append(warnings, r.Warnings...)
	}
	tw.Flush()
	for _, warn := range warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
