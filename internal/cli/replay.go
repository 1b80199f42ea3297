package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/consim/internal/engine"
	"github.com/roach88/consim/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database     string
	SweepID      string // optional - specific sweep only
	ProtocolHash string // optional - sweeps of one protocol only
}

// ReplaySweepResult holds the replay result for a single sweep.
type ReplaySweepResult struct {
	SweepID       string `json:"sweep_id"`
	Protocol      string `json:"protocol"`
	ProtocolMatch bool   `json:"protocol_match"`
	Identical     bool   `json:"identical"`
	EngineVersion string `json:"engine_version"`
	StoredHash    string `json:"stored_hash"`
	ReplayedHash  string `json:"replayed_hash"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Sweeps       []ReplaySweepResult `json:"sweeps"`
	TotalSweeps  int                 `json:"total_sweeps"`
	AllIdentical bool                `json:"all_identical"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run stored sweeps and verify determinism",
		Long: `Re-run stored sweeps from their stored protocol source and parameters and
check that the results are bit-identical to what was stored.

Exit codes:
  0 - All sweeps reproduced exactly
  1 - At least one sweep differs
  2 - Command error (database not found, unknown sweep, etc.)

Examples:
  consim replay --db ./sweeps.db
  consim replay --db ./sweeps.db --sweep 0190f5c2-...
  consim replay --db ./sweeps.db --protocol-hash 3f9a...
  consim replay --db ./sweeps.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.SweepID, "sweep", "", "replay specific sweep only")
	cmd.Flags().StringVar(&opts.ProtocolHash, "protocol-hash", "", "replay sweeps of the protocol with this content hash only")
	cmd.MarkFlagsMutuallyExclusive("sweep", "protocol-hash")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.logger(cmd)
	ctx := commandContext(cmd)

	if _, err := os.Stat(opts.Database); err != nil {
		return reportError(f, ExitCommandError, ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return reportError(f, ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to open database: %v", err), nil)
	}
	defer st.Close()

	var ids []string
	switch {
	case opts.SweepID != "":
		ids = []string{opts.SweepID}
	case opts.ProtocolHash != "":
		ids, err = st.FindSweepsByProtocol(ctx, opts.ProtocolHash)
		if err != nil {
			return reportError(f, ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to find sweeps: %v", err), nil)
		}
	default:
		sweeps, err := st.ListSweeps(ctx)
		if err != nil {
			return reportError(f, ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to list sweeps: %v", err), nil)
		}
		for _, sw := range sweeps {
			ids = append(ids, sw.ID)
		}
	}

	result := ReplayResult{
		Sweeps:       make([]ReplaySweepResult, 0, len(ids)),
		TotalSweeps:  len(ids),
		AllIdentical: true,
	}
	for _, id := range ids {
		sw, err := st.ReadSweep(ctx, id)
		if err != nil {
			return reportError(f, ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
		if sw.EngineVersion != engine.Version {
			logger.Warn("sweep stored by a different engine version",
				"sweep", sw.ID,
				"stored", sw.EngineVersion,
				"current", engine.Version,
			)
		}
		report, err := store.Replay(ctx, sw, logger)
		if err != nil {
			return reportError(f, ExitFailure, ErrCodeSimulation, err.Error(), nil)
		}
		result.Sweeps = append(result.Sweeps, ReplaySweepResult{
			SweepID:       report.SweepID,
			Protocol:      report.ProtocolName,
			ProtocolMatch: report.ProtocolMatch,
			Identical:     report.Identical,
			EngineVersion: report.EngineVersion,
			StoredHash:    report.StoredHash,
			ReplayedHash:  report.ReplayedHash,
		})
		if !report.Identical {
			result.AllIdentical = false
		}
	}

	if f.IsJSON() {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		outputReplayText(cmd.OutOrStdout(), result, opts.Verbose)
	}

	if !result.AllIdentical {
		return NewExitError(ExitFailure, "replay differs from stored results")
	}
	return nil
}

func outputReplayText(w io.Writer, result ReplayResult, verbose bool) {
	if result.TotalSweeps == 0 {
		fmt.Fprintln(w, "No sweeps found in database.")
		return
	}
	for _, s := range result.Sweeps {
		mark := "✓"
		if !s.Identical {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s %s", mark, s.SweepID, s.Protocol)
		if !s.ProtocolMatch {
			fmt.Fprint(w, " (protocol hash changed)")
		}
		fmt.Fprintln(w)
		if verbose || !s.Identical {
			fmt.Fprintf(w, "    stored:   %s\n    replayed: %s\n", s.StoredHash, s.ReplayedHash)
		}
	}
	if result.AllIdentical {
		fmt.Fprintf(w, "\nAll %d sweep(s) reproduced exactly.\n", result.TotalSweeps)
	} else {
		fmt.Fprintln(w, "\nReplay differs from stored results.")
	}
}
