package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/consim/internal/ir"
	"github.com/roach88/consim/internal/montecarlo"
	"github.com/roach88/consim/internal/runner"
)

// ReplayReport compares a stored sweep with a fresh run of the same source
// and parameters.
type ReplayReport struct {
	SweepID         string
	ProtocolName    string
	ProtocolMatch   bool
	StoredHash      string
	ReplayedHash    string
	Identical       bool
	EngineVersion   string
	ReplayedResults []montecarlo.Result
}

// Replay re-runs sw from its stored source and parameters. Results are
// identical when the canonical results hash matches bit for bit. An engine
// version different from the stored one is reported, not rejected.
func Replay(ctx context.Context, sw *Sweep, logger *slog.Logger) (*ReplayReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	protocol, err := runner.Prepare(sw.Source, false)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", sw.ID, err)
	}
	hash, err := ir.ProtocolHash(protocol)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", sw.ID, err)
	}

	sweep, err := sw.Params.Sweep()
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", sw.ID, err)
	}
	sweep.Logger = logger
	results, err := runner.RunIR(ctx, protocol, sweep)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", sw.ID, err)
	}
	replayed, err := ResultsHash(results)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", sw.ID, err)
	}

	report := &ReplayReport{
		SweepID:         sw.ID,
		ProtocolName:    sw.ProtocolName,
		ProtocolMatch:   hash == sw.ProtocolHash,
		StoredHash:      sw.ResultsHash,
		ReplayedHash:    replayed,
		Identical:       replayed == sw.ResultsHash,
		EngineVersion:   sw.EngineVersion,
		ReplayedResults: results,
	}
	logger.Debug("sweep replayed",
		"sweep", sw.ID,
		"protocol", sw.ProtocolName,
		"identical", report.Identical,
	)
	return report, nil
}
