package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/consim/internal/compiler"
	"github.com/roach88/consim/internal/engine"
	"github.com/roach88/consim/internal/ir"
	"github.com/roach88/consim/internal/runner"
)

// Harness runs scenarios. The zero value discards logs.
type Harness struct {
	logger *slog.Logger
}

// New returns a harness that logs to logger (nil discards).
func New(logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Harness{logger: logger}
}

// Run executes a scenario with logging suppressed.
func Run(scenario *Scenario) (*Result, error) {
	return New(nil).Run(context.Background(), scenario)
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Parse and validate every protocol
//  2. Run the sweep for each protocol in scenario order
//  3. Evaluate assertions against the collected results
//
// A protocol that fails to load or simulate is an error; a failed assertion
// is recorded in the result.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	if h.logger == nil {
		h.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	sweep, err := buildSweep(scenario.Sweep, h.logger)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	result := NewResult()
	for i, ref := range scenario.Protocols {
		protocol, err := loadProtocol(ref)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: protocols[%d]: %w", scenario.Name, i, err)
		}
		name := ref.Name
		if name == "" {
			name = protocol.Name
		}
		if _, dup := result.Results[name]; dup {
			return nil, fmt.Errorf("scenario %s: duplicate protocol name %q", scenario.Name, name)
		}

		results, err := runner.RunIR(ctx, protocol, sweep)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %s: %w", scenario.Name, name, err)
		}
		result.AddSweep(name, results)
	}

	if err := EvaluateAssertions(result, scenario.Assertions); err != nil {
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, e := range merr.Errors {
				result.AddError(e.Error())
			}
		} else {
			result.AddError(err.Error())
		}
	}

	h.logger.Info("scenario finished",
		"scenario", scenario.Name,
		"protocols", len(result.Protocols),
		"pass", result.Pass,
	)
	return result, nil
}

func loadProtocol(ref ProtocolRef) (*ir.ProtocolIR, error) {
	source := ref.Source
	if ref.Path != "" {
		data, err := os.ReadFile(ref.Path)
		if err != nil {
			return nil, fmt.Errorf("read protocol: %w", err)
		}
		source = string(data)
	}
	return runner.Prepare(source, false)
}

func buildSweep(spec SweepSpec, logger *slog.Logger) (runner.Sweep, error) {
	topology, err := engine.ParseTopology(spec.Topology)
	if err != nil {
		return runner.Sweep{}, err
	}
	sweep := runner.Sweep{
		PValues:      spec.PValues,
		Rounds:       spec.Rounds,
		Repetitions:  spec.Repetitions,
		Seed:         spec.Seed,
		ConsensusEps: compiler.DefaultConsensusEps,
		Topology:     topology,
		Logger:       logger,
	}
	if spec.ConsensusEps != nil {
		sweep.ConsensusEps = *spec.ConsensusEps
	}
	if spec.Faults != nil {
		faults, err := engine.NewFaultModel(spec.Faults.Kind, spec.Faults.Nodes, spec.Faults.From, spec.Faults.Value)
		if err != nil {
			return runner.Sweep{}, err
		}
		sweep.Faults = faults
	}
	return sweep, nil
}
