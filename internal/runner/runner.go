// Package runner is the top-level entry point: protocol source in, one
// Monte Carlo result per delivery probability out.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gammazero/workerpool"

	"github.com/roach88/consim/internal/compiler"
	"github.com/roach88/consim/internal/engine"
	"github.com/roach88/consim/internal/ir"
	"github.com/roach88/consim/internal/montecarlo"
	"github.com/roach88/consim/internal/parser"
)

// Sweep describes the experiment run for every delivery probability.
type Sweep struct {
	PValues      []float64
	Rounds       int
	Repetitions  int
	Seed         int64
	ConsensusEps float64

	// Workers bounds the p values simulated at once; 0 means one per p.
	Workers int
	// RepetitionWorkers bounds parallel repetitions within one p.
	RepetitionWorkers int

	Topology engine.Topology
	Faults   engine.FaultModel
	Logger   *slog.Logger

	// Debug returns errors unwrapped instead of as *Error.
	Debug bool
}

// DefaultSweep returns the sweep used when the caller sets nothing else.
func DefaultSweep() Sweep {
	return Sweep{
		PValues:      []float64{0, 0.25, 0.5, 0.75, 1},
		Rounds:       1,
		Repetitions:  1000,
		ConsensusEps: compiler.DefaultConsensusEps,
	}
}

// LoadSource returns source itself when it is protocol text, or the
// contents of the file it names.
func LoadSource(source string) (string, error) {
	if strings.Contains(source, "\n") || strings.HasPrefix(strings.TrimSpace(source), "PROTOCOL") {
		return source, nil
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return "", fmt.Errorf("read protocol: %w", err)
	}
	return string(data), nil
}

// Prepare loads, parses and validates source.
func Prepare(source string, debug bool) (*ir.ProtocolIR, error) {
	text, err := LoadSource(source)
	if err != nil {
		return nil, wrap(StageLoad, err, debug)
	}
	protocol, err := parser.Parse(text)
	if err != nil {
		return nil, wrap(StageParse, err, debug)
	}
	if err := compiler.Validate(protocol); err != nil {
		return nil, wrap(StageValidate, err, debug)
	}
	return protocol, nil
}

// RunProtocol runs sweep over the protocol in source and returns one result
// per p value, in the order given.
func RunProtocol(source string, sweep Sweep) ([]montecarlo.Result, error) {
	return RunProtocolContext(context.Background(), source, sweep)
}

// RunProtocolContext is RunProtocol with cancellation.
func RunProtocolContext(ctx context.Context, source string, sweep Sweep) ([]montecarlo.Result, error) {
	protocol, err := Prepare(source, sweep.Debug)
	if err != nil {
		return nil, err
	}
	return RunIR(ctx, protocol, sweep)
}

// RunIR runs sweep over an already parsed protocol.
func RunIR(ctx context.Context, protocol *ir.ProtocolIR, sweep Sweep) ([]montecarlo.Result, error) {
	if len(sweep.PValues) == 0 {
		return nil, wrap(StageCompile, errors.New("no delivery probabilities to sweep"), sweep.Debug)
	}
	logger := sweep.Logger
	if logger == nil {
		logger = slog.Default()
	}

	specs := make([]*compiler.ExperimentSpec, len(sweep.PValues))
	for i, p := range sweep.PValues {
		spec, err := compiler.Compile(protocol, p, sweep.Rounds, compiler.WithConsensusEps(sweep.ConsensusEps))
		if err != nil {
			return nil, wrap(StageCompile, err, sweep.Debug)
		}
		specs[i] = spec
	}

	var engineOpts []engine.Option
	if sweep.Topology != nil {
		engineOpts = append(engineOpts, engine.WithTopology(sweep.Topology))
	}
	if sweep.Faults != nil {
		engineOpts = append(engineOpts, engine.WithFaults(sweep.Faults))
	}
	mcOpts := []montecarlo.Option{
		montecarlo.WithLogger(logger),
		montecarlo.WithEngineOptions(engineOpts...),
	}
	if sweep.RepetitionWorkers > 0 {
		mcOpts = append(mcOpts, montecarlo.WithWorkers(sweep.RepetitionWorkers))
	}

	workers := sweep.Workers
	if workers <= 0 {
		workers = len(specs)
	}
	results := make([]*montecarlo.Result, len(specs))
	errs := make([]error, len(specs))
	wp := workerpool.New(workers)
	for i, spec := range specs {
		wp.Submit(func() {
			results[i], errs[i] = montecarlo.RunManyContext(ctx, spec, sweep.Repetitions, sweep.Seed, sweep.ConsensusEps, mcOpts...)
		})
	}
	wp.StopWait()

	out := make([]montecarlo.Result, len(specs))
	for i := range specs {
		if errs[i] != nil {
			return nil, wrap(StageSimulate, errs[i], sweep.Debug)
		}
		out[i] = *results[i]
	}
	logger.Info("sweep finished",
		"protocol", protocol.Name,
		"p_values", len(out),
		"rounds", sweep.Rounds,
		"repetitions", sweep.Repetitions,
	)
	return out, nil
}
