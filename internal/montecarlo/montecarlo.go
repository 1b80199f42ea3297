// Package montecarlo repeats a compiled experiment and aggregates the runs.
//
// Repetition k (0-based) is seeded with seed+k. When the delivery plan
// carries guaranteed models, runs that violate any of them are discarded and
// further attempts are made, up to 100 attempts per requested repetition.
// Repetitions execute in parallel but are consumed in attempt order, so the
// result does not depend on the number of workers.
package montecarlo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/consim/internal/compiler"
	"github.com/roach88/consim/internal/engine"
)

// Result aggregates the valid repetitions at one delivery probability.
type Result struct {
	P                      float64   `json:"p"`
	Repetitions            int       `json:"repetitions"`
	MeanDiscrepancy        float64   `json:"mean_discrepancy"`
	VarDiscrepancy         float64   `json:"var_discrepancy"`
	ConsensusProbability   float64   `json:"consensus_probability"`
	MeanDiscrepancyByRound []float64 `json:"mean_discrepancy_by_round"`
	Attempts               int       `json:"attempts"`
	Discarded              int       `json:"discarded"`
	MeanMessagesDelivered  float64   `json:"mean_messages_delivered"`
	Warnings               []string  `json:"warnings,omitempty"`
}

// Canonical returns r as a map for ir.MarshalCanonical, keyed like the JSON
// encoding. Warnings appear only when present.
func (r Result) Canonical() map[string]any {
	byRound := r.MeanDiscrepancyByRound
	if byRound == nil {
		byRound = []float64{}
	}
	m := map[string]any{
		"p":                         r.P,
		"repetitions":               r.Repetitions,
		"mean_discrepancy":          r.MeanDiscrepancy,
		"var_discrepancy":           r.VarDiscrepancy,
		"consensus_probability":     r.ConsensusProbability,
		"mean_discrepancy_by_round": byRound,
		"attempts":                  r.Attempts,
		"discarded":                 r.Discarded,
		"mean_messages_delivered":   r.MeanMessagesDelivered,
	}
	if len(r.Warnings) > 0 {
		m["warnings"] = r.Warnings
	}
	return m
}

// Option configures RunMany.
type Option func(*config)

type config struct {
	workers    int
	logger     *slog.Logger
	engineOpts []engine.Option
}

// WithWorkers bounds how many repetitions run at once. The default is
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLogger sets the logger for warnings and progress.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithEngineOptions passes options to every engine run, for example a
// topology or a fault model.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(c *config) {
		c.engineOpts = append(c.engineOpts, opts...)
	}
}

// RunMany runs spec until repetitions valid runs are collected or the
// attempt budget is spent, and aggregates the valid runs. eps is the
// consensus threshold applied to each run's final discrepancy.
func RunMany(spec *compiler.ExperimentSpec, repetitions int, seed int64, eps float64, opts ...Option) (*Result, error) {
	return RunManyContext(context.Background(), spec, repetitions, seed, eps, opts...)
}

// RunManyContext is RunMany with cancellation.
func RunManyContext(ctx context.Context, spec *compiler.ExperimentSpec, repetitions int, seed int64, eps float64, opts ...Option) (*Result, error) {
	if spec == nil || spec.Delivery == nil {
		return nil, errors.New("montecarlo: experiment spec is not compiled")
	}
	if repetitions < 1 {
		return nil, fmt.Errorf("montecarlo: repetitions must be positive, got %d", repetitions)
	}
	if eps < 0 {
		return nil, fmt.Errorf("montecarlo: consensus eps must not be negative, got %g", eps)
	}

	cfg := config{
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	guaranteed := len(spec.Delivery.Guarantees()) > 0
	budget := newAttemptBudget(repetitions, guaranteed)
	var (
		valid     []*engine.RunSummary
		attempts  int
		discarded int
	)
	for len(valid) < repetitions && !budget.exhausted() {
		batch := budget.take(repetitions - len(valid))
		summaries, err := runBatch(ctx, spec, seed+int64(attempts), batch, cfg)
		if err != nil {
			return nil, err
		}
		for _, s := range summaries {
			attempts++
			if !spec.Delivery.Satisfied(s.MessagesPerRound, s.TotalMessagesDelivered) {
				discarded++
				continue
			}
			valid = append(valid, s)
		}
		cfg.logger.Debug("monte carlo batch done",
			"protocol", spec.Name,
			"p", spec.P,
			"batch", batch,
			"valid", len(valid),
			"attempts", attempts,
		)
	}

	result, err := aggregate(valid, eps)
	if err != nil {
		return nil, err
	}
	result.P = spec.P
	result.Attempts = attempts
	result.Discarded = discarded

	if len(valid) < repetitions {
		w := ConfigurationWarning{P: spec.P, Wanted: repetitions, Valid: len(valid), Attempts: attempts}
		cfg.logger.Warn("guaranteed delivery constraints rarely satisfied",
			"protocol", spec.Name,
			"p", spec.P,
			"valid", len(valid),
			"wanted", repetitions,
			"attempts", attempts,
		)
		result.Warnings = append(result.Warnings, w.String())
	}
	return result, nil
}

// runBatch runs n repetitions seeded first, first+1, ... in parallel. The
// first failure cancels the rest of the batch. The reported error is always
// the lowest-seeded failure, so repetitions cancelled below it are rerun
// before it is chosen.
func runBatch(ctx context.Context, spec *compiler.ExperimentSpec, first int64, n int, cfg config) ([]*engine.RunSummary, error) {
	summaries := make([]*engine.RunSummary, n)
	errs := make([]error, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return err
			}
			summaries[i], errs[i] = engine.RunContext(gctx, spec, first+int64(i), cfg.engineOpts...)
			return errs[i]
		})
	}
	if err := g.Wait(); err == nil {
		return summaries, nil
	}

	for i, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			// cancelled by a sibling
			summaries[i], err = engine.RunContext(ctx, spec, first+int64(i), cfg.engineOpts...)
			if err == nil {
				continue
			}
		}
		return nil, fmt.Errorf("repetition seed %d: %w", first+int64(i), err)
	}
	return summaries, nil
}

// aggregate reduces valid runs to their statistics. No runs give the
// degenerate all-zero result.
func aggregate(runs []*engine.RunSummary, eps float64) (*Result, error) {
	result := &Result{
		Repetitions:            len(runs),
		MeanDiscrepancyByRound: []float64{},
	}
	if len(runs) == 0 {
		return result, nil
	}

	finals := make([]float64, len(runs))
	messages := make([]float64, len(runs))
	consensus := 0
	width := len(runs[0].DiscrepancyByRound)
	sums := make([]float64, width)
	for i, r := range runs {
		finals[i] = r.DiscrepancyFinal
		messages[i] = float64(r.TotalMessagesDelivered)
		if r.DiscrepancyFinal <= eps {
			consensus++
		}
		if len(r.DiscrepancyByRound) != width {
			return nil, fmt.Errorf("montecarlo: discrepancy trace of run %d has %d entries, want %d",
				i, len(r.DiscrepancyByRound), width)
		}
		for k, d := range r.DiscrepancyByRound {
			sums[k] += d
		}
	}

	var err error
	if result.MeanDiscrepancy, err = stats.Mean(finals); err != nil {
		return nil, fmt.Errorf("montecarlo: mean discrepancy: %w", err)
	}
	if len(runs) > 1 {
		if result.VarDiscrepancy, err = stats.SampleVariance(finals); err != nil {
			return nil, fmt.Errorf("montecarlo: discrepancy variance: %w", err)
		}
	}
	if result.MeanMessagesDelivered, err = stats.Mean(messages); err != nil {
		return nil, fmt.Errorf("montecarlo: mean messages: %w", err)
	}
	result.ConsensusProbability = float64(consensus) / float64(len(runs))

	n := float64(len(runs))
	result.MeanDiscrepancyByRound = make([]float64, width)
	for k, s := range sums {
		result.MeanDiscrepancyByRound[k] = s / n
	}
	return result, nil
}
