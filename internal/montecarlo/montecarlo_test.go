package montecarlo

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/consim/internal/compiler"
	"github.com/roach88/consim/internal/engine"
	"github.com/roach88/consim/internal/parser"
	"github.com/roach88/consim/internal/testutil"
)

func compileSource(t *testing.T, source string, p float64, rounds int) *compiler.ExperimentSpec {
	t.Helper()
	protocol, err := parser.Parse(source)
	require.NoError(t, err)
	spec, err := compiler.Compile(protocol, p, rounds)
	require.NoError(t, err)
	return spec
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestRunMany_AMPClosedForm(t *testing.T) {
	tests := []struct {
		p         float64
		wantMean  float64
		tolerance float64
	}{
		{0, 1, 0},
		{0.5, 0.5, 0.05},
		{1, 0, 0},
	}
	for _, tt := range tests {
		spec := compileSource(t, testutil.AMPSource, tt.p, 1)

		result, err := RunMany(spec, 2000, 11, compiler.DefaultConsensusEps)
		require.NoError(t, err)

		assert.Equal(t, tt.p, result.P)
		assert.Equal(t, 2000, result.Repetitions)
		assert.Equal(t, 2000, result.Attempts)
		assert.Zero(t, result.Discarded)
		assert.Empty(t, result.Warnings)
		assert.InDelta(t, tt.wantMean, result.MeanDiscrepancy, tt.tolerance, "p=%g", tt.p)
		assert.Len(t, result.MeanDiscrepancyByRound, 2)
	}
}

func TestRunMany_AMPExtremes(t *testing.T) {
	never, err := RunMany(compileSource(t, testutil.AMPSource, 0, 1), 50, 1, compiler.DefaultConsensusEps)
	require.NoError(t, err)
	assert.Equal(t, 0.0, never.ConsensusProbability)
	assert.Equal(t, 0.0, never.VarDiscrepancy)
	assert.Equal(t, 0.0, never.MeanMessagesDelivered)

	always, err := RunMany(compileSource(t, testutil.AMPSource, 1, 1), 50, 1, compiler.DefaultConsensusEps)
	require.NoError(t, err)
	assert.Equal(t, 1.0, always.ConsensusProbability)
	assert.Equal(t, 2.0, always.MeanMessagesDelivered)
	assert.Equal(t, []float64{1, 0}, always.MeanDiscrepancyByRound)
}

func TestRunMany_ConsensusMonotone(t *testing.T) {
	for _, source := range []string{testutil.AMPSource, testutil.AveragingSource} {
		low, err := RunMany(compileSource(t, source, 0, 3), 200, 5, compiler.DefaultConsensusEps)
		require.NoError(t, err)
		high, err := RunMany(compileSource(t, source, 1, 3), 200, 5, compiler.DefaultConsensusEps)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, high.ConsensusProbability, low.ConsensusProbability)
		assert.LessOrEqual(t, high.MeanDiscrepancy, low.MeanDiscrepancy)
	}
}

func TestRunMany_RejectionSampling(t *testing.T) {
	spec := compileSource(t, testutil.GuaranteedAMPSource, 0.7, 2)

	result, err := RunMany(spec, 50, 3, compiler.DefaultConsensusEps, WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.Equal(t, 50, result.Repetitions)
	assert.Greater(t, result.Attempts, result.Repetitions)
	assert.Equal(t, result.Attempts-result.Repetitions, result.Discarded)
	assert.Empty(t, result.Warnings)
	// Every valid run had both messages delivered in both rounds.
	assert.Equal(t, 4.0, result.MeanMessagesDelivered)
	assert.Equal(t, 1.0, result.ConsensusProbability)
}

func TestRunMany_ValidRunsMeetGuarantee(t *testing.T) {
	spec := compileSource(t, testutil.GuaranteedAMPSource, 0.8, 3)
	required := spec.Delivery.Guarantees()[0].MinMessages

	for seed := int64(0); seed < 200; seed++ {
		summary, err := engine.Run(spec, seed)
		require.NoError(t, err)
		if !spec.Delivery.Satisfied(summary.MessagesPerRound, summary.TotalMessagesDelivered) {
			continue
		}
		for _, m := range summary.MessagesPerRound {
			assert.GreaterOrEqual(t, m, required)
		}
	}
}

func TestRunMany_BudgetExhausted(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	spec := compileSource(t, testutil.GuaranteedAMPSource, 0, 1)

	result, err := RunMany(spec, 3, 1, compiler.DefaultConsensusEps, WithLogger(logger))
	require.NoError(t, err)

	assert.Equal(t, 0, result.Repetitions)
	assert.Equal(t, 300, result.Attempts)
	assert.Equal(t, 300, result.Discarded)
	assert.Equal(t, 0.0, result.MeanDiscrepancy)
	assert.Equal(t, 0.0, result.VarDiscrepancy)
	assert.Equal(t, 0.0, result.ConsensusProbability)
	assert.Empty(t, result.MeanDiscrepancyByRound)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "only 0 of 3")
	assert.Contains(t, buf.String(), "level=WARN")
}

func TestRunMany_IndependentOfWorkers(t *testing.T) {
	spec := compileSource(t, testutil.GuaranteedAMPSource, 0.6, 2)

	one, err := RunMany(spec, 40, 17, compiler.DefaultConsensusEps, WithWorkers(1))
	require.NoError(t, err)
	many, err := RunMany(spec, 40, 17, compiler.DefaultConsensusEps, WithWorkers(8))
	require.NoError(t, err)

	assert.Equal(t, one, many)
}

func TestRunMany_EvaluationErrorNotAbsorbed(t *testing.T) {
	source := strings.Replace(testutil.AveragingSource, "avg(inbox ∪ {x})", "avg(inbox)", 1)
	spec := compileSource(t, source, 0.5, 3)

	_, err := RunMany(spec, 20, 1, compiler.DefaultConsensusEps)
	require.Error(t, err)
	assert.True(t, compiler.HasCode(err, compiler.ErrCodeEmptyAggregation))
}

func TestRunMany_ReportsLowestFailingSeed(t *testing.T) {
	source := strings.Replace(testutil.AveragingSource, "avg(inbox ∪ {x})", "avg(inbox)", 1)
	spec := compileSource(t, source, 0.5, 3)

	_, serial := RunMany(spec, 64, 9, compiler.DefaultConsensusEps, WithWorkers(1))
	require.Error(t, serial)
	for range 5 {
		_, parallel := RunMany(spec, 64, 9, compiler.DefaultConsensusEps, WithWorkers(8))
		require.Error(t, parallel)
		assert.Equal(t, serial.Error(), parallel.Error())
		assert.True(t, compiler.HasCode(parallel, compiler.ErrCodeEmptyAggregation))
	}
}

func TestRunMany_EngineOptions(t *testing.T) {
	spec := compileSource(t, testutil.AMPSource, 1, 1)

	result, err := RunMany(spec, 10, 1, compiler.DefaultConsensusEps,
		WithEngineOptions(engine.WithFaults(engine.CrashFaults{Nodes: []int{1, 2}, From: 1})))
	require.NoError(t, err)

	assert.Equal(t, 1.0, result.MeanDiscrepancy)
	assert.Equal(t, 0.0, result.MeanMessagesDelivered)
}

func TestRunMany_RejectsBadArguments(t *testing.T) {
	spec := compileSource(t, testutil.AMPSource, 1, 1)

	_, err := RunMany(nil, 1, 0, 0)
	assert.Error(t, err)
	_, err = RunMany(spec, 0, 0, 0)
	assert.Error(t, err)
	_, err = RunMany(spec, 1, 0, -1)
	assert.Error(t, err)
}

func TestAggregate_BesselVariance(t *testing.T) {
	runs := []*engine.RunSummary{
		{DiscrepancyFinal: 0, DiscrepancyByRound: []float64{1, 0}, TotalMessagesDelivered: 2},
		{DiscrepancyFinal: 1, DiscrepancyByRound: []float64{1, 1}, TotalMessagesDelivered: 0},
	}

	result, err := aggregate(runs, 0.1)
	require.NoError(t, err)

	assert.Equal(t, 0.5, result.MeanDiscrepancy)
	assert.Equal(t, 0.5, result.VarDiscrepancy)
	assert.Equal(t, 0.5, result.ConsensusProbability)
	assert.Equal(t, 1.0, result.MeanMessagesDelivered)
	assert.Equal(t, []float64{1, 0.5}, result.MeanDiscrepancyByRound)
}

func TestAggregate_SingleRunHasZeroVariance(t *testing.T) {
	result, err := aggregate([]*engine.RunSummary{{DiscrepancyFinal: 0.3, DiscrepancyByRound: []float64{0.3}}}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.VarDiscrepancy)
	assert.Equal(t, 0.3, result.MeanDiscrepancy)
}

func TestAggregate_TraceLengthMismatch(t *testing.T) {
	runs := []*engine.RunSummary{
		{DiscrepancyByRound: []float64{1, 0}},
		{DiscrepancyByRound: []float64{1}},
	}
	_, err := aggregate(runs, 0)
	assert.Error(t, err)
}

func TestAttemptBudget(t *testing.T) {
	b := newAttemptBudget(5, false)
	assert.Equal(t, 5, b.take(10))
	assert.True(t, b.exhausted())

	b = newAttemptBudget(2, true)
	assert.Equal(t, 2, b.take(2))
	assert.False(t, b.exhausted())
	assert.Equal(t, 198, b.take(1000))
	assert.True(t, b.exhausted())
	assert.Equal(t, 0, b.take(1))
}
