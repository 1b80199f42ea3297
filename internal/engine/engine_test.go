package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roach88/consim/internal/compiler"
	"github.com/roach88/consim/internal/parser"
	"github.com/roach88/consim/internal/testutil"
)

// testingT is satisfied by both *testing.T and *rapid.T.
type testingT interface {
	require.TestingT
	Helper()
}

func compileSource(t testingT, source string, p float64, rounds int) *compiler.ExperimentSpec {
	t.Helper()
	protocol, err := parser.Parse(source)
	require.NoError(t, err)
	spec, err := compiler.Compile(protocol, p, rounds)
	require.NoError(t, err)
	return spec
}

func TestRun_AMPFullDelivery(t *testing.T) {
	spec := compileSource(t, testutil.AMPSource, 1, 3)

	summary, err := Run(spec, 42)
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 0, 0, 0}, summary.DiscrepancyByRound)
	assert.Equal(t, []int{2, 2, 2}, summary.MessagesPerRound)
	assert.Equal(t, 6, summary.TotalMessagesDelivered)
	assert.Equal(t, 0.0, summary.DiscrepancyFinal)
	assert.True(t, summary.ConsensusFinal)
	assert.Equal(t, []float64{0.5, 0.5}, summary.FinalValues)
}

func TestRun_AMPNoDelivery(t *testing.T) {
	spec := compileSource(t, testutil.AMPSource, 0, 3)

	summary, err := Run(spec, 42)
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 1, 1, 1}, summary.DiscrepancyByRound)
	assert.Equal(t, []int{0, 0, 0}, summary.MessagesPerRound)
	assert.Zero(t, summary.TotalMessagesDelivered)
	assert.False(t, summary.ConsensusFinal)
	assert.Equal(t, []float64{0, 1}, summary.FinalValues)
}

func TestRun_FVSwapsSimultaneously(t *testing.T) {
	spec := compileSource(t, testutil.FVSource, 1, 1)

	summary, err := Run(spec, 1)
	require.NoError(t, err)

	// Both processes read the committed state of round 0, so they swap.
	assert.Equal(t, []float64{1, 0}, summary.FinalValues)
	assert.Equal(t, []float64{1, 1}, summary.DiscrepancyByRound)
}

func TestRun_AveragingReachesMean(t *testing.T) {
	spec := compileSource(t, testutil.AveragingSource, 1, 2)

	summary, err := Run(spec, 7)
	require.NoError(t, err)

	assert.Equal(t, []float64{0.5, 0.5, 0.5}, summary.FinalValues)
	assert.Equal(t, []float64{1, 0, 0}, summary.DiscrepancyByRound)
}

func TestRun_AveragingIdempotentAtConsensus(t *testing.T) {
	source := strings.Replace(testutil.AveragingSource, "[0, 0.5, 1]", "[0.25, 0.25, 0.25]", 1)
	rapid.Check(t, func(rt *rapid.T) {
		p := rapid.Float64Range(0, 1).Draw(rt, "p")
		seed := rapid.Int64().Draw(rt, "seed")
		spec := compileSource(rt, source, p, 5)

		summary, err := Run(spec, seed)
		require.NoError(rt, err)
		assert.Equal(rt, []float64{0.25, 0.25, 0.25}, summary.FinalValues)
		for _, d := range summary.DiscrepancyByRound {
			assert.Zero(rt, d)
		}
	})
}

func TestRun_LeaderWithEndPhase(t *testing.T) {
	spec := compileSource(t, testutil.LeaderSource, 1, 2)
	require.True(t, spec.HasEnd())

	summary, err := Run(spec, 3)
	require.NoError(t, err)

	assert.Len(t, summary.DiscrepancyByRound, spec.Rounds+2)
	assert.Equal(t, []float64{1, 0, 0, 0}, summary.DiscrepancyByRound)
	assert.Len(t, summary.MessagesPerRound, spec.Rounds)
	assert.Equal(t, []float64{0, 0, 0, 0}, summary.FinalValues)
}

func TestRun_ZeroRounds(t *testing.T) {
	spec := compileSource(t, testutil.AMPSource, 1, 0)

	summary, err := Run(spec, 0)
	require.NoError(t, err)

	assert.Equal(t, []float64{1}, summary.DiscrepancyByRound)
	assert.Empty(t, summary.MessagesPerRound)
	assert.Equal(t, 1.0, summary.DiscrepancyFinal)
}

func TestRun_EmptyAggregationFails(t *testing.T) {
	source := strings.Replace(testutil.AveragingSource, "avg(inbox ∪ {x})", "avg(inbox)", 1)
	spec := compileSource(t, source, 0, 2)

	_, err := Run(spec, 5)
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
	assert.True(t, compiler.IsEvaluationError(err))
	assert.True(t, compiler.HasCode(err, compiler.ErrCodeEmptyAggregation))

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeEvaluation, re.Code)
	assert.Equal(t, 1, re.NodeID)
	assert.Equal(t, 1, re.Round)
}

func TestRun_InvalidSpec(t *testing.T) {
	_, err := Run(nil, 1)
	assert.True(t, IsInvalidSpecError(err))

	spec := compileSource(t, testutil.AMPSource, 1, 1)
	broken := *spec
	broken.Delivery = nil
	_, err = Run(&broken, 1)
	assert.True(t, IsInvalidSpecError(err))
}

func TestRunContext_Cancelled(t *testing.T) {
	spec := compileSource(t, testutil.AMPSource, 1, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunContext(ctx, spec, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_SameSeedSameSummary(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		p := rapid.Float64Range(0, 1).Draw(rt, "p")
		rounds := rapid.IntRange(0, 12).Draw(rt, "rounds")
		seed := rapid.Int64().Draw(rt, "seed")
		source := rapid.SampledFrom([]string{
			testutil.AMPSource,
			testutil.FVSource,
			testutil.AveragingSource,
			testutil.LeaderSource,
		}).Draw(rt, "source")
		spec := compileSource(rt, source, p, rounds)

		first, err := Run(spec, seed)
		require.NoError(rt, err)
		second, err := Run(spec, seed)
		require.NoError(rt, err)
		assert.Equal(rt, first, second)
	})
}

func TestRun_TraceLength(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		rounds := rapid.IntRange(0, 10).Draw(rt, "rounds")
		leader := rapid.Bool().Draw(rt, "leader")
		source := testutil.AMPSource
		if leader {
			source = testutil.LeaderSource
		}
		spec := compileSource(rt, source, 0.5, rounds)

		sink := &RecordingSink{}
		summary, err := Run(spec, int64(rounds), WithTraceSink(sink))
		require.NoError(rt, err)

		want := rounds + 1
		if spec.HasEnd() {
			want++
		}
		assert.Len(rt, summary.DiscrepancyByRound, want)
		assert.Len(rt, sink.Records(), want)
		assert.Len(rt, summary.MessagesPerRound, rounds)
	})
}

// Messages delivered in round r carry the values committed at the end of
// round r-1, so no process can observe a value updated in the same round.
func TestRun_RoundCommitIsAtomic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		p := rapid.Float64Range(0, 1).Draw(rt, "p")
		seed := rapid.Int64().Draw(rt, "seed")
		source := rapid.SampledFrom([]string{
			testutil.AMPSource,
			testutil.FVSource,
			testutil.AveragingSource,
		}).Draw(rt, "source")
		spec := compileSource(rt, source, p, 6)

		sink := &RecordingSink{}
		summary, err := Run(spec, seed, WithTraceSink(sink))
		require.NoError(rt, err)

		records := sink.Records()
		total := 0
		for r := 1; r < len(records); r++ {
			prev := records[r-1].Values
			assert.Equal(rt, summary.MessagesPerRound[r-1], len(records[r].Delivered))
			for _, m := range records[r].Delivered {
				assert.Equal(rt, prev[m.Sender-1], m.Payload)
			}
			total += len(records[r].Delivered)
		}
		assert.Equal(rt, summary.TotalMessagesDelivered, total)
	})
}

func TestRun_InboxOrderedBySender(t *testing.T) {
	spec := compileSource(t, testutil.AveragingSource, 1, 1)
	sink := &RecordingSink{}

	_, err := Run(spec, 9, WithTraceSink(sink))
	require.NoError(t, err)

	delivered := sink.Records()[1].Delivered
	require.Len(t, delivered, 6)
	want := []compiler.Message{
		{Sender: 1, Receiver: 2, Payload: 0},
		{Sender: 1, Receiver: 3, Payload: 0},
		{Sender: 2, Receiver: 1, Payload: 0.5},
		{Sender: 2, Receiver: 3, Payload: 0.5},
		{Sender: 3, Receiver: 1, Payload: 1},
		{Sender: 3, Receiver: 2, Payload: 1},
	}
	assert.Equal(t, want, delivered)
}

func TestRun_RecordStages(t *testing.T) {
	spec := compileSource(t, testutil.LeaderSource, 1, 1)
	sink := &RecordingSink{}

	_, err := Run(spec, 9, WithTraceSink(sink))
	require.NoError(t, err)

	records := sink.Records()
	require.Len(t, records, 3)
	assert.Equal(t, StageInit, records[0].Stage)
	assert.Equal(t, 0, records[0].Round)
	assert.Equal(t, StageRound, records[1].Stage)
	assert.Equal(t, StageEnd, records[2].Stage)
	assert.Equal(t, 2, records[2].Round)
	assert.Empty(t, records[2].Delivered)
}
