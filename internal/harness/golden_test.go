package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/consim/internal/montecarlo"
)

func TestRunWithGolden_AMPExtremes(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/amp_extremes.yaml")
	require.NoError(t, err)

	// First run with -update to create golden file:
	//   go test ./internal/harness -run TestRunWithGolden_AMPExtremes -update
	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestResultSnapshot_Deterministic(t *testing.T) {
	r := NewResult()
	r.AddSweep("B", []montecarlo.Result{{P: 1, Repetitions: 2, Warnings: []string{"w"}}})
	r.AddSweep("A", []montecarlo.Result{{P: 0, Repetitions: 2}})
	snapshot := ResultSnapshot{ScenarioName: "order", Result: r}

	first, err := snapshot.Marshal()
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := snapshot.Marshal()
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Contains(t, string(first), `"results":{"A":[`)
	assert.Contains(t, string(first), `"warnings":["w"]`)
}
