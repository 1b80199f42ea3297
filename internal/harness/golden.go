package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/consim/internal/ir"
)

// ResultSnapshot captures the outcome of a scenario for golden comparison.
type ResultSnapshot struct {
	ScenarioName string
	Result       *Result
}

// toCanonicalMap converts the snapshot to a map for ir.MarshalCanonical.
// Failure messages are left out; Pass records whether there were any.
func (s *ResultSnapshot) toCanonicalMap() map[string]any {
	results := make(map[string]any, len(s.Result.Results))
	for name, sweep := range s.Result.Results {
		list := make([]any, len(sweep))
		for i, r := range sweep {
			list[i] = r.Canonical()
		}
		results[name] = list
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"pass":          s.Result.Pass,
		"results":       results,
	}
}

// Marshal renders the snapshot as canonical JSON.
func (s *ResultSnapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its results against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can assert on it further. Test failure
// (via goldie) occurs if the results don't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot := ResultSnapshot{ScenarioName: name, Result: result}
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
