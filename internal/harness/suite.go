package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
)

// SuiteResult summarises a directory of scenarios.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one scenario that failed to load, run or pass.
type ScenarioFailure struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// FindScenarios returns the .yaml and .yml files in dir, sorted by name.
func FindScenarios(dir string) ([]string, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)
	return paths, nil
}

// RunSuite runs every scenario in paths. A scenario that cannot be loaded
// or executed counts as failed; the suite carries on with the next one.
func (h *Harness) RunSuite(ctx context.Context, paths []string) *SuiteResult {
	res := &SuiteResult{TotalScenarios: len(paths)}
	for _, path := range paths {
		scenario, err := LoadScenario(path)
		if err != nil {
			res.fail(filepath.Base(path), path, err.Error())
			continue
		}
		result, err := h.Run(ctx, scenario)
		if err != nil {
			res.fail(scenario.Name, path, err.Error())
			continue
		}
		if !result.Pass {
			res.fail(scenario.Name, path, result.Errors...)
			continue
		}
		res.Passed++
	}
	return res
}

// RunDir runs every scenario file in dir.
func (h *Harness) RunDir(ctx context.Context, dir string) (*SuiteResult, error) {
	paths, err := FindScenarios(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files in %s", dir)
	}
	return h.RunSuite(ctx, paths), nil
}

func (r *SuiteResult) fail(name, path string, errs ...string) {
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{Scenario: name, Path: path, Errors: errs})
}
