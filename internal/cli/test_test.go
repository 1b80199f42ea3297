package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/consim/internal/harness"
)

var scenariosDir = filepath.Join("..", "harness", "testdata", "scenarios")

const failingScenario = `name: amp_never_meets
description: "AMP with full delivery, asserted to stay apart"
protocols:
  - source: |
      PROTOCOL AMP
      PROCESSES: 2
      STATE: x ∈ {0, 1}
      INITIAL VALUES: [0, 1]
      PARAMETERS: y = 0.5
      CHANNEL: stochastic
      UPDATE RULE:
        EACH ROUND: if received_diff then x ← y else x ← x
      METRICS: discrepancy, consensus
sweep:
  p_values: [1]
  rounds: 1
  repetitions: 5
assertions:
  - type: mean_discrepancy
    protocol: AMP
    p: 1
    expect: 1
`

func TestTestCommandMissingArgs(t *testing.T) {
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestTestCommandNonExistentPath(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/scenarios"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "scenario path not found")
}

func TestTestCommandEmptyDir(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{t.TempDir()})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "no scenario files matched")
}

func TestTestCommandPassingScenario(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{filepath.Join(scenariosDir, "amp_extremes.yaml")})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "1 passed, 0 failed, 1 total")
}

func TestTestCommandFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{scenariosDir, "--filter", "amp_ext*"})

	require.NoError(t, cmd.Execute())

	result := decodeResponse[harness.SuiteResult](t, buf.Bytes())
	assert.Equal(t, 1, result.TotalScenarios)
	assert.Equal(t, 1, result.Passed)
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "never_meets.yaml"), []byte(failingScenario), 0o644))

	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	output := buf.String()
	assert.Contains(t, output, "✗ amp_never_meets")
	assert.Contains(t, output, "Assertion failed: mean_discrepancy (AMP)")
	assert.Contains(t, output, "0 passed, 1 failed, 1 total")
}
