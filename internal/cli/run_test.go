package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/consim/internal/ir"
	"github.com/roach88/consim/internal/montecarlo"
	"github.com/roach88/consim/internal/store"
	"github.com/roach88/consim/internal/testutil"
)

func TestRunJSON(t *testing.T) {
	path := writeProtocol(t, "amp.consim", testutil.AMPSource)

	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{path, "--p", "0,1", "--rounds", "1", "-n", "10", "--seed", "3"})

	require.NoError(t, cmd.Execute())

	out := decodeResponse[RunOutput](t, buf.Bytes())
	assert.Equal(t, "AMP", out.Protocol)
	assert.Len(t, out.ProtocolHash, 64)
	assert.Empty(t, out.SweepID)
	require.Len(t, out.Results, 2)

	assert.Equal(t, 0.0, out.Results[0].P)
	assert.Equal(t, 1.0, out.Results[0].MeanDiscrepancy)
	assert.Equal(t, 0.0, out.Results[0].ConsensusProbability)

	assert.Equal(t, 1.0, out.Results[1].P)
	assert.Equal(t, 0.0, out.Results[1].MeanDiscrepancy)
	assert.Equal(t, 1.0, out.Results[1].ConsensusProbability)
	assert.Equal(t, 10, out.Results[1].Repetitions)
}

func TestRunText(t *testing.T) {
	path := writeProtocol(t, "amp.consim", testutil.AMPSource)

	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{path, "--p", "1", "--rounds", "1", "-n", "5"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "Protocol AMP")
	assert.Contains(t, output, "5 repetition(s), 1 round(s), seed 0, topology complete")
	assert.Contains(t, output, "mean_discrepancy")
	assert.NotContains(t, output, "Stored as sweep")
}

func TestRunTextReportsRequestedMetrics(t *testing.T) {
	source := strings.Replace(testutil.AMPSource, "METRICS: discrepancy, consensus", "METRICS: consensus", 1)
	path := writeProtocol(t, "amp.consim", source)

	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{path, "--p", "1", "--rounds", "1", "-n", "5"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "consensus")
	assert.NotContains(t, output, "mean_discrepancy")
	assert.NotContains(t, output, "var_discrepancy")
}

func TestWriteResultsTable_Columns(t *testing.T) {
	results := []montecarlo.Result{{P: 0.5, Repetitions: 4, Attempts: 4, MeanDiscrepancy: 0.25, ConsensusProbability: 0.5}}

	buf := &bytes.Buffer{}
	writeResultsTable(buf, results, &ir.ProtocolIR{Metrics: []ir.Metric{ir.MetricDiscrepancy}})
	assert.Contains(t, buf.String(), "mean_discrepancy")
	assert.Contains(t, buf.String(), "0.250000")
	assert.NotContains(t, buf.String(), "consensus")

	buf.Reset()
	writeResultsTable(buf, results, &ir.ProtocolIR{Metrics: ir.DefaultMetrics})
	header := strings.Fields(strings.SplitN(buf.String(), "\n", 2)[0])
	assert.Equal(t, []string{"p", "mean_discrepancy", "var_discrepancy", "consensus", "messages", "runs"}, header)
}

func TestRunStoresSweep(t *testing.T) {
	path := writeProtocol(t, "amp.consim", testutil.AMPSource)
	dbPath := filepath.Join(t.TempDir(), "sweeps.db")

	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd := newRunCommand(&RunOptions{
		RootOptions: &RootOptions{Format: "json"},
		IDGenerator: testutil.NewSequentialIDs("sweep"),
	})
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{path, "--p", "0,0.5,1", "--rounds", "2", "-n", "20", "--db", dbPath})

	require.NoError(t, cmd.Execute())

	out := decodeResponse[RunOutput](t, buf.Bytes())
	assert.Equal(t, "sweep-0001", out.SweepID)
	assert.Contains(t, errBuf.String(), "sweep stored")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	sw, err := st.ReadSweep(t.Context(), "sweep-0001")
	require.NoError(t, err)
	assert.Equal(t, out.ProtocolHash, sw.ProtocolHash)
	assert.Equal(t, out.Results, sw.Results)
	assert.Equal(t, testutil.AMPSource, sw.Source)
}

func TestRunFromConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "amp.consim"), []byte(testutil.AMPSource), 0o644))
	configPath := filepath.Join(dir, "exp.cue")
	require.NoError(t, os.WriteFile(configPath, []byte(`protocol: "amp.consim"
p_values: [0, 1]
rounds: 1
repetitions: 10
`), 0o644))

	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", configPath, "-n", "4"})

	require.NoError(t, cmd.Execute())

	out := decodeResponse[RunOutput](t, buf.Bytes())
	assert.Equal(t, []float64{0, 1}, out.Params.PValues)
	assert.Equal(t, 1, out.Params.Rounds)
	assert.Equal(t, 4, out.Params.Repetitions, "flags override the config file")
	require.Len(t, out.Results, 2)
	assert.Equal(t, 4, out.Results[0].Repetitions)
}

func TestRunBadConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "exp.cue")
	require.NoError(t, os.WriteFile(configPath, []byte(`protocol: "a", rounds: -1`), 0o644))

	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", configPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeConfig)
}

func TestRunNoProtocol(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "no protocol")
}

func TestRunInvalidProtocol(t *testing.T) {
	path := writeProtocol(t, "amp.consim", undefinedParamSource)

	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeValidation)
}

func TestRunUnknownTopology(t *testing.T) {
	path := writeProtocol(t, "amp.consim", testutil.AMPSource)

	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path, "--topology", "mesh"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunHelpText(t *testing.T) {
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	assert.Contains(t, cmd.Long, "Exit codes:")
	assert.Contains(t, cmd.Long, "--config")
}
