package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/consim/internal/engine"
	"github.com/roach88/consim/internal/runner"
	"github.com/roach88/consim/internal/testutil"
)

func TestParse_Defaults(t *testing.T) {
	exp, err := Parse([]byte(`protocol: "amp.proto"`), "exp.cue")
	require.NoError(t, err)

	assert.Equal(t, "amp.proto", exp.Protocol)
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, exp.PValues)
	assert.Equal(t, 1, exp.Rounds)
	assert.Equal(t, 1000, exp.Repetitions)
	assert.Equal(t, int64(0), exp.Seed)
	assert.Equal(t, 1e-9, exp.ConsensusEps)
	assert.Equal(t, "complete", exp.Topology)
	assert.Nil(t, exp.Faults)
}

func TestParse_AllFields(t *testing.T) {
	src := `
protocol:      "leader.proto"
p_values:      [0.1, 1]
rounds:        4
repetitions:   20
seed:          7
consensus_eps: 0.001
workers:       2
topology:      "ring"
faults: {kind: "crash", nodes: [2, 3], from: 2}
`
	exp, err := Parse([]byte(src), "exp.cue")
	require.NoError(t, err)

	assert.Equal(t, []float64{0.1, 1}, exp.PValues)
	assert.Equal(t, 4, exp.Rounds)
	assert.Equal(t, 20, exp.Repetitions)
	assert.Equal(t, int64(7), exp.Seed)
	assert.Equal(t, 0.001, exp.ConsensusEps)
	assert.Equal(t, 2, exp.Workers)
	require.NotNil(t, exp.Faults)
	assert.Equal(t, &Faults{Kind: "crash", Nodes: []int{2, 3}, From: 2}, exp.Faults)

	sweep, err := exp.Sweep()
	require.NoError(t, err)
	assert.Equal(t, engine.Ring{}, sweep.Topology)
	assert.Equal(t, engine.CrashFaults{Nodes: []int{2, 3}, From: 2}, sweep.Faults)
}

func TestParse_ByzantineFaults(t *testing.T) {
	src := `protocol: "a", faults: {kind: "byzantine", nodes: [1], value: 0.5}`
	exp, err := Parse([]byte(src), "exp.cue")
	require.NoError(t, err)
	faults, err := exp.FaultModel()
	require.NoError(t, err)
	assert.Equal(t, engine.ByzantineFaults{Nodes: []int{1}, Value: 0.5}, faults)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing protocol", `rounds: 2`},
		{"p out of range", `protocol: "a", p_values: [1.5]`},
		{"negative rounds", `protocol: "a", rounds: -1`},
		{"zero repetitions", `protocol: "a", repetitions: 0`},
		{"unknown topology", `protocol: "a", topology: "mesh"`},
		{"unknown field", `protocol: "a", colour: "blue"`},
		{"bad fault kind", `protocol: "a", faults: {kind: "delay", nodes: [1]}`},
		{"empty p values", `protocol: "a", p_values: []`},
		{"syntax", `protocol: `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "exp.cue")
			require.Error(t, err)
			var ce *ConfigError
			assert.ErrorAs(t, err, &ce)
		})
	}
}

func TestConfigError_Format(t *testing.T) {
	err := &ConfigError{Field: "rounds", Message: "bad"}
	assert.Equal(t, "rounds: bad", err.Error())
}

func TestLoad_ResolvesProtocolPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "amp.proto"), []byte(testutil.AMPSource), 0o644))
	path := filepath.Join(dir, "exp.cue")
	require.NoError(t, os.WriteFile(path, []byte(`protocol: "amp.proto"
p_values: [0, 1]
repetitions: 10
`), 0o644))

	exp, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "amp.proto"), exp.Protocol)

	sweep, err := exp.Sweep()
	require.NoError(t, err)
	results, err := runner.RunProtocol(exp.Protocol, sweep)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1.0, results[0].MeanDiscrepancy)
	assert.Equal(t, 0.0, results[1].MeanDiscrepancy)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.cue"))
	assert.Error(t, err)
}
