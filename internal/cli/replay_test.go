package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/consim/internal/store"
	"github.com/roach88/consim/internal/testutil"
)

// storeSweeps runs AMP count times into a fresh database and returns its
// path.
func storeSweeps(t *testing.T, count int) string {
	t.Helper()
	path := writeProtocol(t, "amp.consim", testutil.AMPSource)
	dbPath := filepath.Join(t.TempDir(), "sweeps.db")
	ids := testutil.NewSequentialIDs("sweep")

	for i := 0; i < count; i++ {
		cmd := newRunCommand(&RunOptions{
			RootOptions: &RootOptions{Format: "json"},
			IDGenerator: ids,
		})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{path, "--p", "0.25,0.75", "--rounds", "2", "-n", "30", "--seed", "5", "--db", dbPath})
		require.NoError(t, cmd.Execute())
	}
	return dbPath
}

func TestReplayMissingDatabaseFlag(t *testing.T) {
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewReplayCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{}) // Missing --db flag

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestReplayNonExistentDatabase(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewReplayCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", filepath.Join(t.TempDir(), "missing.db")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "database not found")
}

func TestReplayEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	st.Close()

	buf := &bytes.Buffer{}
	cmd := NewReplayCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "No sweeps found")
}

func TestReplayReproducesStoredSweeps(t *testing.T) {
	dbPath := storeSweeps(t, 2)

	buf := &bytes.Buffer{}
	cmd := NewReplayCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath})

	require.NoError(t, cmd.Execute())

	result := decodeResponse[ReplayResult](t, buf.Bytes())
	assert.Equal(t, 2, result.TotalSweeps)
	assert.True(t, result.AllIdentical)
	require.Len(t, result.Sweeps, 2)
	assert.Equal(t, "sweep-0001", result.Sweeps[0].SweepID)
	assert.Equal(t, "AMP", result.Sweeps[0].Protocol)
	assert.True(t, result.Sweeps[0].ProtocolMatch)
	assert.Equal(t, result.Sweeps[0].StoredHash, result.Sweeps[0].ReplayedHash)
}

func TestReplaySingleSweepText(t *testing.T) {
	dbPath := storeSweeps(t, 2)

	buf := &bytes.Buffer{}
	cmd := NewReplayCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath, "--sweep", "sweep-0002"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ sweep-0002 AMP")
	assert.Contains(t, buf.String(), "All 1 sweep(s) reproduced exactly.")
}

func TestReplayUnknownSweep(t *testing.T) {
	dbPath := storeSweeps(t, 1)

	buf := &bytes.Buffer{}
	cmd := NewReplayCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath, "--sweep", "nope"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "sweep not found")
}

func TestReplayByProtocolHash(t *testing.T) {
	dbPath := storeSweeps(t, 2)

	other := writeProtocol(t, "avg.consim", testutil.AveragingSource)
	run := newRunCommand(&RunOptions{
		RootOptions: &RootOptions{Format: "json"},
		IDGenerator: testutil.NewSequentialIDs("avg"),
	})
	run.SetOut(&bytes.Buffer{})
	run.SetErr(&bytes.Buffer{})
	run.SetArgs([]string{other, "--p", "0.5", "--rounds", "2", "-n", "10", "--db", dbPath})
	require.NoError(t, run.Execute())

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	sweeps, err := st.ListSweeps(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.Len(t, sweeps, 3)

	var ampHash string
	for _, sw := range sweeps {
		if sw.ProtocolName == "AMP" {
			ampHash = sw.ProtocolHash
		}
	}
	require.NotEmpty(t, ampHash)

	buf := &bytes.Buffer{}
	cmd := NewReplayCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath, "--protocol-hash", ampHash})

	require.NoError(t, cmd.Execute())
	result := decodeResponse[ReplayResult](t, buf.Bytes())
	assert.Equal(t, 2, result.TotalSweeps)
	for _, s := range result.Sweeps {
		assert.Equal(t, "AMP", s.Protocol)
	}
}

func TestReplayUnknownProtocolHash(t *testing.T) {
	dbPath := storeSweeps(t, 1)

	buf := &bytes.Buffer{}
	cmd := NewReplayCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath, "--protocol-hash", "0000"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "No sweeps found")
}

func TestReplaySweepAndProtocolHashExclusive(t *testing.T) {
	dbPath := storeSweeps(t, 1)

	cmd := NewReplayCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath, "--sweep", "sweep-0001", "--protocol-hash", "0000"})

	require.Error(t, cmd.Execute())
}
