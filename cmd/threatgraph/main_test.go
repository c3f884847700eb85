package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &bytes.Buffer{}
	err := app.Run(append([]string{"threatgraph"}, args...))
	return out.String(), err
}

func TestSetupLogger(t *testing.T) {
	_, err := runApp(t, "--log-level", "verbose", "runs", "--graph", t.TempDir())
	assert.ErrorContains(t, err, "invalid log level")
}

func TestRequiredFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		flag string
	}{
		{name: "chunk needs input", args: []string{"chunk", "--output", "x.json"}, flag: "input"},
		{name: "chunk needs output", args: []string{"chunk", "--input", "x.json"}, flag: "output"},
		{name: "reconstruct needs archive", args: []string{"reconstruct"}, flag: "archive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runApp(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.flag)
		})
	}
}

func TestChunkReconstructRunRuns(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "threats.json")
	archive := filepath.Join(dir, "chunks.json.gz")
	graphDir := filepath.Join(dir, "graph")
	checkpointPath := filepath.Join(dir, "checkpoint.json")

	require.NoError(t, os.WriteFile(input, []byte(`[
		{"description": "<p>APT28 used Mimikatz and EternalBlue to move laterally after exploiting CVE-2017-0144 on exposed hosts.</p>", "source": "otx", "type": "report"},
		{"description": "<div>Sandworm operators deployed Cobalt Strike beacons against energy sector networks in 2022.</div>", "source": "cisa"},
		{"description": ""}
	]`), 0o644))

	out, err := runApp(t, "chunk", "--input", input, "--output", archive)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 2 chunks from 3 records")

	out, err = runApp(t, "reconstruct", "--archive", archive)
	require.NoError(t, err)
	assert.Contains(t, out, "Documents: 2 (dropped 0)")

	out, err = runApp(t, "run", "--archive", archive, "--checkpoint", checkpointPath, "--graph", graphDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Committed:          2")

	out, err = runApp(t, "run", "--archive", archive, "--checkpoint", checkpointPath, "--graph", graphDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Skipped:            2")

	out, err = runApp(t, "runs", "--graph", graphDir)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count([]byte(out), []byte("committed=")))
}
