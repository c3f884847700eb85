package threatgraph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/poiesic/threatgraph/cache"
	"github.com/poiesic/threatgraph/checkpoint"
	"github.com/poiesic/threatgraph/chunker"
	"github.com/poiesic/threatgraph/chunkstore"
	"github.com/poiesic/threatgraph/config"
	"github.com/poiesic/threatgraph/core"
	"github.com/poiesic/threatgraph/graph/badger"
	"github.com/poiesic/threatgraph/stage"
	"github.com/poiesic/threatgraph/stage/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snapshot = `{"type": "bundle", "objects": [{
  "type": "attack-pattern",
  "name": "Command and Scripting Interpreter",
  "description": "Adversaries may abuse command interpreters.",
  "external_references": [{"source_name": "mitre-attack", "external_id": "T1059", "url": "https://attack.mitre.org/techniques/T1059"}]
}]}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	chunks := []core.Chunk{
		{DocumentID: 1, Position: 1, Text: "and EternalBlue against 10.0.0.1 using T1059.", Source: "otx"},
		{DocumentID: 1, Position: 0, Text: "APT28 used Mimikatz", Source: "otx"},
		{DocumentID: 2, Position: 0, Text: "Lazarus deployed a loader via Cobalt Strike.", Source: "cisa"},
		{DocumentID: 3, Position: 0, Text: "short", Source: "cisa"},
	}
	archive := filepath.Join(dir, "chunks.json.gz")
	require.NoError(t, chunker.WriteArchive(archive, chunks))

	snapshotPath := filepath.Join(dir, "enterprise-attack.json")
	require.NoError(t, os.WriteFile(snapshotPath, []byte(snapshot), 0o644))

	cfg := config.Default()
	cfg.Archive.Path = archive
	cfg.Checkpoint.Path = filepath.Join(dir, "checkpoint.json")
	cfg.Graph.Path = filepath.Join(dir, "graph")
	cfg.Mitre.SnapshotPath = snapshotPath
	return cfg
}

func TestRuntime_RunAndResume(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	rt, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, rt.RunID())

	summary, err := rt.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, rt.RunID(), summary.ID)
	assert.Equal(t, 2, summary.Documents, "document 3 has no valid chunks")
	assert.Equal(t, 2, summary.Committed)
	assert.Positive(t, summary.Entities)
	assert.Zero(t, summary.Relationships, "no LLM configured")

	runs, err := rt.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rt.RunID(), runs[0].ID)
	require.NoError(t, rt.Close())

	// Entities are enriched and stamped with the run id.
	backend, err := badger.OpenBackend(cfg.Graph.Path, false, nil)
	require.NoError(t, err)
	store := badger.NewGraphStore(backend)
	technique, err := store.GetEntity(ctx, "t1059", core.EntityTypeMitreTechnique)
	require.NoError(t, err)
	assert.Equal(t, "Command and Scripting Interpreter", technique.MitreName)
	assert.Equal(t, summary.ID, technique.RunID)
	tool, err := store.GetEntity(ctx, "mimikatz", core.EntityTypeTool)
	require.NoError(t, err)
	assert.Equal(t, "mimikatz", tool.Name)
	require.NoError(t, store.Close())

	committed, err := checkpoint.NewFileStore(cfg.Checkpoint.Path).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, committed)

	// A second run skips everything.
	rt, err = Open(ctx, cfg)
	require.NoError(t, err)
	defer rt.Close()

	summary, err = rt.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)
	assert.Zero(t, summary.Committed)

	runs, err = rt.Runs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRuntime_DryRunLeavesNoCheckpoint(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Pipeline.DryRun = true

	chain, ext, _, _ := mock.NewChain()
	rt, err := Open(ctx, cfg, WithChain(chain))
	require.NoError(t, err)
	defer rt.Close()

	summary, err := rt.Run(ctx)
	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	assert.Equal(t, 2, ext.CallCount())

	_, err = os.Stat(cfg.Checkpoint.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestRuntime_NERTagger(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`[{"entity_group": "ORG", "start": 0, "end": 7, "score": 0.95}]`))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.NER.TaggerURL = srv.URL
	rt, err := Open(ctx, cfg)
	require.NoError(t, err)
	summary, err := rt.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Committed)
	assert.Equal(t, int32(2), calls.Load())
	require.NoError(t, rt.Close())

	backend, err := badger.OpenBackend(cfg.Graph.Path, false, nil)
	require.NoError(t, err)
	defer backend.Close()
	// Document 2 starts with "Lazarus".
	org, err := badger.NewGraphStore(backend).GetEntity(ctx, "lazarus", core.EntityTypeOrganization)
	require.NoError(t, err)
	assert.Equal(t, 0.95, org.Confidence)
}

func TestRuntime_GraphCheckpoint(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Checkpoint.Store = "graph"

	chain, ext, _, _ := mock.NewChain()
	rt, err := Open(ctx, cfg, WithChain(chain))
	require.NoError(t, err)
	summary, err := rt.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Committed)
	require.NoError(t, rt.Close())

	_, err = os.Stat(cfg.Checkpoint.Path)
	assert.True(t, os.IsNotExist(err), "graph checkpoints write no file")

	backend, err := badger.OpenBackend(cfg.Graph.Path, false, nil)
	require.NoError(t, err)
	committed, err := badger.NewCheckpointStore(backend, cfg.Checkpoint.Name).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, committed)
	require.NoError(t, backend.Close())

	rt, err = Open(ctx, cfg, WithChain(chain))
	require.NoError(t, err)
	defer rt.Close()
	summary, err = rt.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 2, ext.CallCount(), "resumed run extracts nothing")
}

func TestOpen_FatalStartupErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("corrupt checkpoint", func(t *testing.T) {
		cfg := testConfig(t)
		require.NoError(t, os.WriteFile(cfg.Checkpoint.Path, []byte("{not json"), 0o644))

		_, err := Open(ctx, cfg)
		assert.ErrorIs(t, err, checkpoint.ErrCorrupt)
	})

	t.Run("no MITRE data", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Mitre.SnapshotPath = filepath.Join(t.TempDir(), "missing.json")

		_, err := Open(ctx, cfg)
		assert.ErrorIs(t, err, cache.ErrNoData)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Pipeline.Workers = 0

		_, err := Open(ctx, cfg)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("graph checkpoint without badger", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Checkpoint.Store = "graph"
		cfg.Graph.Backend = "neo4j"
		cfg.Graph.URI = "bolt://localhost:7687"

		_, err := Open(ctx, cfg)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("missing archive", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Archive.Path = filepath.Join(t.TempDir(), "missing.json")

		rt, err := Open(ctx, cfg, WithChain(stage.Chain{Extractor: &mock.Extractor{}}))
		require.NoError(t, err)
		defer rt.Close()

		_, err = rt.Run(ctx)
		assert.ErrorIs(t, err, chunkstore.ErrArchiveUnreadable)
	})
}
