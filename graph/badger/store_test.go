package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/threatgraph/core"
	"github.com/poiesic/threatgraph/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*GraphStore, *RunRepository) {
	t.Helper()
	store, runs, err := NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store, runs
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	store, _ := setupStore(t)
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, store.EnsureSchema(context.Background()))
}

func TestUpsertEntity_MergesByNaturalKey(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)

	first := &core.Entity{Name: "emotet", Type: core.EntityTypeMalware, Confidence: 0.7, RunID: "r1"}
	second := &core.Entity{
		Name: "emotet", Type: core.EntityTypeMalware, Confidence: 0.95,
		Description: "banking trojan", Aliases: []string{"heodo"},
		ExternalReferences: []string{"https://attack.mitre.org/software/S0367"},
		RunID:              "r2", UpdatedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.UpsertEntity(ctx, first))
	require.NoError(t, store.UpsertEntity(ctx, second))

	n, err := store.CountEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetEntity(ctx, "emotet", core.EntityTypeMalware)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestUpsertEntity_DistinctTypes(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)

	require.NoError(t, store.UpsertEntity(ctx, &core.Entity{Name: "cobalt strike", Type: core.EntityTypeTool}))
	require.NoError(t, store.UpsertEntity(ctx, &core.Entity{Name: "cobalt strike", Type: core.EntityTypeMalware}))

	n, err := store.CountEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUpsertEntity_Invalid(t *testing.T) {
	store, _ := setupStore(t)
	err := store.UpsertEntity(context.Background(), &core.Entity{Type: core.EntityTypeTool})

	var permanent *graph.PermanentError
	assert.ErrorAs(t, err, &permanent)
}

func TestGetEntity_NotFound(t *testing.T) {
	store, _ := setupStore(t)
	_, err := store.GetEntity(context.Background(), "nobody", core.EntityTypePerson)
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestUpsertRelationship(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)

	actor := &core.Entity{Name: "apt28", Type: core.EntityTypeThreatActor, Description: "sofacy"}
	require.NoError(t, store.UpsertEntity(ctx, actor))

	rel := &core.Relationship{
		SourceName: "apt28", SourceType: core.EntityTypeThreatActor,
		TargetName: "x-agent", TargetType: core.EntityTypeMalware,
		Type: core.RelationshipUses, Confidence: 0.8, RunID: "r1",
	}
	require.NoError(t, store.UpsertRelationship(ctx, rel))
	rel.Description = "deploys"
	require.NoError(t, store.UpsertRelationship(ctx, rel))

	rels, err := store.CountRelationships(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rels)

	got, err := store.GetRelationship(ctx, rel.Key())
	require.NoError(t, err)
	assert.Equal(t, "deploys", got.Description)

	// Existing endpoint untouched, missing endpoint created.
	source, err := store.GetEntity(ctx, "apt28", core.EntityTypeThreatActor)
	require.NoError(t, err)
	assert.Equal(t, "sofacy", source.Description)

	target, err := store.GetEntity(ctx, "x-agent", core.EntityTypeMalware)
	require.NoError(t, err)
	assert.Equal(t, "r1", target.RunID)

	out, err := store.Outgoing(ctx, "apt28", core.EntityTypeThreatActor)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, core.RelationshipUses, out[0].Type)

	in, err := store.Outgoing(ctx, "x-agent", core.EntityTypeMalware)
	require.NoError(t, err)
	assert.Empty(t, in)
}

func TestSinkOverBadger_PersistenceIdempotence(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)
	sink, err := graph.NewSink(ctx, store, graph.WithRunID("run-a"))
	require.NoError(t, err)

	entity := core.Entity{Name: "LockBit", Type: core.EntityTypeMalware, Confidence: 0.8}
	require.NoError(t, sink.UpsertEntity(ctx, entity))
	entity.Confidence = 0.9
	require.NoError(t, sink.UpsertEntity(ctx, entity))

	n, err := store.CountEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetEntity(ctx, "lockbit", core.EntityTypeMalware)
	require.NoError(t, err)
	assert.Equal(t, 0.9, got.Confidence)
	assert.Equal(t, "run-a", got.RunID)
}

func TestOpenBackend_OnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	backend, err := OpenBackend(dir, false, nil)
	require.NoError(t, err)
	store := NewGraphStore(backend)
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.UpsertEntity(ctx, &core.Entity{Name: "mimikatz", Type: core.EntityTypeTool}))
	require.NoError(t, store.Close())
	assert.True(t, backend.IsClosed())

	backend, err = OpenBackend(dir, false, nil)
	require.NoError(t, err)
	store = NewGraphStore(backend)
	defer store.Close()
	require.NoError(t, store.EnsureSchema(ctx))

	_, err = store.GetEntity(ctx, "mimikatz", core.EntityTypeTool)
	assert.NoError(t, err)
}
