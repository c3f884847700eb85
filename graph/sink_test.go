package graph

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/threatgraph/core"
	"github.com/poiesic/threatgraph/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore keeps records in maps keyed by natural key.
type fakeStore struct {
	mu            sync.Mutex
	entities      map[core.ID]core.Entity
	relationships map[core.ID]core.Relationship
	schemaCalls   int
	entityCalls   int
	failEntity    func(e *core.Entity, call int) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entities:      make(map[core.ID]core.Entity),
		relationships: make(map[core.ID]core.Relationship),
	}
}

func (f *fakeStore) EnsureSchema(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schemaCalls++
	return nil
}

func (f *fakeStore) UpsertEntity(ctx context.Context, e *core.Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entityCalls++
	if f.failEntity != nil {
		if err := f.failEntity(e, f.entityCalls); err != nil {
			return err
		}
	}
	f.entities[e.Key()] = *e
	return nil
}

func (f *fakeStore) UpsertRelationship(ctx context.Context, r *core.Relationship) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relationships[r.Key()] = *r
	return nil
}

func (f *fakeStore) Close() error { return nil }

func newTestSink(t *testing.T, store Store, opts ...SinkOption) *Sink {
	t.Helper()
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	opts = append([]SinkOption{
		WithRunID("run-1"),
		WithClock(func() time.Time { return fixed }),
		WithRetryPolicy(retry.WithBackoff(time.Millisecond, time.Millisecond)),
	}, opts...)
	sink, err := NewSink(context.Background(), store, opts...)
	require.NoError(t, err)
	return sink
}

func TestNewSink_EnsuresSchema(t *testing.T) {
	store := newFakeStore()
	newTestSink(t, store)
	newTestSink(t, store)
	assert.Equal(t, 2, store.schemaCalls)

	_, err := NewSink(context.Background(), nil)
	assert.ErrorIs(t, err, ErrStoreRequired)
}

func TestSink_UpsertEntityIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	sink := newTestSink(t, store)

	require.NoError(t, sink.UpsertEntity(ctx, core.Entity{Name: "Emotet", Type: core.EntityTypeMalware, Confidence: 0.7}))
	require.NoError(t, sink.UpsertEntity(ctx, core.Entity{Name: " emotet", Type: core.EntityTypeMalware, Confidence: 0.9, Description: "loader"}))

	require.Len(t, store.entities, 1)
	for _, e := range store.entities {
		assert.Equal(t, "emotet", e.Name)
		assert.Equal(t, 0.9, e.Confidence)
		assert.Equal(t, "loader", e.Description)
		assert.Equal(t, "run-1", e.RunID)
		assert.False(t, e.UpdatedAt.IsZero())
	}
}

func TestSink_ValidationIsPermanent(t *testing.T) {
	store := newFakeStore()
	sink := newTestSink(t, store)

	err := sink.UpsertEntity(context.Background(), core.Entity{Type: core.EntityTypeMalware})
	var permanent *PermanentError
	require.ErrorAs(t, err, &permanent)
	assert.ErrorIs(t, err, core.ErrEmptyEntityName)
	assert.Equal(t, 0, store.entityCalls)

	err = sink.UpsertRelationship(context.Background(), core.Relationship{SourceName: "a"})
	assert.ErrorAs(t, err, &permanent)
}

func TestSink_RetriesTransient(t *testing.T) {
	store := newFakeStore()
	store.failEntity = func(e *core.Entity, call int) error {
		if call < 3 {
			return Transient(errors.New("deadlock detected"))
		}
		return nil
	}
	sink := newTestSink(t, store)

	require.NoError(t, sink.UpsertEntity(context.Background(), core.Entity{Name: "apt28", Type: core.EntityTypeThreatActor}))
	assert.Equal(t, 3, store.entityCalls)
}

func TestSink_TransientExhausted(t *testing.T) {
	store := newFakeStore()
	store.failEntity = func(*core.Entity, int) error {
		return Transient(errors.New("unavailable"))
	}
	sink := newTestSink(t, store)

	err := sink.UpsertEntity(context.Background(), core.Entity{Name: "apt28", Type: core.EntityTypeThreatActor})
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 3, store.entityCalls)
}

func TestSink_PermanentNotRetried(t *testing.T) {
	store := newFakeStore()
	store.failEntity = func(*core.Entity, int) error {
		return Permanent(errors.New("constraint violated"))
	}
	sink := newTestSink(t, store)

	err := sink.UpsertEntity(context.Background(), core.Entity{Name: "apt28", Type: core.EntityTypeThreatActor})
	assert.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Equal(t, 1, store.entityCalls)
}

func TestSink_PersistAllSkipsFailures(t *testing.T) {
	store := newFakeStore()
	store.failEntity = func(e *core.Entity, _ int) error {
		if e.Name == "bad" {
			return Permanent(errors.New("rejected"))
		}
		return nil
	}
	sink := newTestSink(t, store)

	result := sink.PersistAll(context.Background(),
		[]core.Entity{
			{Name: "bad", Type: core.EntityTypeTool},
			{Name: "mimikatz", Type: core.EntityTypeTool},
			{Name: "", Type: core.EntityTypeTool},
		},
		[]core.Relationship{{
			SourceName: "apt28", SourceType: core.EntityTypeThreatActor,
			TargetName: "mimikatz", TargetType: core.EntityTypeTool,
			Type: core.RelationshipUses,
		}},
	)

	assert.Equal(t, 1, result.Entities)
	assert.Equal(t, 1, result.Relationships)
	assert.Equal(t, 2, result.Failed)
	assert.Error(t, result.Err)
	assert.Len(t, store.relationships, 1)
}

func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")

	assert.Nil(t, Transient(nil))
	assert.Nil(t, Permanent(nil))
	assert.True(t, IsTransient(Transient(base)))
	assert.False(t, IsTransient(Permanent(base)))
	assert.False(t, IsTransient(base))
	assert.ErrorIs(t, Transient(base), base)
	assert.Equal(t, "transient: boom", Transient(base).Error())
}
