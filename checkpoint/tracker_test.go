package checkpoint

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu     sync.Mutex
	saved  []int64
	saves  int
	failOn int // fail the Nth save when > 0
}

func (m *memoryStore) Load(ctx context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.saved...), nil
}

func (m *memoryStore) Save(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.failOn > 0 && m.saves == m.failOn {
		return errors.New("disk full")
	}
	m.saved = append([]int64(nil), ids...)
	return nil
}

func TestTracker_ClaimCommit(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}
	tracker, err := NewTracker(store, []int64{1})
	require.NoError(t, err)

	assert.True(t, tracker.Committed(1))
	assert.False(t, tracker.Claim(1), "committed ids cannot be claimed")

	require.True(t, tracker.Claim(2))
	assert.False(t, tracker.Claim(2), "claimed ids cannot be claimed twice")
	assert.Equal(t, 1, tracker.InFlight())

	require.NoError(t, tracker.Commit(ctx, 2))
	assert.True(t, tracker.Committed(2))
	assert.Equal(t, 0, tracker.InFlight())
	assert.Equal(t, []int64{1, 2}, store.saved)

	tracker.Release(2)
	assert.False(t, tracker.Claim(2))
}

func TestTracker_ReleaseAllowsReclaim(t *testing.T) {
	tracker, err := NewTracker(&memoryStore{}, nil)
	require.NoError(t, err)

	require.True(t, tracker.Claim(7))
	tracker.Release(7)
	assert.True(t, tracker.Claim(7))
}

func TestTracker_FailedSaveIsNotCommitted(t *testing.T) {
	store := &memoryStore{failOn: 1}
	tracker, err := NewTracker(store, nil)
	require.NoError(t, err)

	require.True(t, tracker.Claim(3))
	err = tracker.Commit(context.Background(), 3)
	require.Error(t, err)
	assert.False(t, tracker.Committed(3))
	assert.Equal(t, 0, tracker.InFlight())
}

func TestTracker_ConcurrentClaims(t *testing.T) {
	tracker, err := NewTracker(&memoryStore{}, nil)
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tracker.Claim(42) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestTracker_ConcurrentCommitsAreNotLost(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "cp.json"))
	tracker, err := NewTracker(store, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for id := range int64(50) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, tracker.Claim(id))
			assert.NoError(t, tracker.Commit(ctx, id))
		}()
	}
	wg.Wait()

	ids, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 50)
	assert.Equal(t, tracker.Snapshot(), ids)
}

func TestResume(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "cp.json"))
	require.NoError(t, store.Save(ctx, []int64{4, 8}))

	tracker, err := Resume(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 2, tracker.Len())
	assert.True(t, tracker.Committed(8))

	_, err = Resume(ctx, nil)
	assert.ErrorIs(t, err, ErrStoreRequired)
}
