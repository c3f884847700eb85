package checkpoint

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Tracker owns the committed set for one run and the claims of in-flight documents.
//
// Claim and Release are safe for concurrent use. Commit serializes writes to
// the Store so no update is lost.
type Tracker struct {
	store Store

	mu        sync.Mutex
	committed map[int64]struct{}
	inflight  map[int64]struct{}

	saveMu sync.Mutex
}

// NewTracker creates a Tracker seeded with previously committed ids.
func NewTracker(store Store, committed []int64) (*Tracker, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	t := &Tracker{
		store:     store,
		committed: make(map[int64]struct{}, len(committed)),
		inflight:  make(map[int64]struct{}),
	}
	for _, id := range committed {
		t.committed[id] = struct{}{}
	}
	return t, nil
}

// Resume loads the store once and returns a Tracker seeded from it.
func Resume(ctx context.Context, store Store) (*Tracker, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	ids, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return NewTracker(store, ids)
}

// Committed reports whether id was already committed.
func (t *Tracker) Committed(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.committed[id]
	return ok
}

// Claim marks id as in flight. It returns false if id is committed or
// already claimed by another worker.
func (t *Tracker) Claim(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.committed[id]; ok {
		return false
	}
	if _, ok := t.inflight[id]; ok {
		return false
	}
	t.inflight[id] = struct{}{}
	return true
}

// Release drops the claim on id without committing it.
func (t *Tracker) Release(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, id)
}

// Commit adds id to the committed set, flushes the set to the Store and
// releases the claim. If the flush fails id is not considered committed.
func (t *Tracker) Commit(ctx context.Context, id int64) error {
	t.saveMu.Lock()
	defer t.saveMu.Unlock()

	t.mu.Lock()
	_, already := t.committed[id]
	t.committed[id] = struct{}{}
	ids := t.snapshotLocked()
	t.mu.Unlock()

	if err := t.store.Save(ctx, ids); err != nil {
		t.mu.Lock()
		if !already {
			delete(t.committed, id)
		}
		delete(t.inflight, id)
		t.mu.Unlock()
		return fmt.Errorf("committing document %d: %w", id, err)
	}

	t.Release(id)
	return nil
}

// Snapshot returns the committed ids in ascending order.
func (t *Tracker) Snapshot() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Len returns the number of committed ids.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.committed)
}

// InFlight returns the number of claimed but uncommitted ids.
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

func (t *Tracker) snapshotLocked() []int64 {
	ids := make([]int64, 0, len(t.committed))
	for id := range t.committed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
