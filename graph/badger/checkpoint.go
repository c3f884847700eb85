package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/threatgraph/checkpoint"
)

// CheckpointStore keeps the committed document ids inside the graph database,
// so the graph and its checkpoint live and move together.
type CheckpointStore struct {
	backend *Backend
	key     []byte
}

var _ checkpoint.Store = (*CheckpointStore)(nil)

// NewCheckpointStore creates a checkpoint store under name. Distinct names
// keep independent checkpoints in one database.
func NewCheckpointStore(backend *Backend, name string) *CheckpointStore {
	return &CheckpointStore{
		backend: backend,
		key:     makeCheckpointKey(name),
	}
}

// Load returns the committed ids, or an empty slice when none were saved.
func (s *CheckpointStore) Load(ctx context.Context) ([]int64, error) {
	ids := []int64{}
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(s.key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return classify(err)
		}
		return item.Value(func(val []byte) error {
			decoded, err := unmarshal(idSetMUS, val)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", checkpoint.ErrCorrupt, s.key, err)
			}
			ids = decoded
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Save replaces the committed ids in a single transaction.
func (s *CheckpointStore) Save(ctx context.Context, ids []int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		return classify(tx.Set(s.key, marshal(idSetMUS, ids)))
	}, true)
}
