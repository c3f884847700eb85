package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/threatgraph/core"
	"github.com/poiesic/threatgraph/graph"
)

// GraphStore implements graph.Store and graph.Reader on a Backend.
type GraphStore struct {
	backend *Backend
	logger  *slog.Logger
}

var (
	_ graph.Store  = (*GraphStore)(nil)
	_ graph.Reader = (*GraphStore)(nil)
)

// NewGraphStore creates a GraphStore.
func NewGraphStore(backend *Backend) *GraphStore {
	return &GraphStore{
		backend: backend,
		logger:  backend.logger,
	}
}

// Backend returns the underlying backend.
func (s *GraphStore) Backend() *Backend {
	return s.backend
}

// EnsureSchema records the schema version. Badger needs no indexes beyond
// the key layout, so repeated calls only verify the stored version.
func (s *GraphStore) EnsureSchema(ctx context.Context) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(schemaVersionKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			buf := make([]byte, varint.Uint64.Size(schemaVersion))
			varint.Uint64.Marshal(schemaVersion, buf)
			return classify(tx.Set([]byte(schemaVersionKey), buf))
		}
		if err != nil {
			return classify(err)
		}

		return item.Value(func(val []byte) error {
			version, _, err := varint.Uint64.Unmarshal(val)
			if err != nil {
				return graph.Permanent(fmt.Errorf("reading schema version: %w", err))
			}
			if version != schemaVersion {
				return graph.Permanent(fmt.Errorf("unsupported schema version %d", version))
			}
			return nil
		})
	}, true)
}

// UpsertEntity stores entity under its natural key, replacing any previous value.
func (s *GraphStore) UpsertEntity(ctx context.Context, entity *core.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := core.ValidateEntity(entity); err != nil {
		return graph.Permanent(err)
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		return classify(tx.Set(makeEntityKey(entity.Key()), marshal(entityMUS, *entity)))
	}, true)
}

// UpsertRelationship stores rel under its natural key and indexes it under
// its source. Endpoint entities that don't exist yet are created with only
// their name and type; existing endpoints are left untouched.
func (s *GraphStore) UpsertRelationship(ctx context.Context, rel *core.Relationship) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := core.ValidateRelationship(rel); err != nil {
		return graph.Permanent(err)
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		for _, endpoint := range []*core.Entity{rel.Source(), rel.Target()} {
			if err := ensureEntity(tx, endpoint, rel.RunID); err != nil {
				return err
			}
		}

		relID := rel.Key()
		if err := tx.Set(makeRelationshipKey(relID), marshal(relationshipMUS, *rel)); err != nil {
			return classify(err)
		}
		return classify(tx.Set(makeAdjacencyKey(rel.Source().Key(), relID), nil))
	}, true)
}

func ensureEntity(tx *badger.Txn, entity *core.Entity, runID string) error {
	key := makeEntityKey(entity.Key())
	_, err := tx.Get(key)
	if err == nil {
		return nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return classify(err)
	}
	entity.RunID = runID
	return classify(tx.Set(key, marshal(entityMUS, *entity)))
}

// GetEntity returns the entity with the given natural key.
// Returns graph.ErrNotFound if it does not exist.
func (s *GraphStore) GetEntity(ctx context.Context, name string, typ core.EntityType) (*core.Entity, error) {
	probe := core.Entity{Name: name, Type: typ}
	var entity *core.Entity
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return readValue(tx, makeEntityKey(probe.Key()), func(val []byte) error {
			e, err := unmarshal(entityMUS, val)
			if err != nil {
				return err
			}
			entity = &e
			return nil
		})
	}, false)
	return entity, err
}

// GetRelationship returns the relationship with the given natural key.
// Returns graph.ErrNotFound if it does not exist.
func (s *GraphStore) GetRelationship(ctx context.Context, key core.ID) (*core.Relationship, error) {
	var rel *core.Relationship
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return readValue(tx, makeRelationshipKey(key), func(val []byte) error {
			r, err := unmarshal(relationshipMUS, val)
			if err != nil {
				return err
			}
			rel = &r
			return nil
		})
	}, false)
	return rel, err
}

// Outgoing returns the relationships whose source is the given entity.
func (s *GraphStore) Outgoing(ctx context.Context, name string, typ core.EntityType) ([]core.Relationship, error) {
	source := core.Entity{Name: name, Type: typ}
	var rels []core.Relationship

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makePartialAdjacencyKey(source.Key())
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			relID := relationshipIDFromAdjacencyKey(iter.Item().Key())
			err := readValue(tx, makeRelationshipKey(relID), func(val []byte) error {
				r, err := unmarshal(relationshipMUS, val)
				if err != nil {
					return err
				}
				rels = append(rels, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)

	return rels, err
}

// CountEntities returns the number of stored entities.
func (s *GraphStore) CountEntities(ctx context.Context) (int, error) {
	return s.count([]byte(entityPrefix))
}

// CountRelationships returns the number of stored relationships.
func (s *GraphStore) CountRelationships(ctx context.Context) (int, error) {
	return s.count([]byte(relationshipPrefix))
}

func (s *GraphStore) count(prefix []byte) (int, error) {
	n := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			n++
		}
		return nil
	}, false)
	return n, err
}

// Close closes the backend.
func (s *GraphStore) Close() error {
	return s.backend.Close()
}

func readValue(tx *badger.Txn, key []byte, fn func(val []byte) error) error {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return graph.ErrNotFound
	}
	if err != nil {
		return classify(err)
	}
	return item.Value(fn)
}
