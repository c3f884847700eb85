package graph

import (
	"context"

	"github.com/poiesic/threatgraph/core"
)

// Store persists entities and relationships by natural key.
// Implementations must be safe for concurrent use.
type Store interface {
	// EnsureSchema creates indexes and constraints if they do not exist.
	// It is safe to call repeatedly.
	EnsureSchema(ctx context.Context) error

	// UpsertEntity merges entity by (Name, Type).
	UpsertEntity(ctx context.Context, entity *core.Entity) error

	// UpsertRelationship merges rel by (source, target, type), creating
	// missing endpoint entities.
	UpsertRelationship(ctx context.Context, rel *core.Relationship) error

	// Close releases the store's resources.
	Close() error
}

// Reader reads back persisted records. Not every Store implements it.
type Reader interface {
	GetEntity(ctx context.Context, name string, typ core.EntityType) (*core.Entity, error)
	GetRelationship(ctx context.Context, key core.ID) (*core.Relationship, error)
	CountEntities(ctx context.Context) (int, error)
	CountRelationships(ctx context.Context) (int, error)
}
