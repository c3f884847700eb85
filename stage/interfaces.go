package stage

import (
	"context"

	"github.com/poiesic/threatgraph/core"
)

// Extractor finds entities in document text.
// Implementations must be thread-safe for concurrent use.
type Extractor interface {
	// ExtractEntities returns the entities found in text.
	// Returns an empty slice if none are found.
	// Failures are reported as *ExtractionError and fail the document.
	ExtractEntities(ctx context.Context, text string) ([]core.Entity, error)
}

// Enricher adds reference data to extracted entities.
// Implementations must be thread-safe for concurrent use.
type Enricher interface {
	// Enrich returns the entities with additional fields filled in.
	// An error is never fatal to the caller: the executor falls back to the
	// unenriched input.
	Enrich(ctx context.Context, entities []core.Entity) ([]core.Entity, error)
}

// RelationExtractor finds relationships between entities in text.
// Implementations must be thread-safe for concurrent use.
type RelationExtractor interface {
	// ExtractRelationships returns the relationships between entities in text.
	// An error is never fatal to the caller: the executor substitutes an
	// empty list.
	ExtractRelationships(ctx context.Context, text string, entities []core.Entity) ([]core.Relationship, error)
}

// Chain bundles the stages a document passes through, in order.
// Enricher and Relations may be nil.
type Chain struct {
	Extractor Extractor
	Enricher  Enricher
	Relations RelationExtractor
}

// Validate reports whether the chain can run.
func (c Chain) Validate() error {
	if c.Extractor == nil {
		return ErrExtractorRequired
	}
	return nil
}

// Passthrough is an Enricher that returns its input unchanged.
type Passthrough struct{}

var _ Enricher = Passthrough{}

// Enrich returns entities unchanged.
func (Passthrough) Enrich(ctx context.Context, entities []core.Entity) ([]core.Entity, error) {
	return entities, nil
}

// NoRelations is a RelationExtractor that never finds relationships.
type NoRelations struct{}

var _ RelationExtractor = NoRelations{}

// ExtractRelationships returns an empty list.
func (NoRelations) ExtractRelationships(ctx context.Context, text string, entities []core.Entity) ([]core.Relationship, error) {
	return []core.Relationship{}, nil
}
