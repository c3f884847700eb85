package mock

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/poiesic/threatgraph/core"
	"github.com/poiesic/threatgraph/stage"
)

// Extractor is a test double for stage.Extractor.
type Extractor struct {
	// ExtractFunc is called by ExtractEntities if set.
	// If nil, every word longer than three characters becomes a misc entity.
	ExtractFunc func(ctx context.Context, text string) ([]core.Entity, error)

	calls atomic.Int64
}

var _ stage.Extractor = (*Extractor)(nil)

// ExtractEntities records the call and delegates to ExtractFunc.
func (m *Extractor) ExtractEntities(ctx context.Context, text string) ([]core.Entity, error) {
	m.calls.Add(1)
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, text)
	}

	var entities []core.Entity
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]{}")
		if len(word) <= 3 {
			continue
		}
		entities = append(entities, core.Entity{
			Name:       word,
			Type:       core.EntityTypeMisc,
			Text:       word,
			Confidence: 0.9,
		})
	}
	return entities, nil
}

// CallCount returns the number of ExtractEntities calls.
func (m *Extractor) CallCount() int {
	return int(m.calls.Load())
}

// Enricher is a test double for stage.Enricher.
type Enricher struct {
	// EnrichFunc is called by Enrich if set. If nil, input is returned unchanged.
	EnrichFunc func(ctx context.Context, entities []core.Entity) ([]core.Entity, error)

	calls atomic.Int64
}

var _ stage.Enricher = (*Enricher)(nil)

// Enrich records the call and delegates to EnrichFunc.
func (m *Enricher) Enrich(ctx context.Context, entities []core.Entity) ([]core.Entity, error) {
	m.calls.Add(1)
	if m.EnrichFunc != nil {
		return m.EnrichFunc(ctx, entities)
	}
	return entities, nil
}

// CallCount returns the number of Enrich calls.
func (m *Enricher) CallCount() int {
	return int(m.calls.Load())
}

// RelationExtractor is a test double for stage.RelationExtractor.
type RelationExtractor struct {
	// ExtractFunc is called by ExtractRelationships if set.
	// If nil, consecutive entities are linked with related_to.
	ExtractFunc func(ctx context.Context, text string, entities []core.Entity) ([]core.Relationship, error)

	calls atomic.Int64
}

var _ stage.RelationExtractor = (*RelationExtractor)(nil)

// ExtractRelationships records the call and delegates to ExtractFunc.
func (m *RelationExtractor) ExtractRelationships(ctx context.Context, text string, entities []core.Entity) ([]core.Relationship, error) {
	m.calls.Add(1)
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, text, entities)
	}

	rels := make([]core.Relationship, 0, len(entities))
	for i := 1; i < len(entities); i++ {
		rels = append(rels, core.Relationship{
			SourceName: entities[i-1].Name,
			SourceType: entities[i-1].Type,
			TargetName: entities[i].Name,
			TargetType: entities[i].Type,
			Type:       core.RelationshipRelatedTo,
			Confidence: 0.5,
		})
	}
	return rels, nil
}

// CallCount returns the number of ExtractRelationships calls.
func (m *RelationExtractor) CallCount() int {
	return int(m.calls.Load())
}

// NewChain returns a chain of default doubles plus the doubles themselves.
func NewChain() (stage.Chain, *Extractor, *Enricher, *RelationExtractor) {
	ext := &Extractor{}
	enr := &Enricher{}
	rel := &RelationExtractor{}
	return stage.Chain{Extractor: ext, Enricher: enr, Relations: rel}, ext, enr, rel
}
