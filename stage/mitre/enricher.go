package mitre

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/threatgraph/cache"
	"github.com/poiesic/threatgraph/core"
	"github.com/poiesic/threatgraph/stage"
)

const catalogKey = "enterprise-attack"

var enrichableTypes = map[core.EntityType]struct{}{
	core.EntityTypeTTP:            {},
	core.EntityTypeMitreTechnique: {},
	"technique":                   {},
	"tactic":                      {},
}

// Enricher implements stage.Enricher.
type Enricher struct {
	remote   Source
	snapshot Source
	cache    *cache.Cache[string, *Catalog]
	logger   *slog.Logger
}

var _ stage.Enricher = (*Enricher)(nil)

type settings struct {
	remote   Source
	ttl      time.Duration
	capacity int64
	logger   *slog.Logger
}

// Option configures an Enricher.
type Option func(*settings)

// WithRemote sets a primary source tried before the snapshot.
func WithRemote(s Source) Option {
	return func(o *settings) {
		o.remote = s
	}
}

// WithCache sets the catalog cache TTL and capacity.
// Defaults are one hour and 1000 entries.
func WithCache(ttl time.Duration, capacity int64) Option {
	return func(o *settings) {
		o.ttl = ttl
		o.capacity = capacity
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *settings) {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
	}
}

// New creates an Enricher that falls back to snapshot. snapshot may be nil
// only if a remote source is configured.
func New(snapshot Source, opts ...Option) (*Enricher, error) {
	o := settings{
		ttl:      time.Hour,
		capacity: 1000,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger.With("stage", "mitre")
	c, err := cache.New[string, *Catalog](
		cache.WithTTL(o.ttl),
		cache.WithCapacity(o.capacity),
		cache.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	return &Enricher{
		remote:   o.remote,
		snapshot: snapshot,
		cache:    c,
		logger:   logger,
	}, nil
}

// Catalog returns the cached catalog, loading it on a miss.
// Returns an error wrapping cache.ErrNoData if no source can provide it.
func (e *Enricher) Catalog(ctx context.Context) (*Catalog, error) {
	return e.cache.GetOrLoad(ctx, catalogKey, loader(e.remote), loader(e.snapshot))
}

func loader(s Source) cache.Loader[*Catalog] {
	if s == nil {
		return nil
	}
	return s.Load
}

// Enrich fills MITRE fields on technique-like entities. Other entities pass
// through unchanged. If the catalog cannot be loaded the input is returned
// together with the error.
func (e *Enricher) Enrich(ctx context.Context, entities []core.Entity) ([]core.Entity, error) {
	catalog, err := e.Catalog(ctx)
	if err != nil {
		return entities, stage.NewExtractionError("mitre", err)
	}

	out := make([]core.Entity, len(entities))
	enriched := 0
	for i, ent := range entities {
		out[i] = ent
		if _, ok := enrichableTypes[core.EntityType(strings.ToLower(strings.TrimSpace(string(ent.Type))))]; !ok {
			continue
		}
		t, ok := catalog.Lookup(ent.Name)
		if !ok {
			e.logger.Debug("no MITRE match", "entity", ent.Name)
			continue
		}
		if t.ID != "" {
			out[i].MitreID = t.ID
		}
		out[i].MitreName = t.Name
		if t.Description != "" {
			out[i].Description = t.Description
		}
		if len(t.URLs) > 0 {
			out[i].ExternalReferences = slices.Clone(t.URLs)
		}
		enriched++
	}

	e.logger.Debug("enriched entities", "count", enriched, "total", len(entities))
	return out, nil
}

// Close releases the cache.
func (e *Enricher) Close() {
	e.cache.Close()
}
