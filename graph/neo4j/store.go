package neo4j

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/poiesic/threatgraph/core"
	"github.com/poiesic/threatgraph/graph"
)

var schemaQueries = []string{
	"CREATE INDEX threat_entity_key IF NOT EXISTS FOR (e:ThreatEntity) ON (e.name, e.entity_type)",
	"CREATE INDEX threat_entity_name IF NOT EXISTS FOR (e:ThreatEntity) ON (e.name)",
	"CREATE INDEX relation_type IF NOT EXISTS FOR ()-[r:RELATION]-() ON (r.type)",
}

const upsertEntityQuery = `
MERGE (e:ThreatEntity {name: $name, entity_type: $entity_type})
SET e.source_text = $source_text,
    e.confidence = $confidence,
    e.description = $description,
    e.aliases = $aliases,
    e.mitre_id = $mitre_id,
    e.mitre_name = $mitre_name,
    e.external_references = $external_references,
    e.run_id = $run_id,
    e.updated_at = $updated_at`

const upsertRelationshipQuery = `
MERGE (source:ThreatEntity {name: $source_name, entity_type: $source_type})
  ON CREATE SET source.run_id = $run_id
MERGE (target:ThreatEntity {name: $target_name, entity_type: $target_type})
  ON CREATE SET target.run_id = $run_id
MERGE (source)-[r:RELATION {type: $relationship_type}]->(target)
SET r.description = $description,
    r.confidence = $confidence,
    r.run_id = $run_id,
    r.updated_at = $updated_at`

// queryRunner executes one write query.
type queryRunner func(ctx context.Context, query string, params map[string]any) error

// Config holds connection settings.
type Config struct {
	URI      string
	User     string
	Password string
	Database string // Empty selects the server default
}

// Store implements graph.Store on Neo4j.
type Store struct {
	driver neo4j.DriverWithContext
	run    queryRunner
	logger *slog.Logger
}

var _ graph.Store = (*Store)(nil)

// Open connects to Neo4j and verifies connectivity.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""), singleAttempt)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("connecting to %s: %w", cfg.URI, err)
	}

	var queryOpts []neo4j.ExecuteQueryConfigurationOption
	if cfg.Database != "" {
		queryOpts = append(queryOpts, neo4j.ExecuteQueryWithDatabase(cfg.Database))
	}

	s := &Store{
		driver: driver,
		logger: logger.With("component", "neo4j"),
	}
	s.run = func(ctx context.Context, query string, params map[string]any) error {
		_, err := neo4j.ExecuteQuery(ctx, driver, query, params, neo4j.EagerResultTransformer, queryOpts...)
		return err
	}
	return s, nil
}

// singleAttempt stops the driver from retrying managed transactions so that
// graph.Sink's retry policy is the only retry layer.
func singleAttempt(c *neo4j.Config) {
	c.MaxTransactionRetryTime = 0
}

// newWithRunner creates a Store that sends queries to run.
func newWithRunner(run queryRunner) *Store {
	return &Store{run: run, logger: slog.Default()}
}

// EnsureSchema creates the indexes used by the merge queries.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, q := range schemaQueries {
		if err := s.exec(ctx, q, nil); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}
	return nil
}

// UpsertEntity merges entity on (name, entity_type) and overwrites its properties.
func (s *Store) UpsertEntity(ctx context.Context, entity *core.Entity) error {
	if err := core.ValidateEntity(entity); err != nil {
		return graph.Permanent(err)
	}
	return s.exec(ctx, upsertEntityQuery, entityParams(entity))
}

// UpsertRelationship merges rel and its endpoints.
func (s *Store) UpsertRelationship(ctx context.Context, rel *core.Relationship) error {
	if err := core.ValidateRelationship(rel); err != nil {
		return graph.Permanent(err)
	}
	return s.exec(ctx, upsertRelationshipQuery, relationshipParams(rel))
}

// Close closes the driver.
func (s *Store) Close() error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(context.Background())
}

func (s *Store) exec(ctx context.Context, query string, params map[string]any) error {
	err := s.run(ctx, query, params)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if neo4j.IsRetryable(lastAttempt(err)) {
		s.logger.Debug("retryable neo4j error", "err", err)
		return graph.Transient(err)
	}
	return graph.Permanent(err)
}

// lastAttempt returns the error behind a driver retry limit, which the
// driver reports even when it made a single attempt.
func lastAttempt(err error) error {
	var limit *neo4j.TransactionExecutionLimit
	if errors.As(err, &limit) && len(limit.Errors) > 0 {
		return limit.Errors[len(limit.Errors)-1]
	}
	return err
}

func entityParams(e *core.Entity) map[string]any {
	return map[string]any{
		"name":                e.Name,
		"entity_type":         string(e.Type),
		"source_text":         e.Text,
		"confidence":          e.Confidence,
		"description":         e.Description,
		"aliases":             stringsOrEmpty(e.Aliases),
		"mitre_id":            e.MitreID,
		"mitre_name":          e.MitreName,
		"external_references": stringsOrEmpty(e.ExternalReferences),
		"run_id":              e.RunID,
		"updated_at":          e.UpdatedAt,
	}
}

func relationshipParams(r *core.Relationship) map[string]any {
	return map[string]any{
		"source_name":       r.SourceName,
		"source_type":       string(r.SourceType),
		"target_name":       r.TargetName,
		"target_type":       string(r.TargetType),
		"relationship_type": string(r.Type),
		"description":       r.Description,
		"confidence":        r.Confidence,
		"run_id":            r.RunID,
		"updated_at":        r.UpdatedAt,
	}
}

func stringsOrEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
