// Package neo4j implements graph.Store on a Neo4j database.
//
// Entities are ThreatEntity nodes merged on (name, entity_type).
// Relationships are RELATION edges merged on their endpoints and type, with
// missing endpoints merged into existence. Errors the driver reports as
// retryable are classified as graph.TransientError, everything else as
// graph.PermanentError.
package neo4j
