package core

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a natural-key identifier for graph records.
// It is generated using content-based hashing so the same key always maps to the same ID.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Chunk is a single fragment of a document as produced by the upstream splitter.
// A Chunk is immutable once read.
type Chunk struct {
	DocumentID int64
	Position   int
	Text       string
	Source     string
	Category   string
	Indicator  string
	Timestamp  string // Carried verbatim, never parsed
}

// Document is a document reassembled from its retained chunks.
// Metadata comes from the first chunk seen for the document.
type Document struct {
	ID        int64
	Source    string
	Category  string
	Indicator string
	Timestamp string
	Text      string // Retained chunk texts ordered by position, space-joined
	Chunks    int    // Number of chunks that contributed to Text
}

// EntityType is the canonical category of an extracted entity.
type EntityType string

const (
	EntityTypeMalware        EntityType = "malware"
	EntityTypeThreatActor    EntityType = "threat_actor"
	EntityTypeVulnerability  EntityType = "vulnerability"
	EntityTypeTTP            EntityType = "ttp"
	EntityTypeTool           EntityType = "tool"
	EntityTypeScript         EntityType = "script"
	EntityTypeIndicator      EntityType = "indicator"
	EntityTypeCVE            EntityType = "cve"
	EntityTypeMitreTechnique EntityType = "mitre_technique"
	EntityTypeExploit        EntityType = "exploit"
	EntityTypeLocation       EntityType = "location"
	EntityTypeOrganization   EntityType = "organization"
	EntityTypePerson         EntityType = "person"
	EntityTypeMisc           EntityType = "miscellaneous"
)

// RelationshipType is the canonical label of a directed relationship.
type RelationshipType string

const (
	RelationshipUses             RelationshipType = "uses"
	RelationshipTargets          RelationshipType = "targets"
	RelationshipExploits         RelationshipType = "exploits"
	RelationshipCommunicatesWith RelationshipType = "communicates_with"
	RelationshipDerivesFrom      RelationshipType = "derives_from"
	RelationshipAssociatedWith   RelationshipType = "associated_with"
	RelationshipDetects          RelationshipType = "detects"
	RelationshipRelatedTo        RelationshipType = "related_to"
	RelationshipVariantOf        RelationshipType = "variant_of"
)

// Entity is a threat-intelligence entity produced by the extraction stages.
// Its natural key is (Name, Type).
type Entity struct {
	Name               string
	Type               EntityType
	Text               string  // Source span the entity was extracted from
	Confidence         float64 // 0..1, 0 when unknown
	Description        string
	Aliases            []string
	MitreID            string
	MitreName          string
	ExternalReferences []string
	RunID              string    // Stamped by the persistence sink
	UpdatedAt          time.Time // Stamped by the persistence sink
}

// Tuple returns a string representation of the entity as "(Type,Name)".
// This is used for generating deterministic IDs.
func (e *Entity) Tuple() string {
	return "(" + string(e.Type) + "," + e.Name + ")"
}

// Key returns the natural-key ID of the entity.
func (e *Entity) Key() ID {
	return IDFromContent(e.Tuple())
}

// Normalize lower-cases and trims the name and aliases in place.
func (e *Entity) Normalize() {
	e.Name = normalizeName(e.Name)
	e.Type = EntityType(normalizeName(string(e.Type)))
	for i, alias := range e.Aliases {
		e.Aliases[i] = normalizeName(alias)
	}
}

// Relationship is a directed edge between two entities.
// Its natural key is (source, target, type) where source and target are entity tuples.
type Relationship struct {
	SourceName  string
	SourceType  EntityType
	TargetName  string
	TargetType  EntityType
	Type        RelationshipType
	Description string
	Confidence  float64
	RunID       string
	UpdatedAt   time.Time
}

// Source returns the natural key of the source endpoint.
func (r *Relationship) Source() *Entity {
	return &Entity{Name: r.SourceName, Type: r.SourceType}
}

// Target returns the natural key of the target endpoint.
func (r *Relationship) Target() *Entity {
	return &Entity{Name: r.TargetName, Type: r.TargetType}
}

// Tuple returns a string representation of the relationship as
// "(SourceType,SourceName)-[Type]->(TargetType,TargetName)".
func (r *Relationship) Tuple() string {
	return r.Source().Tuple() + "-[" + string(r.Type) + "]->" + r.Target().Tuple()
}

// Key returns the natural-key ID of the relationship.
func (r *Relationship) Key() ID {
	return IDFromContent(r.Tuple())
}

// Normalize lower-cases and trims the endpoints and type in place.
func (r *Relationship) Normalize() {
	r.SourceName = normalizeName(r.SourceName)
	r.SourceType = EntityType(normalizeName(string(r.SourceType)))
	r.TargetName = normalizeName(r.TargetName)
	r.TargetType = EntityType(normalizeName(string(r.TargetType)))
	r.Type = RelationshipType(strings.ReplaceAll(normalizeName(string(r.Type)), " ", "_"))
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// labelMapping maps raw NER labels to canonical entity types.
var labelMapping = map[string]EntityType{
	"org":             EntityTypeOrganization,
	"organization":    EntityTypeOrganization,
	"threat_actor":    EntityTypeThreatActor,
	"per":             EntityTypePerson,
	"person":          EntityTypePerson,
	"loc":             EntityTypeLocation,
	"location":        EntityTypeLocation,
	"misc":            EntityTypeMisc,
	"miscellaneous":   EntityTypeMisc,
	"cve":             EntityTypeCVE,
	"vulnerability":   EntityTypeVulnerability,
	"ttp":             EntityTypeTTP,
	"mitre_technique": EntityTypeMitreTechnique,
	"malware":         EntityTypeMalware,
	"tool":            EntityTypeTool,
	"script":          EntityTypeScript,
	"exploit":         EntityTypeExploit,
	"indicator":       EntityTypeIndicator,
}

// MapEntityLabel maps a raw NER label to a canonical EntityType.
// Returns false for unknown or empty labels.
func MapEntityLabel(label string) (EntityType, bool) {
	if label == "" {
		return "", false
	}
	t, ok := labelMapping[strings.ToLower(label)]
	return t, ok
}
