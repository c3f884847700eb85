package ner

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/poiesic/threatgraph/core"
	"github.com/poiesic/threatgraph/stage"
)

// DefaultMinConfidence is the confidence below which entities are dropped.
const DefaultMinConfidence = 0.7

// Span is one labelled region reported by a Tagger.
type Span struct {
	Label string
	Start int // Byte offset, inclusive
	End   int // Byte offset, exclusive
	Score float64
}

// Tagger is a model-backed named-entity recognizer.
type Tagger interface {
	Tag(ctx context.Context, text string) ([]Span, error)
}

type rule struct {
	pattern    *regexp.Regexp
	entityType core.EntityType
	confidence float64
}

var rules = []rule{
	{regexp.MustCompile(`(?i)CVE-\d{4}-\d{4,7}`), core.EntityTypeVulnerability, 0.9},
	{regexp.MustCompile(`(?i)\bT\d{4}(?:\.\d{3})?\b`), core.EntityTypeMitreTechnique, 1.0},
	{regexp.MustCompile(`(?i)\bAPT\d+\b`), core.EntityTypeThreatActor, 0.85},
	{regexp.MustCompile(`(?i)\b[\w-]+(?:Stealer|RAT|Malware|Bot)\b`), core.EntityTypeMalware, 0.8},
	{regexp.MustCompile(`(?i)\b(?:Mimikatz|Cobalt Strike|Metasploit|Netcat|Meterpreter)\b`), core.EntityTypeTool, 0.8},
	{regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), core.EntityTypeIndicator, 0.7},
	{regexp.MustCompile(`\b[a-fA-F0-9]{32,64}\b`), core.EntityTypeIndicator, 0.7},
	{regexp.MustCompile(`(?i)\b(?:EternalBlue|BlueKeep|Heartbleed)\b`), core.EntityTypeExploit, 0.85},
	{regexp.MustCompile(`\b[a-zA-Z0-9_]+\.py\b`), core.EntityTypeTool, 0.75},
}

var noisyTokens = map[string]struct{}{
	"run": {}, "the": {}, ".": {}, ",": {}, "e": {}, "dll32.exe": {}, "rund1132.exe": {},
}

var nonWord = regexp.MustCompile(`^\W+$`)

// Extractor implements stage.Extractor.
type Extractor struct {
	tagger        Tagger
	minConfidence float64
	logger        *slog.Logger
}

var _ stage.Extractor = (*Extractor)(nil)

// Option configures an Extractor.
type Option func(*Extractor)

// WithTagger adds a model-backed tagger whose spans are merged with the rule matches.
func WithTagger(t Tagger) Option {
	return func(e *Extractor) {
		e.tagger = t
	}
}

// WithMinConfidence sets the confidence filter. Default is 0.7.
func WithMinConfidence(c float64) Option {
	return func(e *Extractor) {
		e.minConfidence = c
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		minConfidence: DefaultMinConfidence,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("stage", "ner")
	return e
}

// ExtractEntities tags text, applies the pattern rules and filters the result.
// A tagger failure is returned as a *stage.ExtractionError.
func (e *Extractor) ExtractEntities(ctx context.Context, text string) ([]core.Entity, error) {
	var entities []core.Entity
	seen := make(map[string]struct{})

	if e.tagger != nil {
		spans, err := e.tagger.Tag(ctx, text)
		if err != nil {
			return nil, stage.NewExtractionError("ner", err)
		}
		entities = e.fromSpans(text, spans, seen)
	}

	for _, ent := range MatchRules(text) {
		key := dedupKey(&ent)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		entities = append(entities, ent)
	}

	filtered := Filter(entities, e.minConfidence)
	e.logger.Debug("extracted entities", "raw", len(entities), "kept", len(filtered))
	return filtered, nil
}

func (e *Extractor) fromSpans(text string, spans []Span, seen map[string]struct{}) []core.Entity {
	var entities []core.Entity
	seenSpans := make(map[[2]int]struct{})

	for _, span := range spans {
		typ, ok := core.MapEntityLabel(span.Label)
		if !ok {
			continue
		}
		if span.Start < 0 || span.End > len(text) || span.Start >= span.End {
			e.logger.Debug("ignoring out of range span", "start", span.Start, "end", span.End)
			continue
		}
		if _, dup := seenSpans[[2]int{span.Start, span.End}]; dup {
			continue
		}
		seenSpans[[2]int{span.Start, span.End}] = struct{}{}

		name := strings.TrimSpace(text[span.Start:span.End])
		if len(name) < 2 || nonWord.MatchString(name) {
			continue
		}

		ent := core.Entity{Name: name, Type: typ, Text: name, Confidence: span.Score}
		key := dedupKey(&ent)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		entities = append(entities, ent)
	}
	return entities
}

// MatchRules returns every pattern-rule match in text, unfiltered.
func MatchRules(text string) []core.Entity {
	var entities []core.Entity
	for _, r := range rules {
		for _, match := range r.pattern.FindAllString(text, -1) {
			entities = append(entities, core.Entity{
				Name:       match,
				Type:       r.entityType,
				Text:       match,
				Confidence: r.confidence,
			})
		}
	}
	return entities
}

// Filter drops entities below minConfidence, names of two characters or
// fewer and noise tokens, then keeps the highest-confidence entity per
// case-insensitive (name, type). Order of first appearance is preserved.
func Filter(entities []core.Entity, minConfidence float64) []core.Entity {
	index := make(map[string]int)
	out := make([]core.Entity, 0, len(entities))

	for _, ent := range entities {
		if ent.Confidence < minConfidence {
			continue
		}
		if len(ent.Name) <= 2 {
			continue
		}
		if _, noisy := noisyTokens[strings.ToLower(ent.Name)]; noisy {
			continue
		}

		key := dedupKey(&ent)
		if i, ok := index[key]; ok {
			if ent.Confidence > out[i].Confidence {
				out[i] = ent
			}
			continue
		}
		index[key] = len(out)
		out = append(out, ent)
	}
	return out
}

func dedupKey(e *core.Entity) string {
	return strings.ToLower(e.Name) + "\x00" + string(e.Type)
}
