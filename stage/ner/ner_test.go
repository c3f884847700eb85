package ner

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/threatgraph/core"
	"github.com/poiesic/threatgraph/stage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTagger struct {
	spans []Span
	err   error
}

func (f fakeTagger) Tag(ctx context.Context, text string) ([]Span, error) {
	return f.spans, f.err
}

func names(entities []core.Entity) map[string]core.EntityType {
	out := make(map[string]core.EntityType)
	for _, e := range entities {
		out[e.Name] = e.Type
	}
	return out
}

func TestMatchRules(t *testing.T) {
	text := "APT28 exploited CVE-2021-44228 using Mimikatz and T1059.001, " +
		"then RedLine Stealer beaconed to 10.0.0.5 via EternalBlue and dropper.py " +
		"(sha d41d8cd98f00b204e9800998ecf8427e)."

	got := names(MatchRules(text))

	tests := map[string]core.EntityType{
		"APT28":                            core.EntityTypeThreatActor,
		"CVE-2021-44228":                   core.EntityTypeVulnerability,
		"Mimikatz":                         core.EntityTypeTool,
		"T1059.001":                        core.EntityTypeMitreTechnique,
		"10.0.0.5":                         core.EntityTypeIndicator,
		"EternalBlue":                      core.EntityTypeExploit,
		"dropper.py":                       core.EntityTypeTool,
		"d41d8cd98f00b204e9800998ecf8427e": core.EntityTypeIndicator,
	}
	for name, typ := range tests {
		assert.Equal(t, typ, got[name], name)
	}
}

func TestFilter(t *testing.T) {
	in := []core.Entity{
		{Name: "emotet", Type: core.EntityTypeMalware, Confidence: 0.75},
		{Name: "Emotet", Type: core.EntityTypeMalware, Confidence: 0.95},
		{Name: "lowconf", Type: core.EntityTypeTool, Confidence: 0.5},
		{Name: "ab", Type: core.EntityTypeTool, Confidence: 0.9},
		{Name: "The", Type: core.EntityTypeMisc, Confidence: 0.9},
		{Name: "emotet", Type: core.EntityTypeTool, Confidence: 0.8},
	}

	out := Filter(in, DefaultMinConfidence)
	require.Len(t, out, 2)
	assert.Equal(t, "Emotet", out[0].Name)
	assert.Equal(t, 0.95, out[0].Confidence)
	assert.Equal(t, core.EntityTypeTool, out[1].Type)
}

func TestExtractEntities_RulesOnly(t *testing.T) {
	e := New()
	entities, err := e.ExtractEntities(context.Background(), "APT29 used Cobalt Strike against CVE-2020-1472.")
	require.NoError(t, err)

	got := names(entities)
	assert.Equal(t, core.EntityTypeThreatActor, got["APT29"])
	assert.Equal(t, core.EntityTypeTool, got["Cobalt Strike"])
	assert.Equal(t, core.EntityTypeVulnerability, got["CVE-2020-1472"])
}

func TestExtractEntities_MergesTagger(t *testing.T) {
	text := "Lazarus targeted Sony with Mimikatz"
	e := New(WithTagger(fakeTagger{spans: []Span{
		{Label: "ORG", Start: 0, End: 7, Score: 0.92},
		{Label: "ORG", Start: 0, End: 7, Score: 0.92},
		{Label: "LOC", Start: 17, End: 21, Score: 0.4},
		{Label: "TOOL", Start: 27, End: 35, Score: 0.99},
		{Label: "UNKNOWN", Start: 0, End: 7, Score: 0.99},
		{Label: "ORG", Start: 30, End: 99, Score: 0.99},
	}}))

	entities, err := e.ExtractEntities(context.Background(), text)
	require.NoError(t, err)

	got := names(entities)
	assert.Equal(t, core.EntityTypeOrganization, got["Lazarus"])
	assert.NotContains(t, got, "Sony", "below confidence threshold")

	mimikatz := 0
	for _, ent := range entities {
		if ent.Name == "Mimikatz" {
			mimikatz++
			assert.Equal(t, 0.99, ent.Confidence, "tagger result wins over rule")
		}
	}
	assert.Equal(t, 1, mimikatz)
}

func TestExtractEntities_TaggerFailure(t *testing.T) {
	e := New(WithTagger(fakeTagger{err: errors.New("model not loaded")}))

	_, err := e.ExtractEntities(context.Background(), "APT1")
	var extractionErr *stage.ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	assert.Equal(t, "ner", extractionErr.Stage)
}
