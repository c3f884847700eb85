package mitre

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Technique is the subset of a STIX object used for enrichment.
type Technique struct {
	ID          string // ATT&CK external id such as T1059
	Name        string
	Type        string // STIX type such as attack-pattern
	Description string
	URLs        []string
}

// Catalog indexes techniques by external id and by name.
type Catalog struct {
	byID   map[string]*Technique
	byName map[string]*Technique
}

type stixBundle struct {
	Objects []stixObject `json:"objects"`
}

type stixObject struct {
	Type               string `json:"type"`
	Name               string `json:"name"`
	Description        string `json:"description"`
	ExternalReferences []struct {
		SourceName string `json:"source_name"`
		ExternalID string `json:"external_id"`
		URL        string `json:"url"`
	} `json:"external_references"`
}

// ParseBundle reads a STIX 2 bundle.
func ParseBundle(r io.Reader) (*Catalog, error) {
	var bundle stixBundle
	if err := json.NewDecoder(r).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("decoding STIX bundle: %w", err)
	}
	if bundle.Objects == nil {
		return nil, fmt.Errorf("STIX bundle has no objects")
	}

	c := &Catalog{
		byID:   make(map[string]*Technique),
		byName: make(map[string]*Technique),
	}
	for _, obj := range bundle.Objects {
		t := &Technique{
			Name:        obj.Name,
			Type:        obj.Type,
			Description: obj.Description,
		}
		for _, ref := range obj.ExternalReferences {
			if t.ID == "" && ref.SourceName == "mitre-attack" {
				t.ID = ref.ExternalID
			}
			if ref.URL != "" {
				t.URLs = append(t.URLs, ref.URL)
			}
		}

		if t.ID != "" {
			if _, exists := c.byID[strings.ToUpper(t.ID)]; !exists {
				c.byID[strings.ToUpper(t.ID)] = t
			}
		}
		if t.Name != "" {
			if _, exists := c.byName[strings.ToUpper(t.Name)]; !exists {
				c.byName[strings.ToUpper(t.Name)] = t
			}
		}
	}
	return c, nil
}

// Lookup finds a technique by external id, then by name.
func (c *Catalog) Lookup(name string) (*Technique, bool) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if t, ok := c.byID[key]; ok {
		return t, true
	}
	t, ok := c.byName[key]
	return t, ok
}

// Len returns the number of techniques indexed by id.
func (c *Catalog) Len() int {
	return len(c.byID)
}

// Source loads a catalog.
type Source interface {
	Load(ctx context.Context) (*Catalog, error)
}

// FileSource loads a catalog from a local STIX snapshot file.
type FileSource struct {
	Path string
}

var _ Source = FileSource{}

// Load reads and parses the snapshot.
func (s FileSource) Load(ctx context.Context) (*Catalog, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("opening MITRE snapshot: %w", err)
	}
	defer f.Close()
	return ParseBundle(f)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*Catalog, error)

// Load calls f.
func (f SourceFunc) Load(ctx context.Context) (*Catalog, error) {
	return f(ctx)
}
