package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// HTTPTagger calls a token-classification endpoint that takes
// {"inputs": text} and answers with the aggregated entity list of a
// Hugging Face NER pipeline. Offsets in the response count characters;
// they are converted to byte offsets here.
type HTTPTagger struct {
	URL    string
	Token  string       // Sent as a bearer token when set
	Client *http.Client // http.DefaultClient if nil
}

var _ Tagger = HTTPTagger{}

type taggedEntity struct {
	EntityGroup string   `json:"entity_group"`
	Entity      string   `json:"entity"`
	Start       *int     `json:"start"`
	End         *int     `json:"end"`
	Score       *float64 `json:"score"`
}

// Tag posts text and converts the response into spans. Entries without a
// label or offsets are skipped.
func (t HTTPTagger) Tag(ctx context.Context, text string) ([]Span, error) {
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	body, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.Token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling tagger: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calling tagger: unexpected status %s", resp.Status)
	}

	var tagged []taggedEntity
	if err := json.NewDecoder(resp.Body).Decode(&tagged); err != nil {
		return nil, fmt.Errorf("decoding tagger response: %w", err)
	}

	offsets := byteOffsets(text)
	spans := make([]Span, 0, len(tagged))
	for _, te := range tagged {
		label := te.EntityGroup
		if label == "" {
			label = te.Entity
		}
		if label == "" || te.Start == nil || te.End == nil {
			continue
		}
		start, end := *te.Start, *te.End
		if start < 0 || end >= len(offsets) || start >= end {
			continue
		}
		span := Span{Label: label, Start: offsets[start], End: offsets[end]}
		if te.Score != nil {
			span.Score = *te.Score
		}
		spans = append(spans, span)
	}
	return spans, nil
}

// byteOffsets maps each character index of text, plus the end, to its byte offset.
func byteOffsets(text string) []int {
	offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}
