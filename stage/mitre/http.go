package mitre

import (
	"context"
	"fmt"
	"net/http"
)

// DefaultRemoteURL is the enterprise ATT&CK bundle published by MITRE.
const DefaultRemoteURL = "https://raw.githubusercontent.com/mitre/cti/master/enterprise-attack/enterprise-attack.json"

// HTTPSource loads a catalog from a STIX bundle served over HTTP.
type HTTPSource struct {
	URL    string
	Client *http.Client // http.DefaultClient if nil
}

var _ Source = HTTPSource{}

// Load fetches and parses the bundle.
func (s HTTPSource) Load(ctx context.Context) (*Catalog, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching MITRE bundle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching MITRE bundle: unexpected status %s", resp.Status)
	}
	return ParseBundle(resp.Body)
}
