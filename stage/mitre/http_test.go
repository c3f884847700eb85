package mitre

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/enterprise-attack.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(bundle))
	}))
	defer srv.Close()

	catalog, err := HTTPSource{URL: srv.URL + "/enterprise-attack.json"}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Len())

	_, err = HTTPSource{URL: srv.URL + "/missing.json", Client: srv.Client()}.Load(context.Background())
	assert.ErrorContains(t, err, "404")
}
