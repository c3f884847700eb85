package badger

import (
	"testing"

	"github.com/poiesic/threatgraph/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshal_Truncated(t *testing.T) {
	data := marshal(entityMUS, core.Entity{
		Name: "emotet", Type: core.EntityTypeMalware,
		Aliases: []string{"heodo", "geodo"},
	})
	require.NotEmpty(t, data)

	_, err := unmarshal(entityMUS, data[:len(data)/2])
	assert.Error(t, err)
}
