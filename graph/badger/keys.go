package badger

import (
	"encoding/binary"

	"github.com/poiesic/threatgraph/core"
)

const (
	schemaVersionKey   = "schema:version"
	entityPrefix       = "ent:"
	relationshipPrefix = "rel:"
	adjacencyPrefix    = "adj:"
	runPrefix          = "run:"
	checkpointPrefix   = "ckpt:"

	schemaVersion uint64 = 1
)

// makeEntityKey generates a key for an entity by natural key.
// Format: prefix + 8 byte BigEndian id
func makeEntityKey(id core.ID) []byte {
	return appendID([]byte(entityPrefix), id)
}

// makeRelationshipKey generates a key for a relationship by natural key.
func makeRelationshipKey(id core.ID) []byte {
	return appendID([]byte(relationshipPrefix), id)
}

// makeAdjacencyKey generates a composite key for the outgoing-edge index.
// Format: prefix + sourceID + relationshipID
func makeAdjacencyKey(source, rel core.ID) []byte {
	return appendID(appendID([]byte(adjacencyPrefix), source), rel)
}

// makePartialAdjacencyKey generates the prefix for all edges leaving source.
func makePartialAdjacencyKey(source core.ID) []byte {
	return appendID([]byte(adjacencyPrefix), source)
}

// makeRunKey generates a key for a run summary.
// Run keys sort by start time so a reverse scan lists the newest first.
func makeRunKey(run *core.RunRecord) []byte {
	buf := binary.BigEndian.AppendUint64([]byte(runPrefix), uint64(run.StartedAt.UnixMicro()))
	return append(buf, run.ID...)
}

// makeCheckpointKey generates the key holding a named checkpoint.
func makeCheckpointKey(name string) []byte {
	return append([]byte(checkpointPrefix), name...)
}

func appendID(buf []byte, id core.ID) []byte {
	return binary.BigEndian.AppendUint64(buf, uint64(id))
}

// relationshipIDFromAdjacencyKey extracts the relationship id from an adjacency key.
func relationshipIDFromAdjacencyKey(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}
