package core

import "time"

// RunRecord summarizes one pipeline run.
type RunRecord struct {
	ID                   string
	StartedAt            time.Time
	FinishedAt           time.Time
	Documents            int // Documents handed to the executor
	Committed            int
	Failed               int // Malformed documents, including panics
	Skipped              int // Already committed in an earlier attempt
	EmptyText            int
	Entities             int // Entities produced by extraction and enrichment
	Relationships        int // Relationships produced by relation extraction
	EntitiesWritten      int
	RelationshipsWritten int
	PersistenceErrors    int
	DryRun               bool
	Stopped              bool // Ended by a stop signal before every document was handled
}

// Duration returns how long the run took.
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
