package pipeline

import (
	"sync"
	"time"

	"github.com/poiesic/threatgraph/core"
	"github.com/poiesic/threatgraph/graph"
)

// Summary is the end-of-run report.
type Summary = core.RunRecord

// Outcome is the terminal state of one document.
type Outcome int

const (
	OutcomeCommitted Outcome = iota
	OutcomeFailed
	OutcomeEmptyText
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeFailed:
		return "failed"
	case OutcomeEmptyText:
		return "empty_text"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// RunMetrics accumulates counters for a single run. It is owned by the
// executor for the duration of Run and safe for concurrent use.
type RunMetrics struct {
	mu      sync.Mutex
	summary Summary
}

func newRunMetrics(runID string, dryRun bool, documents int, started time.Time) *RunMetrics {
	return &RunMetrics{summary: Summary{
		ID:        runID,
		StartedAt: started,
		Documents: documents,
		DryRun:    dryRun,
	}}
}

func (m *RunMetrics) record(o Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch o {
	case OutcomeCommitted:
		m.summary.Committed++
	case OutcomeFailed:
		m.summary.Failed++
	case OutcomeEmptyText:
		m.summary.EmptyText++
	case OutcomeSkipped:
		m.summary.Skipped++
	}
}

// docResult is what one document contributed to the graph.
type docResult struct {
	entities      int // produced by the stages
	relationships int
	persisted     graph.PersistResult
}

func (m *RunMetrics) add(r docResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summary.Entities += r.entities
	m.summary.Relationships += r.relationships
	m.summary.EntitiesWritten += r.persisted.Entities
	m.summary.RelationshipsWritten += r.persisted.Relationships
	m.summary.PersistenceErrors += r.persisted.Failed
}

// Handled returns the number of documents that reached a terminal state.
func (m *RunMetrics) Handled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.summary
	return s.Committed + s.Failed + s.EmptyText + s.Skipped
}

func (m *RunMetrics) finish(finished time.Time, stopped bool) *Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summary.FinishedAt = finished
	m.summary.Stopped = stopped
	out := m.summary
	return &out
}
