package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/threatgraph/checkpoint"
	"github.com/poiesic/threatgraph/core"
	"github.com/poiesic/threatgraph/graph"
	"github.com/poiesic/threatgraph/stage"
)

// Persister writes a document's entities and relationships.
// *graph.Sink implements it.
type Persister interface {
	PersistAll(ctx context.Context, entities []core.Entity, rels []core.Relationship) graph.PersistResult
}

// RunRecorder stores run summaries.
type RunRecorder interface {
	SaveRun(ctx context.Context, run *core.RunRecord) error
}

var _ Persister = (*graph.Sink)(nil)

// Executor runs documents through a stage chain and commits them to the
// checkpoint once persisted.
type Executor struct {
	chain     stage.Chain
	persister Persister
	tracker   *checkpoint.Tracker

	workers int
	pool    *ants.Pool
	dryRun  bool
	runID   string

	progressWriter   io.Writer
	progressInterval int
	collectors       *Collectors
	recorder         RunRecorder

	now     func() time.Time
	logger  *slog.Logger
	stopped atomic.Bool
}

// NewExecutor creates an Executor. persister may be nil only in dry-run mode.
func NewExecutor(chain stage.Chain, persister Persister, tracker *checkpoint.Tracker, opts ...Option) (*Executor, error) {
	e := &Executor{
		chain:            chain,
		persister:        persister,
		tracker:          tracker,
		workers:          1,
		progressInterval: 100,
		now:              func() time.Time { return time.Now().UTC() },
		logger:           slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			e.Release()
			return nil, err
		}
	}

	if err := chain.Validate(); err != nil {
		e.Release()
		return nil, err
	}
	if tracker == nil {
		e.Release()
		return nil, ErrTrackerRequired
	}
	if persister == nil && !e.dryRun {
		e.Release()
		return nil, ErrPersisterRequired
	}

	e.logger = e.logger.With("component", "executor")
	return e, nil
}

// Stop asks the current Run to return after the documents being processed
// reach a terminal state. It is safe to call from any goroutine. Each Run
// starts with the request cleared, so a stopped Executor can run again.
func (e *Executor) Stop() {
	e.stopped.Store(true)
}

// Release frees the worker pool. The Executor should not be used afterwards.
func (e *Executor) Release() {
	if e.pool != nil {
		e.pool.Release()
	}
}

// Run processes docs and returns the run summary.
//
// Cancelling ctx acts like Stop: it is checked between documents, and a
// document already started runs to completion. The only error returned is a
// failed checkpoint write, which ends the run because later commits could
// not be trusted. A summary is returned in every case.
func (e *Executor) Run(ctx context.Context, docs []*core.Document) (*Summary, error) {
	e.stopped.Store(false)
	logger := e.logger.With("run_id", e.runID)
	metrics := newRunMetrics(e.runID, e.dryRun, len(docs), e.now())

	var progress *progressReporter
	if e.progressWriter != nil {
		progress = newProgressReporter(e.progressWriter, len(docs), e.progressInterval, e.now)
	}

	logger.Info("run starting",
		"documents", len(docs),
		"committed_before", e.tracker.Len(),
		"workers", e.workers,
		"dry_run", e.dryRun)

	var err error
	if e.pool == nil {
		err = e.runSequential(ctx, docs, metrics, progress)
	} else {
		err = e.runPooled(ctx, docs, metrics, progress)
	}

	stopped := e.stopRequested(ctx) && metrics.Handled() < len(docs)
	summary := metrics.finish(e.now(), stopped)
	progress.finish()

	if e.recorder != nil {
		if recErr := e.recorder.SaveRun(context.WithoutCancel(ctx), summary); recErr != nil {
			logger.Error("failed to save run summary", "err", recErr)
		}
	}

	logger.Info("run finished",
		"committed", summary.Committed,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"empty_text", summary.EmptyText,
		"entities", summary.Entities,
		"relationships", summary.Relationships,
		"entities_written", summary.EntitiesWritten,
		"relationships_written", summary.RelationshipsWritten,
		"persistence_errors", summary.PersistenceErrors,
		"stopped", summary.Stopped,
		"duration", summary.Duration())

	return summary, err
}

func (e *Executor) stopRequested(ctx context.Context) bool {
	return e.stopped.Load() || ctx.Err() != nil
}

func (e *Executor) runSequential(ctx context.Context, docs []*core.Document, m *RunMetrics, p *progressReporter) error {
	for _, doc := range docs {
		if e.stopRequested(ctx) {
			e.logger.Info("stop requested, ending run early")
			return nil
		}
		if err := e.process(ctx, doc, m, p); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) runPooled(ctx context.Context, docs []*core.Document, m *RunMetrics, p *progressReporter) error {
	var (
		wg       sync.WaitGroup
		failOnce sync.Once
		fatal    error
		failed   atomic.Bool
	)

	for _, doc := range docs {
		if e.stopRequested(ctx) || failed.Load() {
			break
		}
		wg.Add(1)
		err := e.pool.Submit(func() {
			defer wg.Done()
			if err := e.process(ctx, doc, m, p); err != nil {
				failOnce.Do(func() { fatal = err })
				failed.Store(true)
			}
		})
		if err != nil {
			wg.Done()
			failOnce.Do(func() { fatal = fmt.Errorf("submitting document %d: %w", doc.ID, err) })
			break
		}
	}

	wg.Wait()
	return fatal
}

// process moves one document to a terminal state and records the outcome.
func (e *Executor) process(ctx context.Context, doc *core.Document, m *RunMetrics, p *progressReporter) error {
	outcome, err := e.handle(ctx, doc, m)
	m.record(outcome)
	e.collectors.observeOutcome(outcome)
	p.advance(outcome)
	return err
}

func (e *Executor) handle(ctx context.Context, doc *core.Document, m *RunMetrics) (Outcome, error) {
	logger := e.logger.With("document_id", doc.ID)

	if !e.tracker.Claim(doc.ID) {
		if e.tracker.Committed(doc.ID) {
			logger.Debug("document already committed, skipping")
		} else {
			logger.Warn("document is in flight on another worker, skipping")
		}
		return OutcomeSkipped, nil
	}

	// Stages run to completion even if the run is cancelled meanwhile.
	docCtx := context.WithoutCancel(ctx)

	res, err := e.execute(docCtx, doc, logger)
	switch {
	case errors.Is(err, ErrEmptyText):
		e.tracker.Release(doc.ID)
		logger.Info("document has no text")
		return OutcomeEmptyText, nil
	case err != nil:
		e.tracker.Release(doc.ID)
		logger.Error("document failed", "stage", stageName(err), "err", err)
		return OutcomeFailed, nil
	}

	m.add(res)
	e.collectors.observeProduced(res.entities, res.relationships)
	e.collectors.observePersisted(res.persisted.Entities, res.persisted.Relationships, res.persisted.Failed)

	if e.dryRun {
		e.tracker.Release(doc.ID)
		logger.Debug("dry run, not committing",
			"entities", res.entities,
			"relationships", res.relationships)
		return OutcomeCommitted, nil
	}

	if err := e.tracker.Commit(docCtx, doc.ID); err != nil {
		logger.Error("failed to commit document", "err", err)
		return OutcomeFailed, fmt.Errorf("%w: %w", ErrCheckpoint, err)
	}

	logger.Debug("document committed",
		"entities", res.entities,
		"relationships", res.relationships,
		"entities_written", res.persisted.Entities,
		"relationships_written", res.persisted.Relationships,
		"persistence_errors", res.persisted.Failed)
	return OutcomeCommitted, nil
}

// execute runs the stage chain on doc. Any returned error fails the
// document; enrichment and relationship failures are absorbed here.
func (e *Executor) execute(ctx context.Context, doc *core.Document, logger *slog.Logger) (res docResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	if strings.TrimSpace(doc.Text) == "" {
		return res, ErrEmptyText
	}

	start := e.now()
	entities, err := e.chain.Extractor.ExtractEntities(ctx, doc.Text)
	e.observe("extract", start, logger)
	if err != nil {
		var extractionErr *stage.ExtractionError
		if !errors.As(err, &extractionErr) {
			err = stage.NewExtractionError("extract", err)
		}
		return res, err
	}

	if e.chain.Enricher != nil {
		start = e.now()
		enriched, enrichErr := e.chain.Enricher.Enrich(ctx, entities)
		e.observe("enrich", start, logger)
		if enrichErr != nil {
			logger.Warn("enrichment failed, keeping unenriched entities", "err", enrichErr)
		} else {
			entities = enriched
		}
	}

	rels := []core.Relationship{}
	if e.chain.Relations != nil && len(entities) > 0 {
		start = e.now()
		found, relErr := e.chain.Relations.ExtractRelationships(ctx, doc.Text, entities)
		e.observe("relations", start, logger)
		if relErr != nil {
			logger.Warn("relationship extraction failed, continuing without relationships", "err", relErr)
		} else if found != nil {
			rels = found
		}
	}

	res.entities = len(entities)
	res.relationships = len(rels)
	if e.dryRun {
		return res, nil
	}

	start = e.now()
	res.persisted = e.persister.PersistAll(ctx, entities, rels)
	e.observe("persist", start, logger)
	if res.persisted.Err != nil {
		logger.Warn("document partially persisted", "failed_items", res.persisted.Failed, "err", res.persisted.Err)
	}
	return res, nil
}

func (e *Executor) observe(name string, start time.Time, logger *slog.Logger) {
	d := e.now().Sub(start)
	e.collectors.observeStage(name, d)
	logger.Debug("stage finished", "stage", name, "duration", d)
}

func stageName(err error) string {
	var extractionErr *stage.ExtractionError
	switch {
	case errors.As(err, &extractionErr):
		return extractionErr.Stage
	case errors.Is(err, ErrPanic):
		return "panic"
	default:
		return "unknown"
	}
}
