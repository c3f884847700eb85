// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package threatgraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/poiesic/threatgraph/checkpoint"
	"github.com/poiesic/threatgraph/chunkstore"
	"github.com/poiesic/threatgraph/config"
	"github.com/poiesic/threatgraph/core"
	"github.com/poiesic/threatgraph/graph"
	"github.com/poiesic/threatgraph/graph/badger"
	"github.com/poiesic/threatgraph/graph/neo4j"
	"github.com/poiesic/threatgraph/pipeline"
	"github.com/poiesic/threatgraph/retry"
	"github.com/poiesic/threatgraph/stage"
	"github.com/poiesic/threatgraph/stage/llm"
	"github.com/poiesic/threatgraph/stage/mitre"
	"github.com/poiesic/threatgraph/stage/ner"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrRunsUnavailable indicates the configured graph backend does not keep run history.
var ErrRunsUnavailable = errors.New("run history requires the badger backend")

// Runtime owns everything a pipeline run needs: the checkpoint, the graph
// store, the stage chain and the executor.
type Runtime struct {
	cfg      *config.Config
	runID    string
	tracker  *checkpoint.Tracker
	store    graph.Store
	backend  *badger.Backend
	runs     *badger.RunRepository
	enricher *mitre.Enricher
	executor *pipeline.Executor
	registry *prometheus.Registry
	logger   *slog.Logger
}

// Option configures a Runtime.
type Option func(*runtimeOptions)

type runtimeOptions struct {
	logger   *slog.Logger
	progress io.Writer
	registry *prometheus.Registry
	chain    *stage.Chain
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *runtimeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithProgress writes periodic progress lines to w.
func WithProgress(w io.Writer) Option {
	return func(o *runtimeOptions) {
		o.progress = w
	}
}

// WithRegistry registers pipeline metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *runtimeOptions) {
		o.registry = reg
	}
}

// WithChain replaces the stage chain built from configuration.
func WithChain(chain stage.Chain) Option {
	return func(o *runtimeOptions) {
		o.chain = &chain
	}
}

// Open validates cfg and opens every component. A corrupt checkpoint, an
// unreachable graph store or an unavailable MITRE catalog is fatal here,
// before any document is touched.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	options := &runtimeOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if options.registry == nil {
		options.registry = prometheus.NewRegistry()
	}

	r := &Runtime{
		cfg:      cfg,
		runID:    uuid.NewString(),
		registry: options.registry,
	}
	r.logger = options.logger.With("run_id", r.runID)

	if err := r.open(ctx, options); err != nil {
		if closeErr := r.Close(); closeErr != nil {
			r.logger.Error("error closing partially opened runtime", "err", closeErr)
		}
		return nil, err
	}
	return r, nil
}

func (r *Runtime) open(ctx context.Context, options *runtimeOptions) error {
	if err := r.openGraph(ctx); err != nil {
		return err
	}

	var store checkpoint.Store = checkpoint.NewFileStore(r.cfg.Checkpoint.Path)
	if r.cfg.Checkpoint.Store == "graph" {
		store = badger.NewCheckpointStore(r.backend, r.cfg.Checkpoint.Name)
	}
	tracker, err := checkpoint.Resume(ctx, store)
	if err != nil {
		return fmt.Errorf("loading checkpoint: %w", err)
	}
	r.tracker = tracker

	var persister pipeline.Persister
	if !r.cfg.Pipeline.DryRun {
		sink, err := graph.NewSink(ctx, r.store,
			graph.WithRunID(r.runID),
			graph.WithRetryPolicy(
				retry.WithMaxAttempts(r.cfg.Retry.MaxAttempts),
				retry.WithBackoff(r.cfg.Retry.BaseDelay, r.cfg.Retry.MaxDelay),
			),
			graph.WithSinkLogger(r.logger))
		if err != nil {
			return fmt.Errorf("preparing graph schema: %w", err)
		}
		persister = sink
	}

	chain := options.chain
	if chain == nil {
		built, err := r.buildChain(ctx)
		if err != nil {
			return err
		}
		chain = &built
	}

	execOpts := []pipeline.Option{
		pipeline.WithLogger(r.logger),
		pipeline.WithRunID(r.runID),
		pipeline.WithWorkers(r.cfg.Pipeline.Workers),
		pipeline.WithDryRun(r.cfg.Pipeline.DryRun),
		pipeline.WithCollectors(pipeline.NewCollectors(r.registry)),
	}
	if options.progress != nil && r.cfg.Pipeline.ReportInterval > 0 {
		execOpts = append(execOpts, pipeline.WithProgress(options.progress, r.cfg.Pipeline.ReportInterval))
	}
	if r.runs != nil {
		execOpts = append(execOpts, pipeline.WithRunRecorder(r.runs))
	}

	executor, err := pipeline.NewExecutor(*chain, persister, r.tracker, execOpts...)
	if err != nil {
		return err
	}
	r.executor = executor
	return nil
}

func (r *Runtime) openGraph(ctx context.Context) error {
	gc := r.cfg.Graph
	switch gc.Backend {
	case "neo4j":
		store, err := neo4j.Open(ctx, neo4j.Config{
			URI:      gc.URI,
			User:     gc.User,
			Password: gc.Password,
			Database: gc.Database,
		}, r.logger)
		if err != nil {
			return err
		}
		r.store = store
	default:
		backend, err := badger.OpenBackend(gc.Path, gc.InMemory, r.logger)
		if err != nil {
			return fmt.Errorf("opening graph store: %w", err)
		}
		r.backend = backend
		r.store = badger.NewGraphStore(backend)
		r.runs = badger.NewRunRepository(backend)
	}
	return nil
}

// buildChain assembles rule-based extraction, optional MITRE enrichment and
// optional LLM relationship extraction.
func (r *Runtime) buildChain(ctx context.Context) (stage.Chain, error) {
	nerOpts := []ner.Option{
		ner.WithMinConfidence(r.cfg.NER.MinConfidence),
		ner.WithLogger(r.logger),
	}
	if nc := r.cfg.NER; nc.TaggerURL != "" {
		nerOpts = append(nerOpts, ner.WithTagger(ner.HTTPTagger{URL: nc.TaggerURL, Token: nc.TaggerToken}))
	}

	chain := stage.Chain{
		Extractor: ner.New(nerOpts...),
		Enricher:  stage.Passthrough{},
		Relations: stage.NoRelations{},
	}

	if mc := r.cfg.Mitre; mc.Enabled() {
		var snapshot mitre.Source
		if mc.SnapshotPath != "" {
			snapshot = mitre.FileSource{Path: mc.SnapshotPath}
		}
		opts := []mitre.Option{
			mitre.WithCache(mc.CacheTTL, mc.CacheCapacity),
			mitre.WithLogger(r.logger),
		}
		if mc.RemoteURL != "" {
			opts = append(opts, mitre.WithRemote(mitre.HTTPSource{URL: mc.RemoteURL}))
		}
		enricher, err := mitre.New(snapshot, opts...)
		if err != nil {
			return chain, err
		}
		r.enricher = enricher

		catalog, err := enricher.Catalog(ctx)
		if err != nil {
			return chain, fmt.Errorf("loading MITRE catalog: %w", err)
		}
		r.logger.Info("MITRE catalog loaded", "techniques", catalog.Len())
		chain.Enricher = enricher
	}

	if lc := r.cfg.LLM; lc.Enabled() {
		extractor, err := llm.New(llm.NewConfig(
			llm.WithHost(lc.Host),
			llm.WithModel(lc.Model),
			llm.WithToken(lc.Token),
			llm.WithTemperature(lc.Temperature),
			llm.WithMaxAttempts(lc.MaxParseAttempts),
			llm.WithRequestsPerSecond(lc.RequestsPerSecond),
		), r.logger)
		if err != nil {
			return chain, fmt.Errorf("creating relation extractor: %w", err)
		}
		chain.Relations = extractor
	} else {
		r.logger.Info("no LLM host configured, relationship extraction disabled")
	}

	return chain, nil
}

// RunID returns the identifier stamped on everything this Runtime writes.
func (r *Runtime) RunID() string {
	return r.runID
}

// Registry returns the registry holding pipeline metrics.
func (r *Runtime) Registry() *prometheus.Registry {
	return r.registry
}

// Documents reads and reconstructs the configured archive.
func (r *Runtime) Documents(ctx context.Context) ([]*core.Document, chunkstore.ReconstructStats, error) {
	rc := r.cfg.Reconstruct
	policy, err := chunkstore.ParseDuplicatePolicy(rc.DuplicatePolicy)
	if err != nil {
		return nil, chunkstore.ReconstructStats{}, err
	}
	return chunkstore.LoadDocuments(ctx, r.cfg.Archive.Path,
		chunkstore.WithMinTextLength(rc.MinTextLength),
		chunkstore.WithMaxTextLength(rc.MaxTextLength),
		chunkstore.WithDuplicatePolicy(policy),
		chunkstore.WithLogger(r.logger))
}

// Run reconstructs the archive and processes every document not yet
// committed. An unreadable archive is returned before any processing.
func (r *Runtime) Run(ctx context.Context) (*pipeline.Summary, error) {
	docs, stats, err := r.Documents(ctx)
	if err != nil {
		return nil, err
	}
	r.logger.Info("archive reconstructed", "stats", stats)
	return r.executor.Run(ctx, docs)
}

// Stop asks a running Run to finish the documents in flight and return.
func (r *Runtime) Stop() {
	if r.executor != nil {
		r.executor.Stop()
	}
}

// Runs returns up to limit stored run summaries, newest first.
func (r *Runtime) Runs(ctx context.Context, limit int) ([]*core.RunRecord, error) {
	if r.runs == nil {
		return nil, ErrRunsUnavailable
	}
	return r.runs.ListRuns(ctx, limit)
}

// Close releases every component. It is safe to call on a partially opened Runtime.
func (r *Runtime) Close() error {
	var errs []error
	if r.executor != nil {
		r.executor.Release()
	}
	if r.enricher != nil {
		r.enricher.Close()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("error closing graph store", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
