package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poiesic/threatgraph"
	"github.com/poiesic/threatgraph/chunker"
	"github.com/poiesic/threatgraph/chunkstore"
	"github.com/poiesic/threatgraph/config"
	"github.com/poiesic/threatgraph/graph/badger"
	"github.com/poiesic/threatgraph/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

// loadConfig reads the config file and applies flags the user set.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var opts []config.Option
	if c.IsSet("archive") {
		opts = append(opts, config.WithArchive(c.String("archive")))
	}
	if c.IsSet("checkpoint") {
		opts = append(opts, config.WithCheckpoint(c.String("checkpoint")))
	}
	if c.IsSet("graph") {
		opts = append(opts, config.WithGraphPath(c.String("graph")))
	}
	if c.IsSet("workers") {
		opts = append(opts, config.WithWorkers(c.Int("workers")))
	}
	if c.IsSet("dry-run") {
		opts = append(opts, config.WithDryRun(c.Bool("dry-run")))
	}
	if c.IsSet("metrics-addr") {
		opts = append(opts, config.WithMetricsAddr(c.String("metrics-addr")))
	}
	return config.Load(c.String("config"), opts...)
}

func runCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	// SIGINT/SIGTERM stop the run between documents.
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := threatgraph.Open(ctx, cfg, threatgraph.WithProgress(c.App.ErrWriter))
	if err != nil {
		return err
	}
	defer rt.Close()

	if addr := cfg.Pipeline.MetricsAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           promhttp.HandlerFor(rt.Registry(), promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "addr", addr, "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		slog.Info("serving metrics", "addr", addr)
	}

	summary, err := rt.Run(ctx)
	if summary != nil {
		printSummary(c, summary)
	}
	return err
}

func printSummary(c *cli.Context, s *pipeline.Summary) {
	w := c.App.Writer
	fmt.Fprintf(w, "Run %s finished in %s\n", s.ID, s.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  Documents:          %d\n", s.Documents)
	fmt.Fprintf(w, "  Committed:          %d\n", s.Committed)
	fmt.Fprintf(w, "  Skipped:            %d\n", s.Skipped)
	fmt.Fprintf(w, "  Failed:             %d\n", s.Failed)
	fmt.Fprintf(w, "  Empty text:         %d\n", s.EmptyText)
	fmt.Fprintf(w, "  Entities:           %d\n", s.Entities)
	fmt.Fprintf(w, "  Relationships:      %d\n", s.Relationships)
	fmt.Fprintf(w, "  Entities written:   %d\n", s.EntitiesWritten)
	fmt.Fprintf(w, "  Rels written:       %d\n", s.RelationshipsWritten)
	fmt.Fprintf(w, "  Persistence errors: %d\n", s.PersistenceErrors)
	if s.DryRun {
		fmt.Fprintln(w, "  (dry run, nothing written)")
	}
	if s.Stopped {
		fmt.Fprintln(w, "  (stopped early, rerun to resume)")
	}
}

func reconstructCommand(c *cli.Context) error {
	policy, err := chunkstore.ParseDuplicatePolicy(c.String("duplicates"))
	if err != nil {
		return err
	}

	docs, stats, err := chunkstore.LoadDocuments(c.Context, c.String("archive"),
		chunkstore.WithMinTextLength(c.Int("min-length")),
		chunkstore.WithMaxTextLength(c.Int("max-length")),
		chunkstore.WithDuplicatePolicy(policy))
	if err != nil {
		return err
	}

	w := c.App.Writer
	if c.Bool("print") {
		enc := json.NewEncoder(w)
		for _, doc := range docs {
			if err := enc.Encode(doc); err != nil {
				return err
			}
		}
	}

	fmt.Fprintf(w, "Documents: %d (dropped %d)\n", stats.Documents, stats.DroppedDocuments)
	fmt.Fprintf(w, "Chunks: %d total, %d valid, %d skipped (%d short, %d long, %d malformed)\n",
		stats.TotalChunks, stats.ValidChunks, stats.SkippedChunks, stats.TooShort, stats.TooLong, stats.Malformed)
	fmt.Fprintf(w, "Duplicate positions: %d, metadata inconsistencies: %d\n",
		stats.DuplicatePositions, stats.Inconsistencies)
	return nil
}

func chunkCommand(c *cli.Context) error {
	ch, err := chunker.New(
		chunker.WithChunkSize(c.Int("chunk-size")),
		chunker.WithChunkOverlap(c.Int("chunk-overlap")),
		chunker.WithMinLength(c.Int("min-length")))
	if err != nil {
		return err
	}

	records, err := chunker.ReadRecords(c.String("input"))
	if err != nil {
		return err
	}
	chunks, stats, err := ch.Split(records)
	if err != nil {
		return err
	}
	if err := chunker.WriteArchive(c.String("output"), chunks); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Wrote %d chunks from %d records to %s (%d empty records, %d short fragments)\n",
		stats.Chunks, stats.Records, c.String("output"), stats.EmptyRecords, stats.ShortFragments)
	return nil
}

func runsCommand(c *cli.Context) error {
	path := c.String("graph")
	if path == "" {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		if cfg.Graph.Backend != "badger" {
			return threatgraph.ErrRunsUnavailable
		}
		path = cfg.Graph.Path
	}

	backend, err := badger.OpenBackend(path, false, slog.Default())
	if err != nil {
		return err
	}
	defer backend.Close()

	runs, err := badger.NewRunRepository(backend).ListRuns(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}

	w := c.App.Writer
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}
	for _, r := range runs {
		mode := ""
		if r.DryRun {
			mode = " dry-run"
		}
		if r.Stopped {
			mode += " stopped"
		}
		fmt.Fprintf(w, "%s  %s  %8s  committed=%d skipped=%d failed=%d empty=%d entities=%d relationships=%d%s\n",
			r.StartedAt.Format(time.RFC3339), r.ID, r.Duration().Round(time.Millisecond),
			r.Committed, r.Skipped, r.Failed, r.EmptyText, r.Entities, r.Relationships, mode)
	}
	return nil
}
