package pipeline

import (
	"io"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"
)

// Option configures an Executor.
type Option func(*Executor) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithWorkers sets the number of documents processed concurrently.
// Default is 1, which processes documents strictly one at a time.
func WithWorkers(n int) Option {
	return func(e *Executor) error {
		if n < 1 {
			n = 1
		}
		if e.pool != nil {
			e.pool.Release()
			e.pool = nil
		}
		e.workers = n
		if n == 1 {
			return nil
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return err
		}
		e.pool = pool
		return nil
	}
}

// WithDryRun runs the stages without persisting or checkpointing.
func WithDryRun(dryRun bool) Option {
	return func(e *Executor) error {
		e.dryRun = dryRun
		return nil
	}
}

// WithRunID sets the identifier reported in the Summary.
func WithRunID(runID string) Option {
	return func(e *Executor) error {
		e.runID = runID
		return nil
	}
}

// WithProgress writes a status line to w every interval documents.
func WithProgress(w io.Writer, interval int) Option {
	return func(e *Executor) error {
		e.progressWriter = w
		e.progressInterval = interval
		return nil
	}
}

// WithCollectors exports run activity through c.
func WithCollectors(c *Collectors) Option {
	return func(e *Executor) error {
		e.collectors = c
		return nil
	}
}

// WithRunRecorder saves the Summary through r when Run finishes.
func WithRunRecorder(r RunRecorder) Option {
	return func(e *Executor) error {
		e.recorder = r
		return nil
	}
}

// WithClock sets the time source for run and stage timing.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) error {
		if now != nil {
			e.now = now
		}
		return nil
	}
}
