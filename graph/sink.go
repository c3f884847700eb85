package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/threatgraph/core"
	"github.com/poiesic/threatgraph/retry"
)

// Sink validates, stamps and writes records to a Store, retrying transient
// failures. Failures are returned per item; the caller decides what to skip.
type Sink struct {
	store     Store
	policy    *retry.Policy
	retryOpts []retry.Option
	runID     string
	now       func() time.Time
	logger    *slog.Logger
}

// SinkOption configures a Sink.
type SinkOption func(*Sink) error

// WithRetryPolicy sets the retry policy. Its classifier is replaced with
// IsTransient. Default is three attempts with 100ms..2s backoff.
func WithRetryPolicy(opts ...retry.Option) SinkOption {
	return func(s *Sink) error {
		s.retryOpts = opts
		return nil
	}
}

// WithRunID sets the run identifier stamped on every record.
func WithRunID(runID string) SinkOption {
	return func(s *Sink) error {
		s.runID = runID
		return nil
	}
}

// WithClock sets the time source used for UpdatedAt.
func WithClock(now func() time.Time) SinkOption {
	return func(s *Sink) error {
		if now != nil {
			s.now = now
		}
		return nil
	}
}

// WithSinkLogger sets a custom logger.
// Default is slog.Default().
func WithSinkLogger(logger *slog.Logger) SinkOption {
	return func(s *Sink) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSink creates a Sink and bootstraps the store schema.
func NewSink(ctx context.Context, store Store, opts ...SinkOption) (*Sink, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	s := &Sink{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "sink", "run_id", s.runID)

	policy, err := retry.NewPolicy(append(append([]retry.Option{}, s.retryOpts...),
		retry.WithClassifier(IsTransient),
		retry.WithLogger(s.logger))...)
	if err != nil {
		return nil, err
	}
	s.policy = policy

	if err := s.policy.Do(ctx, s.store.EnsureSchema); err != nil {
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return s, nil
}

// RunID returns the run identifier stamped on records.
func (s *Sink) RunID() string {
	return s.runID
}

// UpsertEntity normalizes, validates and merges entity.
// Validation failures are PermanentErrors and are not retried.
func (s *Sink) UpsertEntity(ctx context.Context, entity core.Entity) error {
	entity.Aliases = append([]string(nil), entity.Aliases...)
	entity.Normalize()
	if err := core.ValidateEntity(&entity); err != nil {
		return Permanent(err)
	}
	entity.RunID = s.runID
	entity.UpdatedAt = s.now()

	return s.policy.Do(ctx, func(ctx context.Context) error {
		return s.store.UpsertEntity(ctx, &entity)
	})
}

// UpsertRelationship normalizes, validates and merges rel.
// Validation failures are PermanentErrors and are not retried.
func (s *Sink) UpsertRelationship(ctx context.Context, rel core.Relationship) error {
	rel.Normalize()
	if err := core.ValidateRelationship(&rel); err != nil {
		return Permanent(err)
	}
	rel.RunID = s.runID
	rel.UpdatedAt = s.now()

	return s.policy.Do(ctx, func(ctx context.Context) error {
		return s.store.UpsertRelationship(ctx, &rel)
	})
}

// PersistResult summarizes one PersistAll call.
type PersistResult struct {
	Entities      int   // Entities written
	Relationships int   // Relationships written
	Failed        int   // Items that could not be written
	Err           error // Joined per-item errors, nil if none failed
}

// PersistAll writes entities then relationships. A failed item is logged
// and skipped; the remaining items are still written. Only context
// cancellation stops early.
func (s *Sink) PersistAll(ctx context.Context, entities []core.Entity, rels []core.Relationship) PersistResult {
	var result PersistResult
	var errs []error

	for i := range entities {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := s.UpsertEntity(ctx, entities[i]); err != nil {
			result.Failed++
			errs = append(errs, fmt.Errorf("entity %s: %w", entities[i].Tuple(), err))
			s.logger.Warn("failed to persist entity",
				"entity", entities[i].Name,
				"type", entities[i].Type,
				"transient", IsTransient(err),
				"err", err)
			continue
		}
		result.Entities++
	}

	for i := range rels {
		if ctx.Err() != nil {
			if len(errs) == 0 || !errors.Is(errs[len(errs)-1], ctx.Err()) {
				errs = append(errs, ctx.Err())
			}
			break
		}
		if err := s.UpsertRelationship(ctx, rels[i]); err != nil {
			result.Failed++
			errs = append(errs, fmt.Errorf("relationship %s: %w", rels[i].Tuple(), err))
			s.logger.Warn("failed to persist relationship",
				"source", rels[i].SourceName,
				"target", rels[i].TargetName,
				"type", rels[i].Type,
				"transient", IsTransient(err),
				"err", err)
			continue
		}
		result.Relationships++
	}

	result.Err = errors.Join(errs...)
	return result
}

// Close closes the underlying store.
func (s *Sink) Close() error {
	return s.store.Close()
}
