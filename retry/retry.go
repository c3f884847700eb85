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


// Package retry provides a bounded retry policy shared by components that
// call out to I/O.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrInvalidMaxAttempts indicates a non-positive attempt limit.
	ErrInvalidMaxAttempts = errors.New("max attempts must be greater than 0")

	// ErrExhausted wraps the last error once every attempt failed.
	ErrExhausted = errors.New("retries exhausted")
)

// Classifier reports whether err is worth another attempt.
type Classifier func(err error) bool

// AlwaysRetry treats every error except context cancellation as retryable.
func AlwaysRetry(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Policy retries an operation a bounded number of times with capped
// exponential backoff.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	retryable   Classifier
	logger      *slog.Logger
}

// Option configures a Policy.
type Option func(*Policy) error

// WithMaxAttempts sets the total number of attempts, including the first.
// Default is 3.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) error {
		if n <= 0 {
			return ErrInvalidMaxAttempts
		}
		p.maxAttempts = n
		return nil
	}
}

// WithBackoff sets the base delay, doubled after each failure, and its cap.
// Defaults are 100ms and 2s.
func WithBackoff(base, max time.Duration) Option {
	return func(p *Policy) error {
		if base < 0 || max < base {
			return fmt.Errorf("invalid backoff %s..%s", base, max)
		}
		p.baseDelay = base
		p.maxDelay = max
		return nil
	}
}

// WithClassifier sets the retryable-error classifier.
// Default is AlwaysRetry.
func WithClassifier(c Classifier) Option {
	return func(p *Policy) error {
		if c == nil {
			c = AlwaysRetry
		}
		p.retryable = c
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPolicy creates a Policy.
func NewPolicy(opts ...Option) (*Policy, error) {
	p := &Policy{
		maxAttempts: 3,
		baseDelay:   100 * time.Millisecond,
		maxDelay:    2 * time.Second,
		retryable:   AlwaysRetry,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// MaxAttempts returns the configured attempt limit.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// Do runs op until it succeeds, returns a non-retryable error, or the
// attempt limit is reached. A non-retryable error is returned as is.
// Exhaustion returns ErrExhausted wrapping the last error.
func (p *Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 1 {
				p.logger.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		if !p.retryable(lastErr) {
			return lastErr
		}

		p.logger.Debug("operation failed, will retry",
			"attempt", attempt,
			"max_attempts", p.maxAttempts,
			"err", lastErr)

		if attempt == p.maxAttempts {
			break
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.maxAttempts, lastErr)
}

// delay returns baseDelay * 2^(attempt-1), capped at maxDelay.
func (p *Policy) delay(attempt int) time.Duration {
	d := p.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.maxDelay {
			return p.maxDelay
		}
	}
	return min(d, p.maxDelay)
}
