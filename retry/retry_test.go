package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errFlaky = errors.New("flaky")
	errFatal = errors.New("fatal")
)

func fastPolicy(t *testing.T, opts ...Option) *Policy {
	t.Helper()
	p, err := NewPolicy(append([]Option{WithBackoff(time.Millisecond, 5*time.Millisecond)}, opts...)...)
	require.NoError(t, err)
	return p
}

func TestPolicy_SucceedsFirstAttempt(t *testing.T) {
	p := fastPolicy(t)
	calls := 0

	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_SucceedsAfterRetries(t *testing.T) {
	p := fastPolicy(t)
	calls := 0

	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicy_Exhausted(t *testing.T) {
	p := fastPolicy(t, WithMaxAttempts(4))
	calls := 0

	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})

	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errFlaky)
}

func TestPolicy_TerminalErrorNotRetried(t *testing.T) {
	p := fastPolicy(t, WithClassifier(func(err error) bool {
		return errors.Is(err, errFlaky)
	}))
	calls := 0

	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errFatal
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, errFatal, err)
}

func TestPolicy_ContextCancelled(t *testing.T) {
	p, err := NewPolicy(WithBackoff(time.Hour, time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err = p.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errFlaky
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPolicy_DelayIsCapped(t *testing.T) {
	p, err := NewPolicy(WithBackoff(100*time.Millisecond, 300*time.Millisecond))
	require.NoError(t, err)

	assert.Equal(t, 100*time.Millisecond, p.delay(1))
	assert.Equal(t, 200*time.Millisecond, p.delay(2))
	assert.Equal(t, 300*time.Millisecond, p.delay(3))
	assert.Equal(t, 300*time.Millisecond, p.delay(10))
}

func TestNewPolicy_InvalidOptions(t *testing.T) {
	_, err := NewPolicy(WithMaxAttempts(0))
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)

	_, err = NewPolicy(WithBackoff(time.Second, time.Millisecond))
	assert.Error(t, err)
}
