package pipeline

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressReporter(t *testing.T) {
	var buf bytes.Buffer
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	p := newProgressReporter(&buf, 4, 2, now)

	clock = clock.Add(time.Second)
	p.advance(OutcomeCommitted)
	assert.Empty(t, buf.String(), "no report before the interval")

	p.advance(OutcomeFailed)
	assert.Contains(t, buf.String(), "Documents: 2/4 (50.0%), 1 failed - 2.0 docs/s")

	buf.Reset()
	p.advance(OutcomeCommitted)
	p.advance(OutcomeCommitted)
	p.advance(OutcomeCommitted) // capped at total
	p.finish()

	out := buf.String()
	assert.Contains(t, out, "Documents: 4/4 (100.0%)")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestProgressReporter_Nil(t *testing.T) {
	var p *progressReporter
	assert.NotPanics(t, func() {
		p.advance(OutcomeCommitted)
		p.finish()
	})
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "committed", OutcomeCommitted.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
	assert.Equal(t, "empty_text", OutcomeEmptyText.String())
	assert.Equal(t, "skipped", OutcomeSkipped.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
