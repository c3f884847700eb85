package pipeline

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// progressReporter writes a one-line status every interval documents.
type progressReporter struct {
	mu       sync.Mutex
	writer   io.Writer
	total    int
	interval int
	done     int
	failed   int
	last     int
	start    time.Time
	now      func() time.Time
}

func newProgressReporter(w io.Writer, total, interval int, now func() time.Time) *progressReporter {
	if interval < 1 {
		interval = 1
	}
	return &progressReporter{
		writer:   w,
		total:    total,
		interval: interval,
		start:    now(),
		now:      now,
	}
}

// advance records one terminal document.
func (p *progressReporter) advance(o Outcome) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = min(p.done+1, p.total)
	if o == OutcomeFailed {
		p.failed++
	}
	if p.done-p.last >= p.interval {
		p.report()
		p.last = p.done
	}
}

// finish prints the final line.
func (p *progressReporter) finish() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.report()
	fmt.Fprintln(p.writer)
}

// report must be called with the lock held.
func (p *progressReporter) report() {
	elapsed := p.now().Sub(p.start).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(p.done) / elapsed
	}
	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.done) / float64(p.total) * 100.0
	}
	fmt.Fprintf(p.writer, "\rDocuments: %d/%d (%.1f%%), %d failed - %.1f docs/s",
		p.done, p.total, percentage, p.failed, rate)
}
