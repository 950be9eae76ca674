package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultRedrawInterval bounds how often the progress line is repainted.
const DefaultRedrawInterval = 100 * time.Millisecond

// BatchProgress draws a single status line for a batch of evaluations with
// a running tally per outcome, for example:
//
//	(42/100)  42.0% allow=30 block=2 restrict=10  812.5 eval/s
//
// Finish prints a one-line summary. It is safe for concurrent use.
type BatchProgress struct {
	mu       sync.Mutex
	w        io.Writer
	unit     string
	interval time.Duration
	now      func() time.Time

	total    int64
	done     int64
	counts   map[string]int64
	started  time.Time
	lastDraw time.Time
}

// NewProgressReporter writes progress to w (os.Stderr when nil) and labels
// the rate with unit ("items/s" when empty).
func NewProgressReporter(w io.Writer, unit string) *BatchProgress {
	if w == nil {
		w = os.Stderr
	}
	if unit == "" {
		unit = "items/s"
	}
	return &BatchProgress{
		w:        w,
		unit:     unit,
		interval: DefaultRedrawInterval,
		now:      time.Now,
		counts:   map[string]int64{},
	}
}

// Start resets the tally for a batch of total items.
func (p *BatchProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.done = 0
	clear(p.counts)
	p.started = p.now()
	p.draw(true)
}

// Record counts one finished item under outcome.
func (p *BatchProgress) Record(outcome string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	if p.done > p.total {
		p.total = p.done
	}
	p.counts[outcome]++
	p.draw(p.done == p.total)
}

// Counts returns a copy of the tally.
func (p *BatchProgress) Counts() map[string]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]int64, len(p.counts))
	for k, v := range p.counts {
		out[k] = v
	}
	return out
}

// Finish repaints the final line and prints the summary.
func (p *BatchProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.draw(true)
	if p.total > 0 {
		fmt.Fprintln(p.w)
	}
	elapsed := p.now().Sub(p.started).Round(time.Millisecond)
	fmt.Fprintf(p.w, "✓ %d evaluated in %s", p.done, elapsed)
	if tally := p.tally(); tally != "" {
		fmt.Fprintf(p.w, ": %s", tally)
	}
	fmt.Fprintln(p.w)
}

// Error ends the line and reports err.
func (p *BatchProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "\n✗ Error after %d of %d: %v\n", p.done, p.total, err)
}

// draw repaints unless the last repaint was under interval ago.
// Callers hold mu.
func (p *BatchProgress) draw(force bool) {
	if p.total == 0 {
		return
	}
	now := p.now()
	if !force && now.Sub(p.lastDraw) < p.interval {
		return
	}
	p.lastDraw = now

	percent := float64(p.done) / float64(p.total) * 100
	rate := 0.0
	if elapsed := now.Sub(p.started).Seconds(); elapsed > 0 {
		rate = float64(p.done) / elapsed
	}

	line := fmt.Sprintf("\r(%d/%d) %5.1f%%", p.done, p.total, percent)
	if tally := p.tally(); tally != "" {
		line += " " + tally
	}
	fmt.Fprintf(p.w, "%s  %.1f %s", line, rate, p.unit)
}

// tally renders the counts sorted by outcome.
func (p *BatchProgress) tally() string {
	keys := make([]string, 0, len(p.counts))
	for k := range p.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, p.counts[k])
	}
	return strings.Join(parts, " ")
}
