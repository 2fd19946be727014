// Package progress renders a throttled, fixed-width progress bar for one
// file run. On a terminal the same line is redrawn in place; otherwise each
// update is a plain log-style line.
package progress

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

const (
	barWidth = 30

	// Throttle intervals, chosen by dataset size.
	smallTotal    = 10000
	smallInterval = 10
	largeInterval = 1000

	// Minimum elapsed time used for throughput, so rate and ETA never
	// divide by zero.
	minElapsed = time.Millisecond
)

// Reporter tracks one run's progress against a known total.
type Reporter struct {
	total    int64
	start    time.Time
	interval int64

	out   io.Writer
	isTTY bool
	now   func() time.Time

	lastDecile int64
	rendered   bool
}

// NewReporter returns a Reporter for total records, started at start. The
// update interval scales with the dataset: every 10 records for small
// files, every 1000 for large ones.
func NewReporter(total int64, start time.Time) *Reporter {
	interval := int64(smallInterval)
	if total > smallTotal {
		interval = largeInterval
	}
	return &Reporter{
		total:    total,
		start:    start,
		interval: interval,
		out:      os.Stderr,
		isTTY:    isatty.IsTerminal(os.Stderr.Fd()),
		now:      time.Now,
	}
}

// Update renders the bar when processed crosses a throttle boundary: every
// interval records, on the final record, and on each ~10% increment for
// small totals.
func (r *Reporter) Update(processed int64) {
	if !r.shouldRender(processed) {
		return
	}
	r.render(processed)
}

// Finish renders the final state unconditionally and terminates the
// redrawn line.
func (r *Reporter) Finish(processed int64) {
	r.render(processed)
	if r.isTTY && r.rendered {
		fmt.Fprintln(r.out)
	}
}

func (r *Reporter) shouldRender(processed int64) bool {
	render := r.total > 0 && processed >= r.total
	if processed > 0 && processed%r.interval == 0 {
		render = true
	}
	if r.total > 0 && r.total <= 100 {
		// Track the decile on every render, not just decile-triggered ones,
		// so an interval render does not re-fire on the next record.
		decile := processed * 10 / r.total
		if decile > r.lastDecile {
			render = true
		}
		if render {
			r.lastDecile = decile
		}
	}
	return render
}

func (r *Reporter) render(processed int64) {
	line := Line(processed, r.total, r.now().Sub(r.start))
	if r.isTTY {
		fmt.Fprintf(r.out, "\r%s", line)
	} else {
		fmt.Fprintf(r.out, "%s\n", line)
	}
	r.rendered = true
}

// Line formats one progress line: bar, percent, counts, throughput, and
// ETA. Non-finite intermediate values render as a placeholder instead of
// corrupting the line.
func Line(processed, total int64, elapsed time.Duration) string {
	pct := percent(processed, total)
	filled := int(pct / 100 * barWidth)
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled)

	if elapsed < minElapsed {
		elapsed = minElapsed
	}
	rate := float64(processed) / elapsed.Seconds()

	eta := "--"
	if rate > 0 && total > processed {
		remaining := float64(total-processed) / rate
		if !math.IsNaN(remaining) && !math.IsInf(remaining, 0) {
			eta = (time.Duration(remaining * float64(time.Second))).Round(time.Second).String()
		}
	}

	return fmt.Sprintf("[%s] %s%% %s/%s %s rec/s eta %s elapsed %s",
		bar,
		formatFloat(pct, 1),
		humanize.Comma(processed),
		humanize.Comma(total),
		formatFloat(rate, 1),
		eta,
		elapsed.Round(time.Second),
	)
}

// percent clamps to [0, 100] and tolerates a zero or negative total.
func percent(processed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	pct := float64(processed) / float64(total) * 100
	switch {
	case math.IsNaN(pct), pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

func formatFloat(v float64, prec int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "--"
	}
	return fmt.Sprintf("%.*f", prec, v)
}
