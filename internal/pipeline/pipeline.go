// Package pipeline drives an ingestion run: it opens the source stream,
// handles the header line, and runs the read/parse/build/batch/flush loop
// until end-of-stream. The driver is a small state machine; every bulk
// write is awaited synchronously, so memory stays bounded by the batch
// size and records arrive at the destination in file order.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"

	"conductor/internal/analyzer"
	"conductor/internal/bulk"
	"conductor/internal/cerrors"
	"conductor/internal/datasource/file"
	"conductor/internal/metrics"
	csvparse "conductor/internal/parser/csv"
	"conductor/internal/progress"
	"conductor/internal/record"
	"conductor/internal/schema"
)

// State is the driver's position in a run.
type State int

const (
	StateAwaitingHeader State = iota
	StateStreaming
	StateFlushing
	StateComplete
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateAwaitingHeader:
		return "awaiting_header"
	case StateStreaming:
		return "streaming"
	case StateFlushing:
		return "flushing"
	case StateComplete:
		return "complete"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Stats are the running counters of one run.
type Stats struct {
	// LinesRead counts every data line consumed from the source, including
	// blank and malformed ones. TotalProcessed counts only lines that became
	// records.
	LinesRead      int64
	TotalProcessed int64
	TotalWritten   int64
	ParseErrors    int64
	FailedWrites   int64
	SkippedBlank   int64
}

// Result is the caller-visible outcome of a successful run.
type Result struct {
	TotalProcessed int64
	TotalWritten   int64
}

// Options configure one driver.
type Options struct {
	// Delimiter is the single-character field separator. Default ",".
	Delimiter string
	// BatchSize is the number of records per bulk write. Default 500.
	BatchSize int
	// MaxRetries and RetryBaseDelay are passed to the bulk writer.
	MaxRetries     int
	RetryBaseDelay time.Duration
	// LogDir is where the error analyzer writes its report files.
	LogDir string
	// ShowProgress enables the terminal progress bar.
	ShowProgress bool
}

// Driver runs one file against one destination backend. It is not reused
// across files; each file gets a fresh driver so no state crosses file
// boundaries.
type Driver struct {
	backend bulk.Backend
	target  schema.Target
	opts    Options

	state State
	stats Stats
}

// New returns a Driver for one run.
func New(backend bulk.Backend, target schema.Target, opts Options) *Driver {
	if opts.Delimiter == "" {
		opts.Delimiter = ","
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	return &Driver{backend: backend, target: target, opts: opts}
}

// State returns the driver's current state.
func (d *Driver) State() State { return d.state }

// Stats returns a snapshot of the running counters.
func (d *Driver) Stats() Stats { return d.stats }

// Run processes the file end to end. A header failure aborts before any
// data line is read; a fatal write error aborts mid-stream with the batch
// already rolled back by the backend. Per-row parse failures are soft:
// counted, logged, and skipped.
func (d *Driver) Run(ctx context.Context, src *file.Local) (Result, error) {
	started := time.Now()
	runName := src.Path()

	total, err := src.CountDataLines(ctx)
	if err != nil {
		d.state = StateAborted
		return Result{}, err
	}

	lines, err := src.OpenLines(ctx)
	if err != nil {
		d.state = StateAborted
		return Result{}, err
	}
	defer lines.Close()

	// Header phase: exactly the first line, validated before any data is
	// read.
	headerStart := time.Now()
	headers, err := d.readHeader(lines)
	metrics.RecordStage(runName, "header", err, time.Since(headerStart))
	if err != nil {
		d.state = StateAborted
		return Result{}, err
	}

	rep := analyzer.New(d.backend.Name(), d.opts.LogDir)
	writer := bulk.NewWriter(d.backend, bulk.WriterOptions{
		MaxRetries:     d.opts.MaxRetries,
		RetryBaseDelay: d.opts.RetryBaseDelay,
		OnFailures:     func(n int) { d.stats.FailedWrites += int64(n) },
		Reporter:       rep,
	})

	batcher, err := bulk.NewBatcher(d.opts.BatchSize, func(ctx context.Context, recs []*record.Record) error {
		n, err := writer.WriteBatch(ctx, recs)
		if err != nil {
			return err
		}
		d.stats.TotalWritten += int64(n)
		metrics.RecordBatches(runName, d.backend.Name(), 1)
		return nil
	})
	if err != nil {
		d.state = StateAborted
		return Result{}, err
	}

	var prog *progress.Reporter
	if d.opts.ShowProgress {
		prog = progress.NewReporter(int64(total), started)
	}

	// Streaming phase.
	d.state = StateStreaming
	streamStart := time.Now()
	builder := record.NewBuilder(headers, runName, started)

	var line int64 = 1
	for lines.Next() {
		line++
		d.stats.LinesRead++
		// The bar tracks lines consumed, not records built: the pre-counted
		// total includes blank and malformed lines, so skips must advance it
		// too or a dirty file never reaches 100%.
		if prog != nil {
			prog.Update(d.stats.LinesRead)
		}
		fields, perr := csvparse.ParseLine(lines.Text(), d.opts.Delimiter, false)
		if perr != nil {
			d.stats.ParseErrors++
			log.Printf("pipeline: skipping malformed line %d: %v", line, perr)
			continue
		}
		if fields == nil {
			d.stats.SkippedBlank++
			continue
		}

		d.stats.TotalProcessed++
		if err := batcher.Add(ctx, builder.Build(fields)); err != nil {
			d.state = StateAborted
			metrics.RecordStage(runName, "streaming", err, time.Since(streamStart))
			return Result{}, err
		}
	}
	if err := lines.Err(); err != nil {
		d.state = StateAborted
		return Result{}, cerrors.FileAccess("error while reading "+runName, err)
	}
	metrics.RecordStage(runName, "streaming", nil, time.Since(streamStart))

	// Final partial batch.
	d.state = StateFlushing
	if err := batcher.FlushRemaining(ctx); err != nil {
		d.state = StateAborted
		return Result{}, err
	}
	if prog != nil {
		prog.Finish(d.stats.LinesRead)
	}

	d.state = StateComplete
	d.logSummary(runName, time.Since(started))
	metrics.RecordRecords(runName, "processed", d.stats.TotalProcessed)
	metrics.RecordRecords(runName, "written", d.stats.TotalWritten)
	metrics.RecordRecords(runName, "parse_errors", d.stats.ParseErrors)
	metrics.RecordRecords(runName, "failed", d.stats.FailedWrites)

	return Result{
		TotalProcessed: d.stats.TotalProcessed,
		TotalWritten:   d.stats.TotalWritten,
	}, nil
}

// readHeader consumes the first line and validates it structurally and
// against the target. Failure aborts the run before any data line is read.
func (d *Driver) readHeader(lines *file.Lines) ([]string, error) {
	if !lines.Next() {
		if err := lines.Err(); err != nil {
			return nil, cerrors.FileAccess("error reading header line", err)
		}
		return nil, cerrors.Validation(
			"input has no header line",
			"ensure the first line of the file names the destination fields",
		)
	}

	headers, err := csvparse.ParseLine(lines.Text(), d.opts.Delimiter, true)
	if err != nil {
		return nil, err
	}
	if len(headers) == 0 {
		return nil, cerrors.Validation(
			"header line is blank",
			"ensure the first line of the file names the destination fields",
		)
	}

	if violations := schema.ValidateHeaders(headers); len(violations) > 0 {
		return nil, schema.StructuralError(violations)
	}
	if res := schema.MatchTarget(headers, d.target); !res.OK() {
		return nil, schema.MatchError(res, d.target)
	}
	return headers, nil
}

func (d *Driver) logSummary(runName string, elapsed time.Duration) {
	log.Printf("pipeline: %s complete: processed=%s written=%s parse_errors=%d failed=%d blank=%d elapsed=%s",
		runName,
		humanize.Comma(d.stats.TotalProcessed),
		humanize.Comma(d.stats.TotalWritten),
		d.stats.ParseErrors,
		d.stats.FailedWrites,
		d.stats.SkippedBlank,
		elapsed.Round(time.Millisecond),
	)
}

// RunFiles processes each file fully before the next begins, with a fresh
// driver per file so no state crosses file boundaries. It stops at the
// first fatal error.
func RunFiles(ctx context.Context, paths []string, backend bulk.Backend, target schema.Target, opts Options) (Result, error) {
	var agg Result
	for _, path := range paths {
		d := New(backend, target, opts)
		res, err := d.Run(ctx, file.NewLocal(path))
		agg.TotalProcessed += res.TotalProcessed
		agg.TotalWritten += res.TotalWritten
		if err != nil {
			return agg, fmt.Errorf("processing %s: %w", path, err)
		}
	}
	return agg, nil
}
