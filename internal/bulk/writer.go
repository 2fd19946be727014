package bulk

import (
	"context"
	"fmt"
	"log"
	"time"

	"conductor/internal/cerrors"
	"conductor/internal/record"
)

// Backend executes bulk writes against one destination and classifies its
// errors. For the relational variant, each ExecuteBatch call runs in its own
// transaction, so a failed attempt is rolled back before the writer retries.
type Backend interface {
	// Name identifies the backend kind ("postgres", "sqlite", "search").
	Name() string
	// Destination names the target table or index.
	Destination() string
	// ExecuteBatch performs a single multi-record write. A nil error with
	// per-item Errors in the Result signals partial failure; a non-nil error
	// signals that the whole batch failed.
	ExecuteBatch(ctx context.Context, recs []*record.Record) (Result, error)
	// Classify maps a whole-batch error onto the closed tag set.
	Classify(err error) ErrorTag
}

// WriterOptions configure one bulk writer.
type WriterOptions struct {
	// MaxRetries is the total number of write attempts for a batch whose
	// failures are transport-level. Default 3.
	MaxRetries int
	// RetryBaseDelay scales the linear backoff: the delay after attempt k is
	// k x RetryBaseDelay. Default 500ms.
	RetryBaseDelay time.Duration
	// OnFailures is invoked with the per-item failure count of each
	// partially failed bulk write.
	OnFailures func(count int)
	// Reporter receives partial-failure results for error analysis. Owned by
	// the run, never process-global.
	Reporter Reporter
}

// Writer performs bulk writes with retry and classification. One writer
// serves one run against one destination.
type Writer struct {
	backend Backend
	opts    WriterOptions
}

// NewWriter applies option defaults and returns a Writer.
func NewWriter(backend Backend, opts WriterOptions) *Writer {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 500 * time.Millisecond
	}
	return &Writer{backend: backend, opts: opts}
}

// WriteBatch writes one batch and returns the number of records that
// succeeded. The contract: success means 0 < succeeded <= len(recs); every
// other outcome is a returned error.
//
//   - Full success returns (len(recs), nil).
//   - Partial failure (per-item errors in the result) is never retried, since
//     identical rows would fail identically. The failure count is reported via
//     OnFailures and the Reporter, and the call still succeeds when at least
//     one record was written.
//   - A transport-level whole-batch failure is retried up to MaxRetries
//     total attempts, sleeping attempt x RetryBaseDelay between attempts.
//   - A terminal whole-batch classification (constraint violation, type
//     mismatch, unknown column, mapping mismatch) is raised immediately as a
//     validation error without retrying.
func (w *Writer) WriteBatch(ctx context.Context, recs []*record.Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	dest := w.backend.Destination()

	var lastErr error
	for attempt := 1; attempt <= w.opts.MaxRetries; attempt++ {
		res, err := w.backend.ExecuteBatch(ctx, recs)
		if err == nil {
			failed := res.FailedCount()
			if failed == 0 {
				return res.Attempted, nil
			}

			// Partial failure: never retried, since the same rows would
			// fail the same way.
			if w.opts.OnFailures != nil {
				w.opts.OnFailures(failed)
			}
			if w.opts.Reporter != nil {
				w.opts.Reporter.ReportBatchFailure(ctx, res)
			}

			succeeded := res.Attempted - failed
			if succeeded > 0 {
				return succeeded, nil
			}
			e := cerrors.Validation(
				fmt.Sprintf("all %d records in batch rejected by %q", res.Attempted, dest),
				firstTagSuggestion(res.Errors),
			)
			e.WithDetail("attempts", attempt)
			e.WithDetail("records", res.Attempted)
			e.WithDetail("destination", dest)
			return 0, e
		}

		tag := w.backend.Classify(err)
		if tag.Terminal() {
			e := cerrors.Validation(
				fmt.Sprintf("bulk write of %d records to %q failed: %s", len(recs), dest, tag),
				tag.Suggestion(),
			)
			e.WithCause(err)
			e.WithDetail("attempts", attempt)
			e.WithDetail("records", len(recs))
			e.WithDetail("destination", dest)
			e.WithDetail("tag", string(tag))
			return 0, e
		}

		lastErr = err
		log.Printf("%s: transient error writing batch to %s (attempt %d/%d): %v",
			w.backend.Name(), dest, attempt, w.opts.MaxRetries, err)

		if attempt < w.opts.MaxRetries {
			if err := sleepCtx(ctx, time.Duration(attempt)*w.opts.RetryBaseDelay); err != nil {
				return 0, err
			}
		}
	}

	e := cerrors.Connection(
		fmt.Sprintf("bulk write to %q failed after all retries (maxRetries=%d, records=%d)",
			dest, w.opts.MaxRetries, len(recs)),
		lastErr,
	)
	e.WithDetail("maxRetries", w.opts.MaxRetries)
	e.WithDetail("records", len(recs))
	e.WithDetail("destination", dest)
	return 0, e
}

func firstTagSuggestion(errs []ItemError) string {
	if len(errs) == 0 {
		return TagUnknown.Suggestion()
	}
	return errs[0].Tag.Suggestion()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
