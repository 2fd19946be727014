package bulk

import (
	"context"
	"fmt"
	"log"

	"conductor/internal/cerrors"
	"conductor/internal/record"
)

// sanityBatchSize is the threshold above which a batch size is permitted but
// likely hurts throughput and memory.
const sanityBatchSize = 10000

// FlushFunc receives a full (or final partial) batch. The slice is owned by
// the callee; the batcher never reuses it.
type FlushFunc func(ctx context.Context, recs []*record.Record) error

// Batcher accumulates records until the configured batch size is reached,
// then hands the batch to its flush function and starts a new one. Memory
// stays O(batch size) because the driver blocks on Add while a flush runs.
type Batcher struct {
	size    int
	flush   FlushFunc
	recs    []*record.Record
	flushes int
}

// NewBatcher validates the batch size and returns a Batcher. The size must
// be a positive integer; values above the sanity threshold are permitted
// with a performance warning.
func NewBatcher(size int, flush FlushFunc) (*Batcher, error) {
	if size <= 0 {
		return nil, cerrors.Validation(
			fmt.Sprintf("batch size must be a positive integer, got %d", size),
			"pass a batch size between 1 and 10000",
		)
	}
	if size > sanityBatchSize {
		log.Printf("batcher: batch size %d exceeds %d; large batches increase memory use and retry cost", size, sanityBatchSize)
	}
	return &Batcher{size: size, flush: flush, recs: make([]*record.Record, 0, size)}, nil
}

// Add appends one record, flushing synchronously when the batch fills.
func (b *Batcher) Add(ctx context.Context, rec *record.Record) error {
	b.recs = append(b.recs, rec)
	if len(b.recs) >= b.size {
		return b.doFlush(ctx)
	}
	return nil
}

// FlushRemaining flushes the final, possibly undersized batch at
// end-of-stream. It is a no-op when nothing is pending.
func (b *Batcher) FlushRemaining(ctx context.Context) error {
	if len(b.recs) == 0 {
		return nil
	}
	return b.doFlush(ctx)
}

func (b *Batcher) doFlush(ctx context.Context) error {
	batch := b.recs
	b.recs = make([]*record.Record, 0, b.size)
	b.flushes++
	return b.flush(ctx, batch)
}

// Pending returns the number of records accumulated since the last flush.
func (b *Batcher) Pending() int { return len(b.recs) }

// Flushes returns how many batches have been handed to the flush function.
func (b *Batcher) Flushes() int { return b.flushes }
