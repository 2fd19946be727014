package pipeline

import (
	"context"
	"log"
	"time"

	"conductor/internal/analyzer"
	"conductor/internal/bulk"
	"conductor/internal/metrics"
	"conductor/internal/record"
	"conductor/internal/storage"
)

// ReindexOptions configure a table-to-index run. Read-chunk size (rows per
// cursor round trip) and write-batch size (records per bulk write) are
// independent: the driver buffers read rows and slices off write batches
// as the buffer fills.
type ReindexOptions struct {
	ReadChunkSize  int
	WriteBatchSize int
	MaxRetries     int
	RetryBaseDelay time.Duration
	LogDir         string
}

// Reindex streams every row of the repository's table into the search
// backend. The cursor pages the read side while the bulk writer drains the
// buffer; neither side ever holds more than one read chunk plus one write
// batch in memory.
func Reindex(ctx context.Context, repo storage.Repository, backend bulk.Backend, opts ReindexOptions) (Result, error) {
	if opts.ReadChunkSize <= 0 {
		opts.ReadChunkSize = 1000
	}
	if opts.WriteBatchSize <= 0 {
		opts.WriteBatchSize = 500
	}

	cols, err := repo.Columns(ctx)
	if err != nil {
		return Result{}, err
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	rep := analyzer.New(backend.Name(), opts.LogDir)
	var stats Stats
	writer := bulk.NewWriter(backend, bulk.WriterOptions{
		MaxRetries:     opts.MaxRetries,
		RetryBaseDelay: opts.RetryBaseDelay,
		OnFailures:     func(n int) { stats.FailedWrites += int64(n) },
		Reporter:       rep,
	})

	started := time.Now()
	builder := record.NewBuilder(names, repo.Table(), started)
	buffer := make([]*record.Record, 0, opts.WriteBatchSize)

	flush := func(batch []*record.Record) error {
		n, err := writer.WriteBatch(ctx, batch)
		if err != nil {
			return err
		}
		stats.TotalWritten += int64(n)
		metrics.RecordBatches(repo.Table(), backend.Name(), 1)
		return nil
	}

	err = repo.StreamRows(ctx, names, opts.ReadChunkSize, func(rows [][]any) error {
		for _, row := range rows {
			buffer = append(buffer, builder.BuildRow(row))
			stats.TotalProcessed++
		}
		// Drain full write batches; a partial batch waits for more rows.
		for len(buffer) >= opts.WriteBatchSize {
			batch := buffer[:opts.WriteBatchSize]
			buffer = append([]*record.Record{}, buffer[opts.WriteBatchSize:]...)
			if err := flush(batch); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{TotalProcessed: stats.TotalProcessed, TotalWritten: stats.TotalWritten}, err
	}

	if len(buffer) > 0 {
		if err := flush(buffer); err != nil {
			return Result{TotalProcessed: stats.TotalProcessed, TotalWritten: stats.TotalWritten}, err
		}
	}

	log.Printf("reindex: %s -> %s complete: read=%d written=%d failed=%d elapsed=%s",
		repo.Table(), backend.Destination(),
		stats.TotalProcessed, stats.TotalWritten, stats.FailedWrites,
		time.Since(started).Round(time.Millisecond),
	)
	return Result{TotalProcessed: stats.TotalProcessed, TotalWritten: stats.TotalWritten}, nil
}
