package pipeline

import (
	"context"
	"fmt"
	"testing"

	"conductor/internal/bulk"
	"conductor/internal/cerrors"
	"conductor/internal/storage"
)

// tableRepo serves a fixed row set through the Repository read path.
type tableRepo struct {
	table   string
	cols    []storage.Column
	rows    [][]any
	colsErr error

	chunkSizes []int
}

func (r *tableRepo) Kind() string  { return "fake" }
func (r *tableRepo) Table() string { return r.table }
func (r *tableRepo) Close()        {}

func (r *tableRepo) Columns(context.Context) ([]storage.Column, error) {
	return r.cols, r.colsErr
}

func (r *tableRepo) InsertRows(context.Context, []string, [][]any) (int64, error) {
	return 0, fmt.Errorf("not used")
}

func (r *tableRepo) Exec(context.Context, string) error { return nil }

func (r *tableRepo) Classify(error) bulk.ErrorTag { return bulk.TagUnknown }

func (r *tableRepo) StreamRows(_ context.Context, _ []string, chunkSize int, fn func([][]any) error) error {
	for start := 0; start < len(r.rows); start += chunkSize {
		end := start + chunkSize
		if end > len(r.rows) {
			end = len(r.rows)
		}
		chunk := r.rows[start:end]
		r.chunkSizes = append(r.chunkSizes, len(chunk))
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

func peopleRepo(n int) *tableRepo {
	r := &tableRepo{
		table: "people",
		cols: []storage.Column{
			{Name: "name", Type: "text"},
			{Name: "age", Type: "bigint", Nullable: true},
		},
	}
	for i := 0; i < n; i++ {
		r.rows = append(r.rows, []any{fmt.Sprintf("person%d", i), int64(20 + i)})
	}
	return r
}

// Read chunks and write batches are sized independently: 10 rows read in
// chunks of 4 must reach the backend as batches of 3 plus a final 1.
func TestReindex_ChunkAndBatchInterleave(t *testing.T) {
	t.Parallel()

	repo := peopleRepo(10)
	mb := &memoryBackend{}

	res, err := Reindex(context.Background(), repo, mb, ReindexOptions{
		ReadChunkSize:  4,
		WriteBatchSize: 3,
		LogDir:         t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if res.TotalProcessed != 10 || res.TotalWritten != 10 {
		t.Errorf("result = %+v", res)
	}

	wantChunks := []int{4, 4, 2}
	if fmt.Sprint(repo.chunkSizes) != fmt.Sprint(wantChunks) {
		t.Errorf("read chunks = %v, want %v", repo.chunkSizes, wantChunks)
	}
	wantBatches := []int{3, 3, 3, 1}
	if fmt.Sprint(mb.batches) != fmt.Sprint(wantBatches) {
		t.Errorf("write batches = %v, want %v", mb.batches, wantBatches)
	}

	// Records carry column values keyed by column name, in table order.
	first := mb.written[0]
	if first.Value("name") != "person0" {
		t.Errorf("first name = %v", first.Value("name"))
	}
	if first.Value("age") != int64(20) {
		t.Errorf("first age = %v", first.Value("age"))
	}
	if first.Meta.SourceID != "people" {
		t.Errorf("source = %q", first.Meta.SourceID)
	}
}

func TestReindex_ExactBatchMultiple(t *testing.T) {
	t.Parallel()

	repo := peopleRepo(6)
	mb := &memoryBackend{}

	res, err := Reindex(context.Background(), repo, mb, ReindexOptions{
		ReadChunkSize:  3,
		WriteBatchSize: 3,
		LogDir:         t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if res.TotalWritten != 6 {
		t.Errorf("written = %d", res.TotalWritten)
	}
	if len(mb.batches) != 2 {
		t.Errorf("batches = %v, want two full batches", mb.batches)
	}
}

func TestReindex_EmptyTable(t *testing.T) {
	t.Parallel()

	repo := peopleRepo(0)
	mb := &memoryBackend{}

	res, err := Reindex(context.Background(), repo, mb, ReindexOptions{LogDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if res.TotalProcessed != 0 || res.TotalWritten != 0 {
		t.Errorf("result = %+v", res)
	}
	if mb.calls != 0 {
		t.Errorf("backend called %d times for empty table", mb.calls)
	}
}

func TestReindex_ColumnLookupFailure(t *testing.T) {
	t.Parallel()

	repo := peopleRepo(3)
	repo.colsErr = cerrors.Connection("catalog query failed", nil)

	_, err := Reindex(context.Background(), repo, &memoryBackend{}, ReindexOptions{LogDir: t.TempDir()})
	if err == nil {
		t.Fatalf("expected error")
	}
	if cerrors.KindOf(err) != cerrors.KindConnection {
		t.Errorf("kind = %s", cerrors.KindOf(err))
	}
}

// Partial bulk failures during reindex are soft: the run continues and the
// failures are counted, mirroring the file-upload path.
func TestReindex_PartialFailureContinues(t *testing.T) {
	t.Parallel()

	repo := peopleRepo(5)
	mb := &memoryBackend{failFirst: []int{0}, failTag: bulk.TagTypeMismatch}

	res, err := Reindex(context.Background(), repo, mb, ReindexOptions{
		ReadChunkSize:  5,
		WriteBatchSize: 2,
		LogDir:         t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if res.TotalProcessed != 5 {
		t.Errorf("processed = %d", res.TotalProcessed)
	}
	if res.TotalWritten != 4 {
		t.Errorf("written = %d, want 4", res.TotalWritten)
	}
}
