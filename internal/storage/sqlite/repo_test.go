package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"conductor/internal/bulk"
	"conductor/internal/schema"
	"conductor/internal/storage"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	r, err := NewRepository(context.Background(), storage.Config{
		Kind:  kind,
		DSN:   filepath.Join(t.TempDir(), "test.db"),
		Table: "people",
	})
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func seedTable(t *testing.T, r *Repository) {
	t.Helper()
	err := r.Exec(context.Background(),
		`CREATE TABLE people (id INTEGER NOT NULL UNIQUE, name TEXT NOT NULL, age INTEGER)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
}

func TestInsertRowsAndColumns(t *testing.T) {
	t.Parallel()

	r := testRepo(t)
	seedTable(t, r)
	ctx := context.Background()

	n, err := r.InsertRows(ctx, []string{"id", "name", "age"}, [][]any{
		{1, "alice", 30},
		{2, "bob", nil},
	})
	if err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}

	cols, err := r.Columns(ctx)
	if err != nil {
		t.Fatalf("Columns: %v", err)
	}
	want := []storage.Column{
		{Name: "id", Type: "INTEGER", Nullable: false},
		{Name: "name", Type: "TEXT", Nullable: false},
		{Name: "age", Type: "INTEGER", Nullable: true},
	}
	if len(cols) != len(want) {
		t.Fatalf("columns = %v", cols)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Errorf("column %d = %+v, want %+v", i, cols[i], want[i])
		}
	}
}

// A duplicate key aborts the whole batch and rolls back: nothing from the
// failed batch remains.
func TestInsertRows_TransactionalRollback(t *testing.T) {
	t.Parallel()

	r := testRepo(t)
	seedTable(t, r)
	ctx := context.Background()

	if _, err := r.InsertRows(ctx, []string{"id", "name"}, [][]any{{1, "alice"}}); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	_, err := r.InsertRows(ctx, []string{"id", "name"}, [][]any{
		{2, "bob"},
		{1, "duplicate"},
	})
	if err == nil {
		t.Fatalf("expected unique constraint error")
	}
	if got := r.Classify(err); got != bulk.TagDuplicateKey {
		t.Errorf("Classify = %s, want duplicate_key", got)
	}

	var rows int
	err = r.StreamRows(ctx, []string{"id"}, 10, func(chunk [][]any) error {
		rows += len(chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamRows: %v", err)
	}
	if rows != 1 {
		t.Errorf("rows after rollback = %d, want 1", rows)
	}
}

func TestStreamRows_Chunking(t *testing.T) {
	t.Parallel()

	r := testRepo(t)
	seedTable(t, r)
	ctx := context.Background()

	batch := make([][]any, 7)
	for i := range batch {
		batch[i] = []any{i + 1, "p", nil}
	}
	if _, err := r.InsertRows(ctx, []string{"id", "name", "age"}, batch); err != nil {
		t.Fatalf("InsertRows: %v", err)
	}

	var sizes []int
	err := r.StreamRows(ctx, []string{"id", "name"}, 3, func(chunk [][]any) error {
		sizes = append(sizes, len(chunk))
		return nil
	})
	if err != nil {
		t.Fatalf("StreamRows: %v", err)
	}
	want := []int{3, 3, 1}
	if len(sizes) != len(want) {
		t.Fatalf("chunks = %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("chunk %d = %d, want %d", i, sizes[i], want[i])
		}
	}
}

func TestEnsureTable(t *testing.T) {
	t.Parallel()

	r := testRepo(t)
	ctx := context.Background()
	target := schema.Target{
		Name: "people",
		Fields: []schema.Field{
			{Name: "id", Type: "integer"},
			{Name: "name", Type: "text", Nullable: true},
			{Name: "score", Type: "float", Nullable: true},
		},
	}
	if err := storage.EnsureTable(ctx, r, target); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}

	cols, err := r.Columns(ctx)
	if err != nil {
		t.Fatalf("Columns: %v", err)
	}
	if len(cols) != 3 || cols[2].Type != "REAL" {
		t.Errorf("columns = %v", cols)
	}

	// Idempotent.
	if err := storage.EnsureTable(ctx, r, target); err != nil {
		t.Errorf("second EnsureTable: %v", err)
	}
}

func TestClassify_Messages(t *testing.T) {
	t.Parallel()

	r := &Repository{}
	tests := []struct {
		msg  string
		want bulk.ErrorTag
	}{
		{"constraint failed: UNIQUE constraint failed: people.id", bulk.TagDuplicateKey},
		{"constraint failed: NOT NULL constraint failed: people.name", bulk.TagNotNull},
		{"constraint failed: FOREIGN KEY constraint failed", bulk.TagForeignKey},
		{"SQL logic error: table people has no column named nope", bulk.TagUnknownColumn},
		{"SQL logic error: no such column: nope", bulk.TagUnknownColumn},
		{"datatype mismatch", bulk.TagTypeMismatch},
		{"database is locked", bulk.TagTransport},
		{"something else", bulk.TagUnknown},
	}
	for _, tc := range tests {
		if got := r.Classify(errors.New(tc.msg)); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.msg, got, tc.want)
		}
	}
}

func TestColumns_MissingTable(t *testing.T) {
	t.Parallel()

	r := testRepo(t)
	_, err := r.Columns(context.Background())
	if err == nil {
		t.Fatalf("expected error for missing table")
	}
}
