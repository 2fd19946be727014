package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"conductor/internal/bulk"
	"conductor/internal/config"
	"conductor/internal/storage"
)

// fakeRepo satisfies storage.Repository in-memory for wiring tests.
type fakeRepo struct {
	table      string
	cols       []storage.Column
	inserted   [][]any
	insertCols []string
	ddl        []string
}

func (r *fakeRepo) Kind() string  { return "fake" }
func (r *fakeRepo) Table() string { return r.table }
func (r *fakeRepo) Close()        {}

func (r *fakeRepo) Columns(context.Context) ([]storage.Column, error) {
	return r.cols, nil
}

func (r *fakeRepo) InsertRows(_ context.Context, columns []string, rows [][]any) (int64, error) {
	r.insertCols = columns
	r.inserted = append(r.inserted, rows...)
	return int64(len(rows)), nil
}

func (r *fakeRepo) StreamRows(context.Context, []string, int, func([][]any) error) error {
	return nil
}

func (r *fakeRepo) Exec(_ context.Context, sql string) error {
	r.ddl = append(r.ddl, sql)
	return nil
}

func (r *fakeRepo) Classify(error) bulk.ErrorTag { return bulk.TagUnknown }

func uploadConfig(t *testing.T, inputPath string) config.Config {
	t.Helper()
	c := config.Config{}
	c.ApplyDefaults()
	c.Source.File.Path = inputPath
	c.Storage.Kind = "fake"
	c.Storage.DB.DSN = "fake://"
	c.Storage.DB.Table = "people"
	c.Logs.Dir = t.TempDir()
	return c
}

func TestRunUpload_WiresRepositoryAndPipeline(t *testing.T) {
	input := filepath.Join(t.TempDir(), "people.csv")
	if err := os.WriteFile(input, []byte("name,age\nalice,30\nbob,31\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	repo := &fakeRepo{
		table: "people",
		cols: []storage.Column{
			{Name: "name", Type: "text"},
			{Name: "age", Type: "bigint", Nullable: true},
		},
	}
	restore := newRepositoryFn
	newRepositoryFn = func(context.Context, storage.Config) (storage.Repository, error) {
		return repo, nil
	}
	defer func() { newRepositoryFn = restore }()

	if err := runUpload(context.Background(), uploadConfig(t, input), false); err != nil {
		t.Fatalf("runUpload: %v", err)
	}
	if len(repo.inserted) != 2 {
		t.Fatalf("inserted = %d rows, want 2", len(repo.inserted))
	}
	if repo.inserted[0][0] != "alice" {
		t.Errorf("first row = %v", repo.inserted[0])
	}
}

// A table with an auto-assigned primary key still accepts a file that names
// only the data columns: system fields are excluded from header matching and
// from the INSERT column list.
func TestRunUpload_SystemFieldsExcluded(t *testing.T) {
	input := filepath.Join(t.TempDir(), "people.csv")
	if err := os.WriteFile(input, []byte("name,age\nalice,30\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	repo := &fakeRepo{
		table: "people",
		cols: []storage.Column{
			{Name: "id", Type: "bigint"}, // serial primary key
			{Name: "name", Type: "text"},
			{Name: "age", Type: "bigint", Nullable: true},
		},
	}
	restore := newRepositoryFn
	newRepositoryFn = func(context.Context, storage.Config) (storage.Repository, error) {
		return repo, nil
	}
	defer func() { newRepositoryFn = restore }()

	cfg := uploadConfig(t, input)
	cfg.Storage.DB.SystemFields = []string{"id"}

	if err := runUpload(context.Background(), cfg, false); err != nil {
		t.Fatalf("runUpload: %v", err)
	}
	if fmt.Sprint(repo.insertCols) != "[name age]" {
		t.Errorf("insert columns = %v, want [name age]", repo.insertCols)
	}
	if len(repo.inserted) != 1 || len(repo.inserted[0]) != 2 {
		t.Errorf("inserted = %v", repo.inserted)
	}
}

func TestRunUpload_HeaderMismatchFails(t *testing.T) {
	input := filepath.Join(t.TempDir(), "people.csv")
	if err := os.WriteFile(input, []byte("name,age,shoe_size\nalice,30,9\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	repo := &fakeRepo{
		table: "people",
		cols:  []storage.Column{{Name: "name", Type: "text"}, {Name: "age", Type: "bigint"}},
	}
	restore := newRepositoryFn
	newRepositoryFn = func(context.Context, storage.Config) (storage.Repository, error) {
		return repo, nil
	}
	defer func() { newRepositoryFn = restore }()

	if err := runUpload(context.Background(), uploadConfig(t, input), false); err == nil {
		t.Fatalf("expected header mismatch error")
	}
	if len(repo.inserted) != 0 {
		t.Errorf("rows were inserted despite mismatch: %v", repo.inserted)
	}
}

func TestInputPaths(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Source.File.Path = "one.csv"
	paths, err := inputPaths(cfg)
	if err != nil || len(paths) != 1 || paths[0] != "one.csv" {
		t.Errorf("paths = %v, err = %v", paths, err)
	}

	manifest := filepath.Join(t.TempDir(), "files.txt")
	if err := os.WriteFile(manifest, []byte("# batch\na.csv\n\nb.csv\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg.Source.File.List = manifest
	paths, err = inputPaths(cfg)
	if err != nil {
		t.Fatalf("inputPaths: %v", err)
	}
	if fmt.Sprint(paths) != "[a.csv b.csv]" {
		t.Errorf("paths = %v", paths)
	}
}

func TestHeaderTarget(t *testing.T) {
	t.Parallel()

	input := filepath.Join(t.TempDir(), "people.csv")
	if err := os.WriteFile(input, []byte("name,age\nalice,30\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	target, err := headerTarget(context.Background(), input, ",", "people")
	if err != nil {
		t.Fatalf("headerTarget: %v", err)
	}
	if target.Name != "people" || len(target.Fields) != 2 {
		t.Errorf("target = %+v", target)
	}
	if target.Fields[0].Type != "text" || !target.Fields[0].Nullable {
		t.Errorf("derived field = %+v", target.Fields[0])
	}
}

func TestHeaderTarget_RejectsReservedWord(t *testing.T) {
	t.Parallel()

	input := filepath.Join(t.TempDir(), "people.csv")
	if err := os.WriteFile(input, []byte("name,select\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := headerTarget(context.Background(), input, ",", "people"); err == nil {
		t.Fatalf("expected violation error")
	}
}
