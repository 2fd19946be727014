// Package sqlite implements the storage.Repository contract on the pure-Go
// modernc.org/sqlite driver. It serves local runs and tests; the write path
// mirrors the postgres backend (one transactional multi-row INSERT per
// batch) and the read path streams the table in fixed-size chunks.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"conductor/internal/bulk"
	"conductor/internal/cerrors"
	"conductor/internal/schema"
	"conductor/internal/storage"
)

const kind = "sqlite"

func init() {
	storage.Register(kind, func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return NewRepository(ctx, cfg)
	})
	storage.RegisterDDL(kind, ensureTable)
}

// Repository is a SQLite-backed storage.Repository bound to one table.
type Repository struct {
	db    *sql.DB
	table string
}

// NewRepository opens (or creates) the database file named by cfg.DSN.
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, cerrors.Connection("could not open sqlite database", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, cerrors.Connection(fmt.Sprintf("could not reach sqlite database %q", cfg.DSN), err)
	}
	return &Repository{db: db, table: cfg.Table}, nil
}

func (r *Repository) Kind() string  { return kind }
func (r *Repository) Table() string { return r.table }
func (r *Repository) Close()        { r.db.Close() }

// Columns reads the table shape from PRAGMA table_info.
func (r *Repository) Columns(ctx context.Context) ([]storage.Column, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(r.table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []storage.Column
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, storage.Column{Name: name, Type: typ, Nullable: notNull == 0})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, cerrors.Validation(
			fmt.Sprintf("table %q does not exist", r.table),
			"create the table first or enable table auto-creation",
		)
	}
	return cols, nil
}

// InsertRows writes the batch with one multi-row INSERT in a transaction.
func (r *Repository) InsertRows(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"
	values := make([]string, len(rows))
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		values[i] = placeholders
		args = append(args, row...)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		quoteIdent(r.table), strings.Join(quoteAll(columns), ","), strings.Join(values, ","))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// StreamRows iterates the table and hands rows to fn in chunks of at most
// chunkSize. database/sql already streams the result set, so no explicit
// cursor is needed.
func (r *Repository) StreamRows(ctx context.Context, columns []string, chunkSize int, fn func(rows [][]any) error) error {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	query := fmt.Sprintf("SELECT %s FROM %s",
		strings.Join(quoteAll(columns), ","), quoteIdent(r.table))
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	chunk := make([][]any, 0, chunkSize)
	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		chunk = append(chunk, vals)
		if len(chunk) >= chunkSize {
			if err := fn(chunk); err != nil {
				return err
			}
			chunk = make([][]any, 0, chunkSize)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(chunk) > 0 {
		return fn(chunk)
	}
	return nil
}

// Exec runs one statement, used by the DDL bootstrapper.
func (r *Repository) Exec(ctx context.Context, stmt string) error {
	_, err := r.db.ExecContext(ctx, stmt)
	return err
}

// Classify maps a sqlite error onto the closed tag set. The driver exposes
// constraint failures only through message text.
func (r *Repository) Classify(err error) bulk.ErrorTag {
	if err == nil {
		return bulk.TagUnknown
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return bulk.TagDuplicateKey
	case strings.Contains(msg, "NOT NULL constraint failed"):
		return bulk.TagNotNull
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return bulk.TagForeignKey
	case strings.Contains(msg, "no such column"),
		strings.Contains(msg, "has no column named"):
		return bulk.TagUnknownColumn
	case strings.Contains(msg, "datatype mismatch"):
		return bulk.TagTypeMismatch
	case strings.Contains(msg, "database is locked"),
		errors.Is(err, context.DeadlineExceeded):
		return bulk.TagTransport
	}
	return bulk.TagUnknown
}

func ensureTable(ctx context.Context, repo storage.Repository, target schema.Target) error {
	defs := make([]string, 0, len(target.Fields))
	for _, f := range target.Fields {
		def := fmt.Sprintf("%s %s", quoteIdent(f.Name), mapType(f.Type))
		if !f.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		quoteIdent(repo.Table()), strings.Join(defs, ", "))
	return repo.Exec(ctx, stmt)
}

func mapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "int", "integer", "bigint", "long", "bool", "boolean":
		return "INTEGER"
	case "float", "double", "numeric":
		return "REAL"
	default:
		return "TEXT"
	}
}

func quoteIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func quoteAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = quoteIdent(c)
	}
	return out
}
