// Package postgres implements the storage.Repository contract on pgx v5.
// Batches are written with a single parameterized multi-row INSERT inside a
// transaction; reads page through a server-side cursor so a reindex never
// materializes the whole table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"conductor/internal/bulk"
	"conductor/internal/cerrors"
	"conductor/internal/storage"
)

const kind = "postgres"

func init() {
	storage.Register(kind, func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return NewRepository(ctx, cfg)
	})
	storage.RegisterDDL(kind, ensureTable)
}

// Repository is a Postgres-backed storage.Repository bound to one table.
type Repository struct {
	pool  *pgxpool.Pool
	table string
}

// NewRepository opens a connection pool for cfg.DSN.
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, cerrors.Connection("could not open postgres pool", err)
	}
	return &Repository{pool: pool, table: cfg.Table}, nil
}

func (r *Repository) Kind() string  { return kind }
func (r *Repository) Table() string { return r.table }
func (r *Repository) Close()        { r.pool.Close() }

// Columns queries information_schema for the bound table's columns.
func (r *Repository) Columns(ctx context.Context) ([]storage.Column, error) {
	schemaName, tableName := splitTable(r.table)
	rows, err := r.pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`,
		schemaName, tableName)
	if err != nil {
		return nil, cerrors.Connection(fmt.Sprintf("could not read catalog for table %q", r.table), err)
	}
	defer rows.Close()

	var cols []storage.Column
	for rows.Next() {
		var c storage.Column
		var nullable string
		if err := rows.Scan(&c.Name, &c.Type, &nullable); err != nil {
			return nil, err
		}
		c.Nullable = nullable == "YES"
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, cerrors.Validation(
			fmt.Sprintf("table %q does not exist or has no columns", r.table),
			"create the table first or enable table auto-creation",
		)
	}
	return cols, nil
}

// InsertRows writes the batch with one multi-row INSERT in a transaction.
// A failed attempt rolls back, leaving nothing behind for the retry.
func (r *Repository) InsertRows(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	sql, args := buildInsert(r.table, columns, rows)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// StreamRows pages through the table with DECLARE/FETCH. The cursor and the
// transaction are released before returning, success or failure.
func (r *Repository) StreamRows(ctx context.Context, columns []string, chunkSize int, fn func(rows [][]any) error) error {
	if chunkSize <= 0 {
		chunkSize = 1000
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	declare := fmt.Sprintf("DECLARE conductor_read CURSOR FOR SELECT %s FROM %s",
		strings.Join(mapIdent(columns), ","), pgFQN(r.table))
	if _, err := tx.Exec(ctx, declare); err != nil {
		return err
	}
	defer tx.Exec(ctx, "CLOSE conductor_read")

	fetch := fmt.Sprintf("FETCH %d FROM conductor_read", chunkSize)
	for {
		chunk, err := fetchChunk(ctx, tx, fetch, len(columns))
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			return nil
		}
		if err := fn(chunk); err != nil {
			return err
		}
		if len(chunk) < chunkSize {
			return nil
		}
	}
}

func fetchChunk(ctx context.Context, tx pgx.Tx, fetch string, width int) ([][]any, error) {
	rows, err := tx.Query(ctx, fetch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make([]any, width)
		copy(row, vals)
		out = append(out, row)
	}
	return out, rows.Err()
}

// Exec runs one statement, used by the DDL bootstrapper.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	_, err := r.pool.Exec(ctx, sql)
	return err
}

// Classify maps a pgx error onto the closed tag set by SQLSTATE class.
func (r *Repository) Classify(err error) bulk.ErrorTag {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return bulk.TagDuplicateKey
		case pgErr.Code == "23502":
			return bulk.TagNotNull
		case pgErr.Code == "23503":
			return bulk.TagForeignKey
		case pgErr.Code == "42703":
			return bulk.TagUnknownColumn
		case strings.HasPrefix(pgErr.Code, "22"):
			// Class 22: data exception (invalid text representation, range).
			return bulk.TagTypeMismatch
		case strings.HasPrefix(pgErr.Code, "08"):
			return bulk.TagTransport
		}
		return bulk.TagUnknown
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return bulk.TagTransport
	}
	if pgconn.SafeToRetry(err) {
		return bulk.TagTransport
	}
	return bulk.TagUnknown
}

// buildInsert renders one parameterized multi-row INSERT for rows aligned
// to columns.
func buildInsert(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ",
		pgFQN(table), strings.Join(mapIdent(columns), ","))

	args := make([]any, 0, len(rows)*len(columns))
	n := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(")
		for j, v := range row {
			if j > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "$%d", n)
			n++
			args = append(args, v)
		}
		b.WriteString(")")
	}
	return b.String(), args
}

// pgIdent quotes a single identifier segment.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name like "public.people" to
// "public"."people".
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}

func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}

// splitTable resolves "schema.table" with a "public" default schema.
func splitTable(name string) (string, string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "public", name
}
