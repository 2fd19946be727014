// Package storage contains the backend-agnostic relational contracts: the
// Repository interface, the factory that constructs a backend by kind, and
// the DDL bootstrap registry. Concrete backends (postgres, sqlite) register
// themselves at init time; importing storage/all enables all of them.
package storage

import (
	"context"
	"fmt"
	"sync"

	"conductor/internal/bulk"
	"conductor/internal/cerrors"
)

// Column is one column of a relational table as reported by the backend's
// catalog.
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// Repository is a relational backend bound to one table.
type Repository interface {
	// Kind identifies the backend ("postgres", "sqlite").
	Kind() string
	// Table returns the bound table name.
	Table() string
	// Columns queries the backend catalog for the table's columns.
	Columns(ctx context.Context) ([]Column, error)
	// InsertRows performs one parameterized multi-row INSERT inside a
	// transaction. Rows are aligned to the columns order. The whole batch
	// commits or rolls back together.
	InsertRows(ctx context.Context, columns []string, rows [][]any) (int64, error)
	// StreamRows pages through the table's rows with a server-side cursor
	// (or equivalent), invoking fn once per chunk of at most chunkSize rows.
	// The cursor is released before StreamRows returns, success or not.
	StreamRows(ctx context.Context, columns []string, chunkSize int, fn func(rows [][]any) error) error
	// Exec runs one statement, used by DDL bootstrap.
	Exec(ctx context.Context, sql string) error
	// Classify maps a backend error onto the closed bulk tag set.
	Classify(err error) bulk.ErrorTag
	// Close releases the pool or handle.
	Close()
}

// Config selects and configures a backend.
type Config struct {
	Kind  string
	DSN   string
	Table string
}

// Factory opens a Repository for one backend kind.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs (or replaces) the factory for a backend kind. Called
// from backend packages' init functions.
func Register(kind string, fn Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = fn
}

// New opens a Repository for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	fn, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, cerrors.Validation(
			fmt.Sprintf("no storage backend registered for kind %q", cfg.Kind),
			"use one of the built-in kinds (postgres, sqlite) and import storage/all",
		)
	}
	return fn(ctx, cfg)
}

// Kinds returns the registered backend kinds.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}
