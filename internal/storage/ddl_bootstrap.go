package storage

import (
	"context"
	"fmt"
	"sync"

	"conductor/internal/schema"
)

// DDLBootstrapper creates the destination table for a backend kind when it
// does not exist, deriving column types from the declared target fields.
// Backends register their implementation at init time.
type DDLBootstrapper func(ctx context.Context, repo Repository, target schema.Target) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBootstrapper{}
)

// RegisterDDL registers (or replaces) the DDLBootstrapper for a backend
// kind.
func RegisterDDL(kind string, fn DDLBootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// EnsureTable invokes the registered bootstrapper for the repository's kind.
// Callers stay backend-agnostic; they pass the target and the already-open
// Repository.
func EnsureTable(ctx context.Context, repo Repository, target schema.Target) error {
	ddlMu.RLock()
	fn, ok := ddlFns[repo.Kind()]
	ddlMu.RUnlock()
	if !ok {
		return fmt.Errorf("no DDL bootstrapper registered for storage kind %q", repo.Kind())
	}
	return fn(ctx, repo, target)
}
