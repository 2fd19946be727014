package postgres

import (
	"context"
	"fmt"
	"strings"

	"conductor/internal/schema"
	"conductor/internal/storage"
)

// ensureTable is the registered DDL bootstrapper: it renders and applies a
// CREATE TABLE IF NOT EXISTS derived from the declared target fields.
func ensureTable(ctx context.Context, repo storage.Repository, target schema.Target) error {
	return repo.Exec(ctx, createTableSQL(repo.Table(), target.Fields))
}

func createTableSQL(table string, fields []schema.Field) string {
	defs := make([]string, 0, len(fields))
	for _, f := range fields {
		def := fmt.Sprintf("%s %s", pgIdent(f.Name), mapType(f.Type))
		if !f.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		pgFQN(table), strings.Join(defs, ", "))
}

// mapType normalizes a loosely-specified logical type into a Postgres type.
func mapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "int", "integer", "bigint", "long":
		return "BIGINT"
	case "float", "double", "numeric":
		return "DOUBLE PRECISION"
	case "bool", "boolean":
		return "BOOLEAN"
	case "date":
		return "DATE"
	case "timestamp", "timestamptz":
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}
