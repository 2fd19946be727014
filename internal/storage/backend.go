package storage

import (
	"context"

	"conductor/internal/bulk"
	"conductor/internal/record"
)

// TableBackend adapts a Repository to the bulk.Backend contract: records
// are flattened to rows in the configured column order and written with one
// transactional multi-row INSERT per batch. Relational writes have no
// per-item error detail, so a failed batch surfaces as a whole-batch error
// classified by the repository.
type TableBackend struct {
	repo    Repository
	columns []string
}

// NewTableBackend binds a repository and the ordered columns to insert.
func NewTableBackend(repo Repository, columns []string) *TableBackend {
	return &TableBackend{repo: repo, columns: columns}
}

func (b *TableBackend) Name() string        { return b.repo.Kind() }
func (b *TableBackend) Destination() string { return b.repo.Table() }

// ExecuteBatch implements bulk.Backend.
func (b *TableBackend) ExecuteBatch(ctx context.Context, recs []*record.Record) (bulk.Result, error) {
	rows := make([][]any, len(recs))
	for i, rec := range recs {
		row := make([]any, len(b.columns))
		for j, col := range b.columns {
			row[j] = rec.Value(col)
		}
		rows[i] = row
	}
	if _, err := b.repo.InsertRows(ctx, b.columns, rows); err != nil {
		return bulk.Result{}, err
	}
	return bulk.Result{Attempted: len(recs), Succeeded: len(recs)}, nil
}

// Classify implements bulk.Backend.
func (b *TableBackend) Classify(err error) bulk.ErrorTag { return b.repo.Classify(err) }
