// Package bulk implements batched bulk writes with retry, backoff, and
// error classification. One generic Writer serves every destination; the
// backend-specific parts (executing a multi-record write and classifying
// backend errors into a closed tag set) live behind the Backend interface,
// implemented by the relational repositories and the search client.
package bulk

import "context"

// ErrorTag classifies a backend error. The set is closed so retry decisions
// and suggestions never depend on free-text matching outside the backend
// packages.
type ErrorTag string

const (
	// TagDuplicateKey is a unique/primary key violation.
	TagDuplicateKey ErrorTag = "duplicate_key"
	// TagNotNull is a NOT NULL constraint violation.
	TagNotNull ErrorTag = "not_null"
	// TagForeignKey is a foreign key violation.
	TagForeignKey ErrorTag = "foreign_key"
	// TagTypeMismatch is a value that cannot be coerced to the declared type.
	TagTypeMismatch ErrorTag = "type_mismatch"
	// TagUnknownColumn is a reference to a column or field the destination
	// does not declare.
	TagUnknownColumn ErrorTag = "unknown_column"
	// TagMappingMismatch is a document rejected by the search index mapping.
	TagMappingMismatch ErrorTag = "mapping_mismatch"
	// TagTransport is a transient failure: connection refused, timeout, or a
	// full-batch 5xx. Transport failures are retried.
	TagTransport ErrorTag = "transport"
	// TagUnknown is anything uncategorized. Treated as terminal.
	TagUnknown ErrorTag = "unknown"
)

// Terminal reports whether the tag represents a data problem that will fail
// identically on retry.
func (t ErrorTag) Terminal() bool { return t != TagTransport }

// Suggestion returns the targeted remediation hint for a tag.
func (t ErrorTag) Suggestion() string {
	switch t {
	case TagDuplicateKey:
		return "remove duplicate records from the file or clear existing rows"
	case TagNotNull:
		return "check that all NOT NULL columns have values"
	case TagForeignKey:
		return "ensure referenced rows exist before loading"
	case TagTypeMismatch:
		return "check that values match the declared column types"
	case TagUnknownColumn:
		return "reconcile file headers with the destination schema"
	case TagMappingMismatch:
		return "update the index mapping or fix the offending fields"
	case TagTransport:
		return "check that the destination service is running"
	default:
		return "inspect the error detail and the destination logs"
	}
}

// ItemError is the per-item failure detail of a partially failed bulk write.
type ItemError struct {
	// Index is the item's position within the attempted batch.
	Index int
	// Tag classifies the failure.
	Tag ErrorTag
	// Field names the offending field when derivable from the backend error.
	Field string
	// Reason is the backend's human-readable reason text.
	Reason string
	// Value is the offending raw value when derivable.
	Value string
	// RecordID identifies the failed record.
	RecordID string
	// Raw is the backend's raw error payload, kept for the error log file.
	Raw string
}

// Result is the outcome of one bulk-write network call.
type Result struct {
	Attempted int
	Succeeded int
	Errors    []ItemError
}

// FailedCount returns the number of per-item failures.
func (r Result) FailedCount() int { return len(r.Errors) }

// Reporter receives the result of a partially failed bulk write for error
// analysis. It is owned by the caller of the bulk writer so that concurrent
// runs never share display state.
type Reporter interface {
	ReportBatchFailure(ctx context.Context, res Result)
}
