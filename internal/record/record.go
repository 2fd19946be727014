// Package record builds structured records from parsed CSV rows. A record
// pairs the header→value mapping for one data row with a fixed-shape
// submission-metadata block (source identifier, run timestamp, sequence
// number) that travels with the row into the destination.
package record

import (
	"os"
	"time"

	"github.com/google/uuid"
)

// Metadata is the submission metadata attached to every record. All fields
// are derived deterministically from the run context except RecordID, which
// is a fresh identifier for destinations that require one.
type Metadata struct {
	RecordID    string    `json:"record_id"`
	SourceID    string    `json:"source_id"`
	ProcessedAt time.Time `json:"processed_at"`
	SequenceNo  int64     `json:"sequence_no"`
	Host        string    `json:"host,omitempty"`
	User        string    `json:"user,omitempty"`
}

// Record is one data row keyed by header name. Values are raw strings from
// the file; a missing trailing field is a nil value. Records are immutable
// once built; ownership transfers into a batch.
type Record struct {
	Fields map[string]any
	Meta   Metadata
}

// Value returns the raw value for a header, or nil when absent.
func (r *Record) Value(header string) any { return r.Fields[header] }

// Builder zips data rows against a fixed header set and stamps each record
// with submission metadata. One builder serves one file run; the sequence
// number increases monotonically across Build calls.
type Builder struct {
	headers   []string
	sourceID  string
	startedAt time.Time
	host      string
	user      string
	seq       int64

	// newID is a seam for tests that need deterministic record IDs.
	newID func() string
}

// NewBuilder returns a builder for one run. sourceID names the originating
// file or table; startedAt is the run's processing-start timestamp.
func NewBuilder(headers []string, sourceID string, startedAt time.Time) *Builder {
	host, _ := os.Hostname()
	return &Builder{
		headers:   headers,
		sourceID:  sourceID,
		startedAt: startedAt,
		host:      host,
		user:      os.Getenv("USER"),
		newID:     func() string { return uuid.NewString() },
	}
}

// Build maps one parsed data row into a Record by zipping headers to field
// values positionally. Fields beyond the header count are dropped; missing
// trailing fields become nil.
func (b *Builder) Build(fields []string) *Record {
	values := make([]any, len(fields))
	for i, f := range fields {
		values[i] = f
	}
	return b.BuildRow(values)
}

// BuildRow is Build for already-typed values, used when records originate
// from a relational read instead of a parsed line.
func (b *Builder) BuildRow(values []any) *Record {
	b.seq++
	m := make(map[string]any, len(b.headers))
	for i, h := range b.headers {
		if i < len(values) {
			m[h] = values[i]
		} else {
			m[h] = nil
		}
	}
	return &Record{
		Fields: m,
		Meta: Metadata{
			RecordID:    b.newID(),
			SourceID:    b.sourceID,
			ProcessedAt: b.startedAt,
			SequenceNo:  b.seq,
			Host:        b.host,
			User:        b.user,
		},
	}
}

// Built reports how many records this builder has produced.
func (b *Builder) Built() int64 { return b.seq }
