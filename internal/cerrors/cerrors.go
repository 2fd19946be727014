// Package cerrors defines the classified error type used across the
// ingestion pipeline. Every fatal error surfaced to the CLI carries a Kind
// (file access, parsing, validation, connection, unknown), an ordered list of
// human-actionable suggestions, and a structured Details map so callers can
// render precise diagnostics (missing headers, offending fields, retry
// counts) without parsing message text.
//
// The package plays nicely with the standard errors package: Error wraps an
// underlying cause and supports errors.As / errors.Is / errors.Unwrap.
package cerrors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for the caller. The set is closed; anything not
// covered maps to KindUnknown.
type Kind string

const (
	// KindFileAccess covers missing, unreadable, empty, or wrong-type paths.
	KindFileAccess Kind = "file_access"
	// KindParsing covers malformed CSV syntax, wrong delimiters, and
	// inconsistent column counts.
	KindParsing Kind = "parsing"
	// KindValidation covers header-naming violations, header/schema
	// mismatches, constraint violations, and type mismatches.
	KindValidation Kind = "validation"
	// KindConnection covers transient backend unavailability, timeouts, and
	// exhausted retries.
	KindConnection Kind = "connection"
	// KindUnknown covers anything uncategorized.
	KindUnknown Kind = "unknown"
)

// Error is the classified error carried through the pipeline.
type Error struct {
	Kind        Kind
	Msg         string
	Suggestions []string
	Details     map[string]any
	Err         error // wrapped cause, may be nil
}

// Error implements the error interface. The rendered message keeps the kind
// and the first suggestion visible so plain %v logging stays useful.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Kind, e.Msg)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the wrapped cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Err }

// Detail returns a detail value by key, or nil when absent.
func (e *Error) Detail(key string) any {
	if e.Details == nil {
		return nil
	}
	return e.Details[key]
}

// WithDetail sets a detail key and returns the error for chaining.
func (e *Error) WithDetail(key string, v any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = v
	return e
}

// WithCause attaches an underlying cause and returns the error for chaining.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// New constructs a classified error.
func New(kind Kind, msg string, suggestions ...string) *Error {
	return &Error{Kind: kind, Msg: msg, Suggestions: suggestions}
}

// Newf constructs a classified error with a formatted message.
func Newf(kind Kind, format string, a ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, a...)}
}

// FileAccess builds a file-access error with the standard remediation list.
func FileAccess(msg string, cause error) *Error {
	return &Error{
		Kind: KindFileAccess,
		Msg:  msg,
		Err:  cause,
		Suggestions: []string{
			"check that the file path is correct",
			"check file permissions",
		},
	}
}

// Parsing builds a parsing error. Callers attach the offending line preview
// and delimiter via WithDetail.
func Parsing(msg string, cause error) *Error {
	return &Error{
		Kind: KindParsing,
		Msg:  msg,
		Err:  cause,
		Suggestions: []string{
			"verify the delimiter matches the file contents",
			"check the file for malformed quoting",
		},
	}
}

// Validation builds a validation error.
func Validation(msg string, suggestions ...string) *Error {
	return &Error{Kind: KindValidation, Msg: msg, Suggestions: suggestions}
}

// Connection builds a connection error.
func Connection(msg string, cause error) *Error {
	return &Error{
		Kind: KindConnection,
		Msg:  msg,
		Err:  cause,
		Suggestions: []string{
			"check that the service is running and reachable",
			"reduce the batch size and retry",
		},
	}
}

// KindOf extracts the Kind from any error. Non-classified errors report
// KindUnknown; nil reports an empty Kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// As is a convenience around errors.As for *Error.
func As(err error) (*Error, bool) {
	var ce *Error
	ok := errors.As(err, &ce)
	return ce, ok
}

// Format renders a multi-line, user-facing report: message, suggestions, and
// (when detail is true) the wrapped cause. The CLI layer owns exit codes;
// this function only formats.
func Format(err error, detail bool) string {
	ce, ok := As(err)
	if !ok {
		return err.Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "error (%s): %s\n", ce.Kind, ce.Msg)
	for i, s := range ce.Suggestions {
		fmt.Fprintf(&b, "  suggestion %d: %s\n", i+1, s)
	}
	if detail && ce.Err != nil {
		fmt.Fprintf(&b, "  cause: %v\n", ce.Err)
	}
	return b.String()
}
