// Package csv parses individual CSV lines for the streaming ingestion
// pipeline. The pipeline driver owns the line-by-line pass over the file;
// this package turns one raw line into an ordered field slice given a
// single-character delimiter.
//
// Quoting and escaping follow encoding/csv semantics: a quoted field may
// contain the delimiter, and doubled quotes escape a literal quote. Fields
// are trimmed of surrounding whitespace. User files are frequently
// malformed, so parse errors always name the delimiter in use and carry a
// bounded preview of the offending line.
package csv

import (
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"

	"conductor/internal/cerrors"
)

// previewLen bounds the offending-line preview embedded in parse errors.
const previewLen = 120

// ParseLine parses one raw line into an ordered sequence of string fields.
//
// A line that is empty or whitespace-only parses to zero fields and a nil
// error. The header flag only affects diagnostics: header-context errors
// name the header line so users can tell a bad header apart from a bad row.
func ParseLine(line, delimiter string, header bool) ([]string, error) {
	delim, err := DelimiterRune(delimiter)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(line) == "" {
		return nil, nil
	}

	r := csv.NewReader(strings.NewReader(line))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, parseError(line, delimiter, header, err)
	}
	if len(records) != 1 {
		// A single physical line must parse to a single record; anything
		// else means the quoting is inconsistent with the line structure.
		return nil, parseError(line, delimiter, header,
			fmt.Errorf("line parsed to %d records, expected 1", len(records)))
	}

	fields := records[0]
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	return fields, nil
}

// Serialize renders fields as one CSV line using the given delimiter. It is
// the inverse of ParseLine for values free of delimiter and quote
// characters.
func Serialize(fields []string, delimiter string) (string, error) {
	delim, err := DelimiterRune(delimiter)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	w := csv.NewWriter(&b)
	w.Comma = delim
	if err := w.Write(fields); err != nil {
		return "", err
	}
	w.Flush()
	return strings.TrimSuffix(b.String(), "\n"), nil
}

// DelimiterRune validates that the delimiter is exactly one character and
// returns it as a rune.
func DelimiterRune(delimiter string) (rune, error) {
	if utf8.RuneCountInString(delimiter) != 1 {
		e := cerrors.Parsing(
			fmt.Sprintf("delimiter must be a single character, got %q", delimiter), nil)
		return 0, e.WithDetail("delimiter", delimiter)
	}
	r, _ := utf8.DecodeRuneInString(delimiter)
	return r, nil
}

// Preview truncates a line for safe inclusion in error messages.
func Preview(line string) string {
	if len(line) <= previewLen {
		return line
	}
	return line[:previewLen] + "..."
}

func parseError(line, delimiter string, header bool, cause error) error {
	ctx := "data line"
	if header {
		ctx = "header line"
	}
	e := cerrors.Parsing(
		fmt.Sprintf("cannot parse %s with delimiter %q", ctx, delimiter), cause)
	e.WithDetail("delimiter", delimiter)
	e.WithDetail("line", Preview(line))
	e.WithDetail("header", header)
	return e
}
