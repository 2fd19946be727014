package schema

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"conductor/internal/cerrors"
)

// maxHeaderBytes is the byte limit for a single header name. Postgres caps
// identifiers at 63 bytes; search mappings accept more, but one limit keeps
// files portable across both destinations.
const maxHeaderBytes = 63

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedWords are header names rejected case-insensitively. The list is a
// closed SQL-ish set; it exists so generated INSERT statements and index
// mappings never need quoting gymnastics.
var reservedWords = map[string]struct{}{
	"all": {}, "and": {}, "any": {}, "as": {}, "asc": {}, "between": {},
	"by": {}, "case": {}, "check": {}, "column": {}, "constraint": {},
	"create": {}, "default": {}, "delete": {}, "desc": {}, "distinct": {},
	"drop": {}, "else": {}, "end": {}, "exists": {}, "foreign": {},
	"from": {}, "group": {}, "having": {}, "in": {}, "index": {},
	"insert": {}, "into": {}, "is": {}, "join": {}, "key": {}, "like": {},
	"limit": {}, "not": {}, "null": {}, "offset": {}, "on": {}, "or": {},
	"order": {}, "primary": {}, "references": {}, "select": {}, "set": {},
	"table": {}, "then": {}, "union": {}, "unique": {}, "update": {},
	"values": {}, "when": {}, "where": {},
}

// Violation describes one structural problem with a header name. Suggested
// carries an auto-normalized replacement name when one can be derived.
type Violation struct {
	Header    string
	Rule      string
	Detail    string
	Suggested string
}

func (v Violation) String() string {
	s := fmt.Sprintf("%q: %s (%s)", v.Header, v.Rule, v.Detail)
	if v.Suggested != "" {
		s += fmt.Sprintf(", suggested name: %q", v.Suggested)
	}
	return s
}

// ValidateHeaders runs the structural checks over a parsed header row and
// collects every violation instead of stopping at the first, so users can
// fix a file in one pass. An empty result means the headers are acceptable.
func ValidateHeaders(headers []string) []Violation {
	var out []Violation
	seen := map[string]int{}

	for _, h := range headers {
		trimmed := strings.TrimSpace(h)
		switch {
		case trimmed == "":
			out = append(out, Violation{
				Header: h, Rule: "empty",
				Detail: "header is empty after trimming whitespace",
			})
			continue
		case len(trimmed) > maxHeaderBytes:
			out = append(out, Violation{
				Header: trimmed, Rule: "too_long",
				Detail:    fmt.Sprintf("header exceeds %d bytes", maxHeaderBytes),
				Suggested: NormalizeName(trimmed[:maxHeaderBytes]),
			})
		case !identPattern.MatchString(trimmed):
			out = append(out, Violation{
				Header: trimmed, Rule: "invalid_characters",
				Detail:    "header must start with a letter or underscore, followed by letters, digits, or underscores",
				Suggested: NormalizeName(trimmed),
			})
		}
		if _, ok := reservedWords[strings.ToLower(trimmed)]; ok {
			out = append(out, Violation{
				Header: trimmed, Rule: "reserved_word",
				Detail:    "header collides with a reserved word",
				Suggested: trimmed + "_value",
			})
		}
		seen[trimmed]++
	}

	for _, h := range headers {
		trimmed := strings.TrimSpace(h)
		if trimmed != "" && seen[trimmed] > 1 {
			out = append(out, Violation{
				Header: trimmed, Rule: "duplicate",
				Detail: fmt.Sprintf("header appears %d times", seen[trimmed]),
			})
			seen[trimmed] = 0 // report each duplicate name once
		}
	}
	return out
}

// NormalizeName converts arbitrary header text into a lowercase ASCII
// identifier: lowercase, strip accents (NFD → remove Mn → NFC), map
// space/dash/dot to underscore, drop the rest. Used only to produce
// suggestions in diagnostics; the pipeline never rewrites user headers.
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	ascii, _, _ := transform.String(t, s)

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "field"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

// StructuralError wraps a non-empty violation list into a classified
// validation error carrying the full breakdown.
func StructuralError(violations []Violation) error {
	if len(violations) == 0 {
		return nil
	}
	msgs := make([]string, len(violations))
	for i, v := range violations {
		msgs[i] = v.String()
	}
	e := cerrors.Validation(
		fmt.Sprintf("%d invalid header name(s)", len(violations)),
		"rename the listed headers to valid identifiers",
		"headers must not duplicate or collide with reserved words",
	)
	return e.WithDetail("violations", msgs)
}
