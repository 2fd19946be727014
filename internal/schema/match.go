package schema

import (
	"fmt"
	"sort"

	"conductor/internal/cerrors"
)

// MatchResult is the full matched/missing/extra breakdown between a header
// set and the target's expected fields. Slices are sorted for stable
// reporting.
type MatchResult struct {
	Matched []string
	Missing []string // in the schema, absent from the headers
	Extra   []string // in the headers, absent from the schema
}

// OK reports whether headers and schema agree exactly (as sets).
func (m MatchResult) OK() bool {
	return len(m.Missing) == 0 && len(m.Extra) == 0
}

// MatchTarget computes the symmetric difference between the header set and
// the target's expected field names (system-managed fields excluded). Any
// missing or extra field is a hard failure; there is no partial-overlap
// success path.
func MatchTarget(headers []string, target Target) MatchResult {
	expected := target.ExpectedNames()

	inSchema := make(map[string]struct{}, len(expected))
	for _, n := range expected {
		inSchema[n] = struct{}{}
	}
	inHeaders := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		inHeaders[h] = struct{}{}
	}

	var res MatchResult
	for _, n := range expected {
		if _, ok := inHeaders[n]; ok {
			res.Matched = append(res.Matched, n)
		} else {
			res.Missing = append(res.Missing, n)
		}
	}
	for _, h := range headers {
		if _, ok := inSchema[h]; !ok {
			res.Extra = append(res.Extra, h)
		}
	}
	sort.Strings(res.Matched)
	sort.Strings(res.Missing)
	sort.Strings(res.Extra)
	return res
}

// MatchError wraps a failed match into a classified validation error with
// the complete breakdown, so file columns and schema columns can be
// reconciled in one pass.
func MatchError(res MatchResult, target Target) error {
	if res.OK() {
		return nil
	}
	e := cerrors.Validation(
		fmt.Sprintf("headers do not match schema of %q: %d missing, %d extra",
			target.Name, len(res.Missing), len(res.Extra)),
		"add the missing columns to the file or remove them from the schema",
		"remove the extra columns from the file or add them to the schema",
	)
	e.WithDetail("matchedHeaders", res.Matched)
	e.WithDetail("missingHeaders", res.Missing)
	e.WithDetail("extraHeaders", res.Extra)
	return e
}
