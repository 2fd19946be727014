// Package schema models the target schema a CSV file is validated against,
// either a relational table's columns or a search index's field mapping,
// and implements the two header checks that gate every run: structural
// validation of the header names themselves, and the exact set match between
// headers and the target's expected fields.
package schema

import "strings"

// Field is one expected field of the target: a column name/type/nullability
// tuple from the relational catalog, or a field name/type pair from a search
// mapping.
type Field struct {
	Name     string
	Type     string
	Nullable bool
}

// Target is a read-only snapshot of the destination schema, fetched once
// before processing begins.
type Target struct {
	// Name is the destination identifier: table or index name.
	Name string
	// Fields are the declared fields, in catalog order.
	Fields []Field
	// SystemFields are managed by the destination itself (auto-assigned
	// primary keys, the submission-metadata field) and are excluded from
	// header matching.
	SystemFields []string
}

// ExpectedNames returns the field names a CSV header must provide: all
// declared fields minus the system-managed ones.
func (t Target) ExpectedNames() []string {
	sys := make(map[string]struct{}, len(t.SystemFields))
	for _, s := range t.SystemFields {
		sys[strings.ToLower(s)] = struct{}{}
	}
	out := make([]string, 0, len(t.Fields))
	for _, f := range t.Fields {
		if _, ok := sys[strings.ToLower(f.Name)]; ok {
			continue
		}
		out = append(out, f.Name)
	}
	return out
}

// FieldType returns the declared type for a field name, or "" when the field
// is not part of the target.
func (t Target) FieldType(name string) string {
	for _, f := range t.Fields {
		if f.Name == name {
			return f.Type
		}
	}
	return ""
}
