package csv

import (
	"strings"
	"testing"

	"conductor/internal/cerrors"
)

func TestParseLine_Basic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		line  string
		delim string
		want  []string
	}{
		{"comma", "a,b,c", ",", []string{"a", "b", "c"}},
		{"semicolon", "a;b;c", ";", []string{"a", "b", "c"}},
		{"tab", "a\tb", "\t", []string{"a", "b"}},
		{"quoted_delimiter", `a,"b,c",d`, ",", []string{"a", "b,c", "d"}},
		{"escaped_quote", `a,"he said ""hi""",b`, ",", []string{"a", `he said "hi"`, "b"}},
		{"whitespace_trimmed", "  a , b ,c  ", ",", []string{"a", "b", "c"}},
		{"trailing_empty_field", "a,b,", ",", []string{"a", "b", ""}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseLine(tc.line, tc.delim, false)
			if err != nil {
				t.Fatalf("ParseLine(%q): %v", tc.line, err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("field %d = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestParseLine_BlankIsZeroFields(t *testing.T) {
	t.Parallel()

	for _, line := range []string{"", "   ", "\t"} {
		got, err := ParseLine(line, ",", false)
		if err != nil {
			t.Fatalf("ParseLine(%q): %v", line, err)
		}
		if len(got) != 0 {
			t.Errorf("ParseLine(%q) = %v, want zero fields", line, got)
		}
	}
}

func TestParseLine_BadDelimiter(t *testing.T) {
	t.Parallel()

	for _, delim := range []string{"", ",,", "ab"} {
		_, err := ParseLine("a,b", delim, false)
		if err == nil {
			t.Fatalf("expected error for delimiter %q", delim)
		}
		if got := cerrors.KindOf(err); got != cerrors.KindParsing {
			t.Errorf("kind = %s, want %s", got, cerrors.KindParsing)
		}
	}
}

func TestParseLine_MalformedQuoting(t *testing.T) {
	t.Parallel()

	_, err := ParseLine(`a,"unterminated`, ",", false)
	// encoding/csv tolerates a bare trailing quote in some positions; this
	// one has a quote mid-field which it rejects.
	if err == nil {
		_, err = ParseLine(`a,b"c"d,"`, ",", false)
	}
	if err == nil {
		t.Skip("csv reader accepted all malformed samples")
	}
	ce, ok := cerrors.As(err)
	if !ok || ce.Kind != cerrors.KindParsing {
		t.Fatalf("expected parsing error, got %v", err)
	}
	if ce.Detail("delimiter") != "," {
		t.Errorf("expected delimiter detail, got %v", ce.Details)
	}
	if ce.Detail("line") == nil {
		t.Errorf("expected line preview detail")
	}
}

func TestParseLine_HeaderContextInError(t *testing.T) {
	t.Parallel()

	_, err := ParseLine("a,\"b\nc", ",", true)
	if err == nil {
		t.Skip("csv reader accepted sample")
	}
	if !strings.Contains(err.Error(), "header line") {
		t.Errorf("expected header context in error, got %v", err)
	}
}

// Round-trip property: for fields free of delimiter and quote characters,
// parse(serialize(fields)) == fields.
func TestSerializeParse_RoundTrip(t *testing.T) {
	t.Parallel()

	cases := [][]string{
		{"id", "name", "age"},
		{"1", "alice", "30"},
		{"x"},
		{"a b", "c_d", "e-f"},
	}
	for _, fields := range cases {
		line, err := Serialize(fields, ",")
		if err != nil {
			t.Fatalf("Serialize(%v): %v", fields, err)
		}
		got, err := ParseLine(line, ",", false)
		if err != nil {
			t.Fatalf("ParseLine(%q): %v", line, err)
		}
		if len(got) != len(fields) {
			t.Fatalf("round trip %v -> %v", fields, got)
		}
		for i := range fields {
			if got[i] != fields[i] {
				t.Errorf("round trip field %d: %q -> %q", i, fields[i], got[i])
			}
		}
	}
}

func TestPreview_Bounded(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 500)
	p := Preview(long)
	if len(p) > previewLen+3 {
		t.Errorf("preview too long: %d bytes", len(p))
	}
	if !strings.HasSuffix(p, "...") {
		t.Errorf("expected truncation marker")
	}
}
