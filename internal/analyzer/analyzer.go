// Package analyzer turns the per-item errors of a partially failed bulk
// write into a concise terminal summary and a complete log file. Failed
// items are grouped by (classification, offending field); each group keeps
// a count, a few deduplicated sample values, and a few record identifiers.
package analyzer

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"conductor/internal/bulk"
)

const (
	maxSampleValues = 3
	maxSampleIDs    = 3
	maxReasonChars  = 60
)

// Analyzer reports bulk-write failures for one run against one backend.
// Each run owns its own instance so concurrent runs never share state.
type Analyzer struct {
	backend string
	logDir  string

	out io.Writer
	now func() time.Time

	// seq numbers the report files of this run so batches failing within
	// the same second never overwrite each other's report.
	seq int
}

// New returns an Analyzer writing log files under logDir (default "logs")
// and the terminal summary to stderr.
func New(backend, logDir string) *Analyzer {
	if logDir == "" {
		logDir = "logs"
	}
	return &Analyzer{
		backend: backend,
		logDir:  logDir,
		out:     os.Stderr,
		now:     time.Now,
	}
}

type group struct {
	tag    bulk.ErrorTag
	field  string
	reason string
	count  int
	values []string
	ids    []string
}

// ReportBatchFailure implements bulk.Reporter. It writes the unabridged
// report to a timestamped log file and prints one grouped summary. The bulk
// writer calls it once per original batch, never per retry.
func (a *Analyzer) ReportBatchFailure(_ context.Context, res bulk.Result) {
	if len(res.Errors) == 0 {
		return
	}

	groups := groupErrors(res.Errors)

	path, err := a.writeLogFile(res, groups)
	if err != nil {
		log.Printf("analyzer: could not write error log: %v", err)
		path = "(log file unavailable)"
	}

	fmt.Fprintf(a.out, "\n%d of %d records failed writing to %s:\n",
		len(res.Errors), res.Attempted, a.backend)
	for _, g := range groups {
		field := g.field
		if field == "" {
			field = "(unknown field)"
		}
		fmt.Fprintf(a.out, "  %-20s %s (count=%d", field, g.reason, g.count)
		if len(g.values) > 0 {
			fmt.Fprintf(a.out, ", samples=%s", strings.Join(g.values, ", "))
		}
		fmt.Fprintf(a.out, ")\n")
	}
	fmt.Fprintf(a.out, "full report: %s\n", path)
}

// groupErrors buckets items by (tag, field) and keeps bounded samples.
func groupErrors(errs []bulk.ItemError) []*group {
	byKey := map[string]*group{}
	var order []string
	for _, e := range errs {
		field := e.Field
		if field == "" {
			field = fieldFromReason(e.Reason)
		}
		key := string(e.Tag) + "\x00" + field
		g, ok := byKey[key]
		if !ok {
			g = &group{
				tag:    e.Tag,
				field:  field,
				reason: cleanReason(e.Tag, e.Reason),
			}
			byKey[key] = g
			order = append(order, key)
		}
		g.count++
		if e.Value != "" && len(g.values) < maxSampleValues && !contains(g.values, e.Value) {
			g.values = append(g.values, e.Value)
		}
		if e.RecordID != "" && len(g.ids) < maxSampleIDs {
			g.ids = append(g.ids, e.RecordID)
		}
	}

	groups := make([]*group, 0, len(byKey))
	for _, key := range order {
		groups = append(groups, byKey[key])
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].count > groups[j].count })
	return groups
}

var (
	bracketTypePattern = regexp.MustCompile(`of type \[([^\]]+)\]`)
	sqlTypePattern     = regexp.MustCompile(`for type ([a-z_ ]+):`)

	bracketFieldPattern = regexp.MustCompile(`field \[([^\]]+)\]`)
	quotedColumnPattern = regexp.MustCompile(`column "([^"]+)"`)
)

// cleanReason rewrites type-mismatch reasons to a uniform sentence and
// truncates everything else to its first sentence.
func cleanReason(tag bulk.ErrorTag, reason string) string {
	if tag == bulk.TagTypeMismatch {
		typ := "the declared type"
		if m := bracketTypePattern.FindStringSubmatch(reason); m != nil {
			typ = m[1]
		} else if m := sqlTypePattern.FindStringSubmatch(reason); m != nil {
			typ = strings.TrimSpace(m[1])
		}
		return fmt.Sprintf("Expected %s, but got string values", typ)
	}

	if i := strings.IndexAny(reason, ".;"); i > 0 {
		reason = reason[:i]
	}
	if utf8.RuneCountInString(reason) > maxReasonChars {
		runes := []rune(reason)
		reason = string(runes[:maxReasonChars-3]) + "..."
	}
	return reason
}

// fieldFromReason extracts the offending field name from reason text when
// the backend did not report one structurally.
func fieldFromReason(reason string) string {
	if m := bracketFieldPattern.FindStringSubmatch(reason); m != nil {
		return m[1]
	}
	if m := quotedColumnPattern.FindStringSubmatch(reason); m != nil {
		return m[1]
	}
	return ""
}

// writeLogFile writes the summary plus one line per failing item and
// returns the file path. The file name embeds an ISO 8601 timestamp with
// colons and dots replaced by dashes so it is valid on every filesystem.
func (a *Analyzer) writeLogFile(res bulk.Result, groups []*group) (string, error) {
	if err := os.MkdirAll(a.logDir, 0o755); err != nil {
		return "", err
	}

	a.seq++
	stamp := strings.NewReplacer(":", "-", ".", "-").
		Replace(a.now().UTC().Format(time.RFC3339))
	path := filepath.Join(a.logDir, fmt.Sprintf("%s-errors-%s-%03d.log", a.backend, stamp, a.seq))

	var b strings.Builder
	fmt.Fprintf(&b, "bulk write failures: backend=%s attempted=%d failed=%d time=%s\n\n",
		a.backend, res.Attempted, len(res.Errors), stamp)

	b.WriteString("summary:\n")
	for _, g := range groups {
		field := g.field
		if field == "" {
			field = "(unknown field)"
		}
		fmt.Fprintf(&b, "  field=%s tag=%s count=%d reason=%q", field, g.tag, g.count, g.reason)
		if len(g.values) > 0 {
			fmt.Fprintf(&b, " samples=[%s]", strings.Join(g.values, ", "))
		}
		if len(g.ids) > 0 {
			fmt.Fprintf(&b, " ids=[%s]", strings.Join(g.ids, ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString("\ndetails:\n")
	for _, e := range res.Errors {
		raw := e.Raw
		if raw == "" {
			raw = e.Reason
		}
		fmt.Fprintf(&b, "  index=%d id=%s status=%s error=%s\n", e.Index, e.RecordID, e.Tag, raw)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
