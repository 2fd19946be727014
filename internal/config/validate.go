// This file adds a lightweight linter/validator for Config values. It
// performs static checks over a decoded Config and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding that is surfaced to users but
	// does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the config (e.g. "storage.db.dsn"). Message
// is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a
// single error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Errors filters a finding list down to blocking errors.
func Errors(issues []Issue) []Issue {
	var out []Issue
	for _, i := range issues {
		if i.Severity == SeverityError {
			out = append(out, i)
		}
	}
	return out
}

// Run modes.
const (
	ModeUpload  = "upload"  // CSV file -> relational table
	ModeIndex   = "index"   // CSV file -> search index
	ModeReindex = "reindex" // relational table -> search index
)

// Validate performs static validation of a Config for the given run mode.
// It does not mutate the config; callers decide whether warnings are
// fatal.
func Validate(c Config, mode string) []Issue {
	var issues []Issue

	switch mode {
	case ModeUpload:
		issues = append(issues, validateSource(c.Source)...)
		issues = append(issues, validateParser(c.Parser)...)
		issues = append(issues, validateStorage(c.Storage)...)
	case ModeIndex:
		issues = append(issues, validateSource(c.Source)...)
		issues = append(issues, validateParser(c.Parser)...)
		issues = append(issues, validateSearch(c.Search)...)
	case ModeReindex:
		issues = append(issues, validateStorage(c.Storage)...)
		issues = append(issues, validateSearch(c.Search)...)
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "mode",
			Message:  fmt.Sprintf("unknown run mode %q; expected upload, index, or reindex", mode),
		})
		return issues
	}

	issues = append(issues, validateRuntime(c.Runtime)...)
	issues = append(issues, validateMetrics(c.Metrics)...)

	for i, h := range c.Health {
		if strings.TrimSpace(h.URL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("health[%d].url", i),
				Message:  "health check requires a non-empty url",
			})
		}
	}

	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  "source.kind must not be empty",
		})
		return issues
	}

	// Unknown kinds are warnings, for forward compatibility.
	if s.Kind != "file" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q; ensure a matching implementation exists", s.Kind),
		})
	}

	if s.Kind == "file" {
		if strings.TrimSpace(s.File.Path) == "" && strings.TrimSpace(s.File.List) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.file",
				Message:  "file source requires a path or a list manifest",
			})
		}
		if s.File.Path != "" && s.File.List != "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "source.file",
				Message:  "both path and list are set; the list takes precedence",
			})
		}
	}

	return issues
}

func validateParser(p Parser) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.kind",
			Message:  "parser.kind must not be empty",
		})
		return issues
	}
	if p.Kind != "csv" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "parser.kind",
			Message:  fmt.Sprintf("unknown parser kind %q; ensure a matching implementation exists", p.Kind),
		})
		return issues
	}

	if d := p.Options.String("delimiter", ","); len([]rune(d)) != 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.options.delimiter",
			Message:  fmt.Sprintf("delimiter must be a single character, got %q", d),
		})
	}

	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
		return issues
	}

	known := map[string]struct{}{
		"postgres": {},
		"sqlite":   {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}

	if strings.TrimSpace(s.DB.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.dsn",
			Message:  "storage.db.dsn must not be empty",
		})
	}
	if strings.TrimSpace(s.DB.Table) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.table",
			Message:  "storage.db.table must not be empty",
		})
	}

	return issues
}

func validateSearch(s Search) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.URL) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "search.url",
			Message:  "search.url must not be empty",
		})
	}
	if strings.TrimSpace(s.Index) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "search.index",
			Message:  "search.index must not be empty",
		})
	}
	if s.Refresh != "" && s.Refresh != "true" && s.Refresh != "wait_for" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "search.refresh",
			Message:  fmt.Sprintf("unusual refresh value %q; expected \"true\" or \"wait_for\"", s.Refresh),
		})
	}

	return issues
}

func validateRuntime(r Runtime) []Issue {
	var issues []Issue

	if r.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  fmt.Sprintf("batch_size must be a positive integer, got %d", r.BatchSize),
		})
	}
	if r.BatchSize > 10000 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.batch_size",
			Message:  fmt.Sprintf("batch_size=%d; very large batches increase memory use and retry cost", r.BatchSize),
		})
	}
	if r.ReadChunkSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.read_chunk_size",
			Message:  "read_chunk_size must not be negative",
		})
	}
	if r.MaxRetries < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.max_retries",
			Message:  "max_retries must not be negative",
		})
	}

	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue

	switch m.Backend {
	case "", "pushgateway", "datadog":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; expected pushgateway, datadog, or empty", m.Backend),
		})
	}
	if m.Backend == "pushgateway" && strings.TrimSpace(m.PushgatewayURL) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.pushgateway_url",
			Message:  "pushgateway backend requires pushgateway_url",
		})
	}
	if m.Backend == "datadog" && strings.TrimSpace(m.StatsdAddr) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.statsd_addr",
			Message:  "datadog backend requires statsd_addr",
		})
	}

	return issues
}
