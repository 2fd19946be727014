// Package config defines the canonical, JSON-serializable configuration
// model for the ingestion pipeline. It is intentionally small, explicit,
// and dependency-free so that run configurations can be loaded from disk
// and passed through the program without additional glue code.
//
// Example (trimmed):
//
//	{
//	  "source":  { "kind": "file", "file": { "path": "path/to.csv" } },
//	  "parser":  { "kind": "csv", "options": { "delimiter": "," } },
//	  "storage": { "kind": "postgres", "db": { "dsn": "...", "table": "public.people" } },
//	  "search":  { "url": "http://localhost:9200", "index": "people" },
//	  "runtime": { "batch_size": 500, "max_retries": 3 }
//	}
package config

import (
	"encoding/json"
	"os"

	"conductor/internal/cerrors"
)

// Config is the top-level object decoded from a run configuration file.
type Config struct {
	// Source describes where input data comes from.
	Source Source `json:"source"`

	// Parser configures how raw lines are turned into fields.
	Parser Parser `json:"parser"`

	// Storage describes the relational destination (upload mode) or source
	// (reindex mode).
	Storage Storage `json:"storage"`

	// Search describes the search-index destination (index and reindex
	// modes).
	Search Search `json:"search"`

	// Logs configures where error log files are written.
	Logs Logs `json:"logs"`

	// Runtime controls batching and retry behavior.
	Runtime Runtime `json:"runtime"`

	// Health lists service endpoints probed before a run starts.
	Health []HealthCheck `json:"health"`

	// Metrics selects and configures the metrics backend.
	Metrics Metrics `json:"metrics"`
}

// Source identifies the data source.
type Source struct {
	// Kind selects the source implementation. Current value: "file".
	Kind string `json:"kind"`

	// File carries options for the "file" source kind.
	File SourceFile `json:"file"`
}

// SourceFile holds configuration for the "file" source kind.
type SourceFile struct {
	// Path is the local filesystem path to the input file.
	Path string `json:"path"`

	// List optionally names a manifest file holding one input path per
	// line; when set, each listed file is processed in order.
	List string `json:"list"`
}

// Parser selects how to split lines into fields.
type Parser struct {
	// Kind selects the parser implementation. Current value: "csv".
	Kind string `json:"kind"`

	// Options is a free-form map interpreted by the parser implementation.
	// For CSV, typical keys: delimiter (string, default ",").
	Options Options `json:"options"`
}

// Storage selects the relational backend.
type Storage struct {
	// Kind selects the storage implementation ("postgres", "sqlite").
	Kind string `json:"kind"`

	// DB configures the selected backend.
	DB DBConfig `json:"db"`
}

// DBConfig configures a relational backend.
type DBConfig struct {
	// DSN is the backend connection string (pgxpool URL, sqlite file path).
	DSN string `json:"dsn"`

	// Table is the destination table, optionally schema-qualified.
	Table string `json:"table"`

	// AutoCreateTable creates the table from the expected field list when
	// it does not exist.
	AutoCreateTable bool `json:"auto_create_table"`

	// SystemFields are table-managed column names (serial/identity primary
	// keys, default-bearing audit columns) excluded from header matching
	// and from the generated INSERT column list.
	SystemFields []string `json:"system_fields"`
}

// Search configures the search-index client.
type Search struct {
	// URL is the service root, e.g. "http://localhost:9200".
	URL string `json:"url"`

	// Index is the destination index name.
	Index string `json:"index"`

	// SystemFields are index-managed field names excluded from header
	// matching.
	SystemFields []string `json:"system_fields"`

	// Refresh, when set, is passed to the bulk API ("true" or "wait_for").
	Refresh string `json:"refresh"`
}

// Logs configures error report output.
type Logs struct {
	// Dir is the directory for error log files. Default "./logs".
	Dir string `json:"dir"`
}

// Runtime controls batching and retry behavior.
type Runtime struct {
	// BatchSize is the number of records per bulk write. Default 500.
	BatchSize int `json:"batch_size"`

	// ReadChunkSize is the number of rows fetched per cursor round trip
	// when reindexing. Independent of BatchSize. Default 1000.
	ReadChunkSize int `json:"read_chunk_size"`

	// MaxRetries is the total number of write attempts for transient
	// failures. Default 3.
	MaxRetries int `json:"max_retries"`

	// RetryBaseMS scales the linear backoff between attempts. Default 500.
	RetryBaseMS int `json:"retry_base_ms"`
}

// HealthCheck names one endpoint probed before a run.
type HealthCheck struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is "pushgateway", "datadog", or "" (disabled).
	Backend string `json:"backend"`

	// Job is the Pushgateway job name or Datadog namespace base.
	Job string `json:"job"`

	// PushgatewayURL is the Pushgateway base URL.
	PushgatewayURL string `json:"pushgateway_url"`

	// StatsdAddr is the DogStatsD address.
	StatsdAddr string `json:"statsd_addr"`
}

// Load reads and decodes a configuration file, applying defaults.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, cerrors.FileAccess("could not read configuration file "+path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, cerrors.Parsing("could not decode configuration file "+path, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills unset fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Source.Kind == "" {
		c.Source.Kind = "file"
	}
	if c.Parser.Kind == "" {
		c.Parser.Kind = "csv"
	}
	if c.Parser.Options == nil {
		c.Parser.Options = Options{}
	}
	if c.Logs.Dir == "" {
		c.Logs.Dir = "logs"
	}
	if c.Runtime.BatchSize <= 0 {
		c.Runtime.BatchSize = 500
	}
	if c.Runtime.ReadChunkSize <= 0 {
		c.Runtime.ReadChunkSize = 1000
	}
	if c.Runtime.MaxRetries <= 0 {
		c.Runtime.MaxRetries = 3
	}
	if c.Runtime.RetryBaseMS <= 0 {
		c.Runtime.RetryBaseMS = 500
	}
}

// Options is a small helper to fetch typed values from arbitrary JSON maps
// without introducing third-party configuration libraries. It performs only
// minimal type coercion and returns the provided defaults when a key is
// absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not
// a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a
// bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers decode as
// float64, so this accepts float64 and casts to int.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// StringSlice returns a []string for key when the value is an array of
// strings. Returns nil when the key is missing or not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// Any returns the raw value for key, which may itself be a nested
// map[string]any, []any, or primitive.
func (o Options) Any(key string) any {
	if v, ok := o[key]; ok {
		return v
	}
	return nil
}

// UnmarshalJSON decodes a missing or null "options" object to a non-nil,
// empty Options map, removing the need to nil-check at call sites.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
