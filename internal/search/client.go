// Package search implements the search-index side of the pipeline: fetching
// the index mapping, bulk-indexing record batches over the NDJSON bulk API,
// and classifying per-item and transport errors. The client is a
// bulk.Backend, so retry and backoff stay in the bulk writer.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"conductor/internal/bulk"
	"conductor/internal/cerrors"
	"conductor/internal/record"
	"conductor/internal/schema"
)

// Config configures a search client for one index.
type Config struct {
	// BaseURL is the service root, e.g. "http://localhost:9200".
	BaseURL string
	// Index is the destination index name.
	Index string
	// SystemFields are index-managed field names excluded from header
	// matching.
	SystemFields []string
	// Refresh, when set, asks the service to make indexed documents
	// searchable before responding ("true" or "wait_for").
	Refresh string
	// Timeout bounds each request. Default 30s.
	Timeout time.Duration
}

// Client talks to one search index.
type Client struct {
	http *http.Client
	cfg  Config
}

// NewClient validates the config and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" || cfg.Index == "" {
		return nil, cerrors.Validation(
			"search client requires a base URL and an index name",
			"set search.url and search.index in the configuration",
		)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		http: &http.Client{Timeout: cfg.Timeout},
		cfg:  cfg,
	}, nil
}

func (c *Client) Name() string        { return "search" }
func (c *Client) Destination() string { return c.cfg.Index }

// Mapping fetches the index mapping and returns the target field list. The
// field names live under mappings.properties; system-managed names are
// recorded on the target so header matching can skip them.
func (c *Client) Mapping(ctx context.Context) (schema.Target, error) {
	var t schema.Target

	body, err := c.get(ctx, fmt.Sprintf("%s/%s/_mapping", c.cfg.BaseURL, c.cfg.Index))
	if err != nil {
		return t, err
	}

	var raw map[string]struct {
		Mappings struct {
			Properties map[string]struct {
				Type string `json:"type"`
			} `json:"properties"`
		} `json:"mappings"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return t, cerrors.Parsing("could not decode index mapping response", err)
	}

	entry, ok := raw[c.cfg.Index]
	if !ok {
		// Some services key the response by a concrete backing index name.
		for _, v := range raw {
			entry = v
			ok = true
			break
		}
	}
	if !ok || len(entry.Mappings.Properties) == 0 {
		return t, cerrors.Validation(
			fmt.Sprintf("index %q has no mapped fields", c.cfg.Index),
			"create the index with an explicit mapping before loading",
		)
	}

	t.Name = c.cfg.Index
	t.SystemFields = c.cfg.SystemFields
	for name, prop := range entry.Mappings.Properties {
		t.Fields = append(t.Fields, schema.Field{Name: name, Type: prop.Type, Nullable: true})
	}
	sort.Slice(t.Fields, func(i, j int) bool { return t.Fields[i].Name < t.Fields[j].Name })
	return t, nil
}

// ExecuteBatch implements bulk.Backend: one NDJSON bulk request, with the
// per-item results mapped back onto the batch. Document IDs are content
// hashes, so a retried batch overwrites rather than duplicates.
func (c *Client) ExecuteBatch(ctx context.Context, recs []*record.Record) (bulk.Result, error) {
	var res bulk.Result

	payload, err := bulkBody(c.cfg.Index, recs)
	if err != nil {
		return res, err
	}

	url := c.cfg.BaseURL + "/_bulk"
	if c.cfg.Refresh != "" {
		url += "?refresh=" + c.cfg.Refresh
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return res, err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := c.http.Do(req)
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return res, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return parseBulkResponse(body, recs)
}

// Classify implements bulk.Backend for whole-batch failures.
func (c *Client) Classify(err error) bulk.ErrorTag {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests,
			httpErr.StatusCode >= 500:
			return bulk.TagTransport
		case httpErr.StatusCode == http.StatusBadRequest:
			return bulk.TagMappingMismatch
		}
		return bulk.TagUnknown
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return bulk.TagTransport
	}
	// http.Client wraps connection errors in *url.Error.
	if strings.Contains(err.Error(), "connection refused") {
		return bulk.TagTransport
	}
	return bulk.TagUnknown
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, cerrors.Connection(
			fmt.Sprintf("could not reach search service at %q", c.cfg.BaseURL), err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// HTTPError is a non-2xx bulk or mapping response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("search service returned %d: %s", e.StatusCode, e.Body)
}

// bulkBody renders the NDJSON action/document pairs for one batch.
func bulkBody(index string, recs []*record.Record) ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	for _, rec := range recs {
		action := map[string]map[string]string{
			"index": {"_index": index, "_id": DocID(rec)},
		}
		if err := enc.Encode(action); err != nil {
			return nil, err
		}
		doc := make(map[string]any, len(rec.Fields)+1)
		for k, v := range rec.Fields {
			doc[k] = v
		}
		doc["meta"] = rec.Meta
		if err := enc.Encode(doc); err != nil {
			return nil, err
		}
	}
	return b.Bytes(), nil
}

// DocID derives a deterministic document ID from the record's field
// content. json.Marshal emits map keys sorted, so equal content always
// hashes equally.
func DocID(rec *record.Record) string {
	payload, err := json.Marshal(rec.Fields)
	if err != nil {
		payload = []byte(rec.Meta.RecordID)
	}
	return fmt.Sprintf("%016x", xxh3.Hash(payload))
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// parseBulkResponse maps the per-item result array back onto the batch.
func parseBulkResponse(body []byte, recs []*record.Record) (bulk.Result, error) {
	res := bulk.Result{Attempted: len(recs)}

	var br bulkResponse
	if err := json.Unmarshal(body, &br); err != nil {
		return res, cerrors.Parsing("could not decode bulk response", err)
	}

	for i, item := range br.Items {
		for _, outcome := range item {
			if outcome.Error == nil {
				continue
			}
			ie := bulk.ItemError{
				Index:    i,
				Tag:      tagForItemError(outcome.Error.Type),
				Reason:   outcome.Error.Reason,
				RecordID: outcome.ID,
			}
			if raw, err := json.Marshal(outcome.Error); err == nil {
				ie.Raw = string(raw)
			}
			ie.Field, ie.Value = fieldAndValue(outcome.Error.Reason, i, recs)
			res.Errors = append(res.Errors, ie)
		}
	}
	res.Succeeded = res.Attempted - len(res.Errors)
	return res, nil
}

// tagForItemError maps the service's error type names onto the closed tag
// set.
func tagForItemError(typ string) bulk.ErrorTag {
	switch typ {
	case "version_conflict_engine_exception", "document_already_exists_exception":
		return bulk.TagDuplicateKey
	case "mapper_parsing_exception", "document_parsing_exception":
		return bulk.TagTypeMismatch
	case "strict_dynamic_mapping_exception", "illegal_argument_exception":
		return bulk.TagMappingMismatch
	case "es_rejected_execution_exception", "unavailable_shards_exception":
		return bulk.TagTransport
	}
	return bulk.TagUnknown
}

// fieldAndValue extracts the offending field from the reason text and looks
// up the record's raw value for it.
func fieldAndValue(reason string, index int, recs []*record.Record) (string, string) {
	const marker = "field ["
	i := strings.Index(reason, marker)
	if i < 0 {
		return "", ""
	}
	rest := reason[i+len(marker):]
	j := strings.IndexByte(rest, ']')
	if j < 0 {
		return "", ""
	}
	field := rest[:j]

	if index < len(recs) {
		if v := recs[index].Value(field); v != nil {
			return field, fmt.Sprint(v)
		}
	}
	return field, ""
}
