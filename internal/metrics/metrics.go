// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the ingestion pipeline.
//
// It exposes a narrow interface (Backend) focused on counters and timing
// data, plus a global pluggable backend defaulting to a no-op so metric
// calls are always safe even when nothing is configured. The pattern
// mirrors the storage abstraction: the rest of the codebase depends only on
// this interface while concrete systems (Prometheus Pushgateway, Datadog)
// stay isolated in subpackages.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g.
	// Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing
// backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStage measures latency plus success/failure for one pipeline stage
// (header validation, streaming, flushing) of a run.
func RecordStage(run, stage string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"run":    run,
		"stage":  stage,
		"status": status,
	}

	backend.IncCounter("conductor_stage_total", 1, lbls)
	backend.ObserveHistogram("conductor_stage_duration_seconds", d.Seconds(), lbls)
}

// RecordRecords increments a record-level counter for the given run and
// kind.
//
// Typical kinds mirror the run statistics fields:
//   - "processed"
//   - "parse_errors"
//   - "failed"
//   - "written"
func RecordRecords(run, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("conductor_records_total", float64(delta), Labels{
		"run":  run,
		"kind": kind,
	})
}

// RecordBatches increments the flushed-batch counter for the given run and
// destination backend.
func RecordBatches(run, dest string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("conductor_batches_total", float64(delta), Labels{
		"run":     run,
		"backend": dest,
	})
}
