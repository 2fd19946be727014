// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// It adapts the generic metrics.Backend interface to Prometheus by:
//
//   - Using client_golang CounterVec and SummaryVec collectors.
//   - Mapping the pipeline labels (run, stage, status, kind, backend) onto
//     Prometheus labels.
//   - Pushing collected metrics to a Pushgateway instead of exposing a
//     scrape endpoint, since an ingestion run is a short-lived batch job.
//
// All Prometheus-specific dependencies live here so the rest of the project
// can swap to alternative backends (e.g. Datadog) without changes to the
// core pipeline.
package prompush

import (
	"fmt"

	"conductor/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stageCounter  *prometheus.CounterVec // "conductor_stage_total"
	stageDuration *prometheus.SummaryVec // "conductor_stage_duration_seconds"
	recordCounter *prometheus.CounterVec // "conductor_records_total"
	batchCounter  *prometheus.CounterVec // "conductor_batches_total"
}

// NewBackend constructs a Prometheus Pushgateway backend. jobName is the
// Pushgateway "job" grouping key; gatewayURL is the base URL of the
// Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "conductor"
	}

	reg := prometheus.NewRegistry()

	stageCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_stage_total",
			Help: "Total pipeline stage executions, partitioned by stage and status.",
		},
		[]string{"stage", "status"},
	)
	stageDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "conductor_stage_duration_seconds",
			Help:       "Duration of pipeline stages in seconds, partitioned by stage and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"stage", "status"},
	)
	recordCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_records_total",
			Help: "Record-level counts per kind (processed, parse_errors, failed, written).",
		},
		[]string{"kind"},
	)
	batchCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_batches_total",
			Help: "Total batches flushed, partitioned by destination backend.",
		},
		[]string{"backend"},
	)

	for name, c := range map[string]prometheus.Collector{
		"stage counter":  stageCounter,
		"stage summary":  stageDuration,
		"record counter": recordCounter,
		"batch counter":  batchCounter,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}

	return &Backend{
		gatewayURL:    gatewayURL,
		jobName:       jobName,
		reg:           reg,
		stageCounter:  stageCounter,
		stageDuration: stageDuration,
		recordCounter: recordCounter,
		batchCounter:  batchCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "conductor_stage_total":
		b.stageCounter.WithLabelValues(labels["stage"], labels["status"]).Add(delta)

	case "conductor_records_total":
		b.recordCounter.WithLabelValues(labels["kind"]).Add(delta)

	case "conductor_batches_total":
		b.batchCounter.WithLabelValues(labels["backend"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != "conductor_stage_duration_seconds" {
		return
	}
	b.stageDuration.WithLabelValues(labels["stage"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
