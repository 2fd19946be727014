package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"conductor/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// readCounterValue reads the current value of a Counter for assertions.
func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	if m.GetCounter() == nil {
		t.Fatalf("metric did not contain Counter value")
	}
	return m.GetCounter().GetValue()
}

// readSummaryCountSum reads sample count and sum from a SummaryVec.
func readSummaryCountSum(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()

	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	if !ok {
		t.Fatalf("SummaryVec.WithLabelValues(...) does not implement prometheus.Metric")
	}
	if err := metric.Write(m); err != nil {
		t.Fatalf("Summary.Write() error = %v", err)
	}
	if m.GetSummary() == nil {
		t.Fatalf("metric did not contain Summary value")
	}
	sum := m.GetSummary()
	return sum.GetSampleCount(), sum.GetSampleSum()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		jobName     string
		gatewayURL  string
		wantErr     bool
		wantJobName string
	}{
		{
			name:       "missing gateway URL returns error",
			jobName:    "upload-job",
			gatewayURL: "",
			wantErr:    true,
		},
		{
			name:        "empty job name uses default",
			jobName:     "",
			gatewayURL:  "http://pushgateway:9091",
			wantJobName: "conductor",
		},
		{
			name:        "explicit job name is preserved",
			jobName:     "my-custom-job",
			gatewayURL:  "http://pushgateway:9091",
			wantJobName: "my-custom-job",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := NewBackend(tt.jobName, tt.gatewayURL)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewBackend(%q, %q) error = nil, want non-nil", tt.jobName, tt.gatewayURL)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBackend(%q, %q) error = %v", tt.jobName, tt.gatewayURL, err)
			}
			if b.jobName != tt.wantJobName {
				t.Fatalf("backend.jobName = %q, want %q", b.jobName, tt.wantJobName)
			}
			if b.gatewayURL != tt.gatewayURL {
				t.Fatalf("backend.gatewayURL = %q, want %q", b.gatewayURL, tt.gatewayURL)
			}

			// Metric label cardinality: these calls should not panic.
			b.stageCounter.WithLabelValues("streaming", "success").Add(1)
			b.stageDuration.WithLabelValues("flushing", "failure").Observe(0.5)
			b.recordCounter.WithLabelValues("processed").Add(1)
			b.batchCounter.WithLabelValues("postgres").Add(1)
		})
	}
}

// IncCounter routes updates to the correct collectors and ignores unknown
// metric names.
func TestIncCounter(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("conductor", "http://example.com")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	b.IncCounter("conductor_stage_total", 3, metrics.Labels{"stage": "streaming", "status": "success"})
	b.IncCounter("conductor_records_total", 5, metrics.Labels{"kind": "written"})
	b.IncCounter("conductor_batches_total", 2, metrics.Labels{"backend": "search"})
	b.IncCounter("unknown_metric", 10, metrics.Labels{"foo": "bar"})

	if got := readCounterValue(t, b.stageCounter.WithLabelValues("streaming", "success")); got != 3 {
		t.Errorf("stageCounter = %v, want 3", got)
	}
	if got := readCounterValue(t, b.recordCounter.WithLabelValues("written")); got != 5 {
		t.Errorf("recordCounter = %v, want 5", got)
	}
	if got := readCounterValue(t, b.batchCounter.WithLabelValues("search")); got != 2 {
		t.Errorf("batchCounter = %v, want 2", got)
	}
	if got := readCounterValue(t, b.stageCounter.WithLabelValues("x", "y")); got != 0 {
		t.Errorf("untouched stage counter = %v, want 0", got)
	}
}

func TestObserveHistogram(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("conductor", "http://example.com")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	b.ObserveHistogram("conductor_stage_duration_seconds", 1.5,
		metrics.Labels{"stage": "flushing", "status": "success"})
	b.ObserveHistogram("other_metric", 2.0,
		metrics.Labels{"stage": "flushing", "status": "success"})

	count, sum := readSummaryCountSum(t, b.stageDuration, "flushing", "success")
	if count != 1 {
		t.Errorf("summary sample count = %d, want 1", count)
	}
	if sum != 1.5 {
		t.Errorf("summary sample sum = %v, want 1.5", sum)
	}
}

// Flush pushes the registry to the configured Pushgateway URL.
func TestFlush(t *testing.T) {
	t.Parallel()

	type pushRequestInfo struct {
		method  string
		path    string
		bodyLen int
	}

	reqCh := make(chan pushRequestInfo, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)

		reqCh <- pushRequestInfo{
			method:  r.Method,
			path:    r.URL.Path,
			bodyLen: len(body),
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("upload-job", server.URL)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	b.IncCounter("conductor_stage_total", 1, metrics.Labels{"stage": "streaming", "status": "success"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var got pushRequestInfo
	select {
	case got = <-reqCh:
	default:
		t.Fatalf("Flush() did not result in any HTTP request to the Pushgateway")
	}

	if got.method == "" || got.path == "" {
		t.Fatalf("push request incomplete: %+v", got)
	}
	if got.bodyLen == 0 {
		t.Fatalf("push request body length = 0, want > 0")
	}
}

// BenchmarkIncCounterStage measures the cost of incrementing the stage
// counter through the Backend abstraction.
func BenchmarkIncCounterStage(b *testing.B) {
	backend, err := NewBackend("conductor", "http://example.com")
	if err != nil {
		b.Fatalf("NewBackend() error = %v", err)
	}

	labels := metrics.Labels{"stage": "streaming", "status": "success"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		backend.IncCounter("conductor_stage_total", 1, labels)
	}
}
