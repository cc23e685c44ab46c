package kernel

import (
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Logger is the minimal structured logging surface the service emits to.
// Args are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

// MetricsRecorder observes service operations. Implementations must be safe
// for concurrent use.
type MetricsRecorder interface {
	ObserveOperation(op string, d time.Duration, success bool)
}

// NopMetricsRecorder discards all observations.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) ObserveOperation(string, time.Duration, bool) {}

// ExpvarMetricsRecorder publishes per-operation counters and cumulative
// latency under an expvar map, one map per recorder name.
type ExpvarMetricsRecorder struct {
	mu   sync.Mutex
	vars *expvar.Map
}

// NewExpvarMetricsRecorder publishes (or reuses) the expvar map under name.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	var m *expvar.Map
	if existing := expvar.Get(name); existing != nil {
		if asMap, ok := existing.(*expvar.Map); ok {
			m = asMap
		}
	}
	if m == nil {
		m = expvar.NewMap(name)
	}
	return &ExpvarMetricsRecorder{vars: m}
}

// ObserveOperation bumps `<op>_total`, `<op>_failures` on failure and adds
// the duration to `<op>_nanos`.
func (r *ExpvarMetricsRecorder) ObserveOperation(op string, d time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vars.Add(op+"_total", 1)
	if !success {
		r.vars.Add(op+"_failures", 1)
	}
	r.vars.Add(op+"_nanos", int64(d))
}

// PrometheusMetricsRecorder exports operation counts and latency histograms
// through a prometheus registry.
type PrometheusMetricsRecorder struct {
	ops       *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the collectors with reg (use
// prometheus.DefaultRegisterer for the process-global registry).
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notebookcore",
		Name:      "operations_total",
		Help:      "Service operations by name and outcome.",
	}, []string{"op", "outcome"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "notebookcore",
		Name:      "operation_duration_seconds",
		Help:      "Service operation latency by name.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
	for _, c := range []prometheus.Collector{ops, durations} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return &PrometheusMetricsRecorder{ops: ops, durations: durations}, nil
}

// ObserveOperation records one operation outcome and its latency.
func (r *PrometheusMetricsRecorder) ObserveOperation(op string, d time.Duration, success bool) {
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	r.ops.WithLabelValues(op, outcome).Inc()
	r.durations.WithLabelValues(op).Observe(d.Seconds())
}

// Tracer receives one record per completed service operation.
type Tracer interface {
	Trace(op string, start time.Time, d time.Duration, fields map[string]any)
}

// NopTracer discards all records.
type NopTracer struct{}

func (NopTracer) Trace(string, time.Time, time.Duration, map[string]any) {}

// JSONTraceTracer writes one JSON object per operation to an io.Writer,
// suitable for piping into a line-oriented trace sink.
type JSONTraceTracer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONTraceTracer wraps w; the writer is not closed by the tracer.
func NewJSONTraceTracer(w io.Writer) *JSONTraceTracer {
	return &JSONTraceTracer{enc: json.NewEncoder(w)}
}

type traceRecord struct {
	Op       string         `json:"op"`
	Start    time.Time      `json:"start"`
	Duration string         `json:"duration"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Trace encodes one record; encoding failures are dropped since tracing is
// best-effort.
func (t *JSONTraceTracer) Trace(op string, start time.Time, d time.Duration, fields map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.enc.Encode(traceRecord{Op: op, Start: start.UTC(), Duration: d.String(), Fields: fields})
}
