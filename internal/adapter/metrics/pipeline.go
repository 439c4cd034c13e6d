package metrics

import (
	"time"

	"github.com/SYSCYCLE/apk-builder/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics holds Prometheus metrics for the build pipeline, the
// external tools it drives and the output janitor.
type PipelineMetrics struct {
	JobsTotal       *prometheus.CounterVec
	JobDuration     prometheus.Histogram
	ToolDuration    *prometheus.HistogramVec
	ToolFailures    *prometheus.CounterVec
	UnsignedShipped prometheus.Counter
	OutputSwept     prometheus.Counter
	BreakerState    prometheus.Gauge
}

// NewPipelineMetrics creates and registers pipeline metrics on the given registry.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	toolBuckets := []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300}

	m := &PipelineMetrics{
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of build jobs, by outcome.",
		}, []string{"outcome"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "End-to-end duration of build jobs in seconds.",
			Buckets:   toolBuckets,
		}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Duration of external tool invocations in seconds, by stage.",
			Buckets:   toolBuckets,
		}, []string{"stage"}),
		ToolFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_failures_total",
			Help:      "Total number of failed external tool invocations, by stage.",
		}, []string{"stage"}),
		UnsignedShipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unsigned_fallback_total",
			Help:      "Total number of jobs that shipped the unsigned package.",
		}),
		OutputSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_swept_total",
			Help:      "Total number of expired artifacts removed from the output directory.",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "toolchain_breaker_state",
			Help:      "Toolchain circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
	}

	reg.MustRegister(m.JobsTotal, m.JobDuration, m.ToolDuration, m.ToolFailures,
		m.UnsignedShipped, m.OutputSwept, m.BreakerState)
	return m
}

// JobFinished records one completed Generate call.
func (m *PipelineMetrics) JobFinished(outcome string, d time.Duration) {
	m.JobsTotal.WithLabelValues(outcome).Inc()
	m.JobDuration.Observe(d.Seconds())
}

func (m *PipelineMetrics) UnsignedFallback() {
	m.UnsignedShipped.Inc()
}

// ToolFinished records one external tool invocation.
func (m *PipelineMetrics) ToolFinished(stage domain.Stage, d time.Duration, err error) {
	m.ToolDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
	if err != nil {
		m.ToolFailures.WithLabelValues(string(stage)).Inc()
	}
}

// BreakerStateChanged maps the breaker's state name onto the gauge.
func (m *PipelineMetrics) BreakerStateChanged(state string) {
	m.BreakerState.Set(breakerStateValue(state))
}

// Swept is the janitor's sweep hook.
func (m *PipelineMetrics) Swept(n int) {
	m.OutputSwept.Add(float64(n))
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
