package metrics

import "github.com/prometheus/client_golang/prometheus"

// ErrorMetrics counts structured errors returned to HTTP clients.
type ErrorMetrics struct {
	ErrorsTotal *prometheus.CounterVec
}

func NewErrorMetrics(reg prometheus.Registerer) *ErrorMetrics {
	m := &ErrorMetrics{
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Total number of error responses, by error type.",
		}, []string{"type"}),
	}

	reg.MustRegister(m.ErrorsTotal)
	return m
}

func (m *ErrorMetrics) Record(errType string) {
	m.ErrorsTotal.WithLabelValues(errType).Inc()
}
