package exporter

import "github.com/prometheus/client_golang/prometheus"

var (
	exportRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_pipeline_export_requests_total",
		Help: "Total export requests sent, by signal",
	}, []string{"signal"})

	exportErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_pipeline_export_errors_total",
		Help: "Total export errors, by classified error type",
	}, []string{"error_type"})

	exportBytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_pipeline_export_bytes_total",
		Help: "Total payload bytes sent to the collector, by encoding",
	}, []string{"encoding"})

	exportRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_pipeline_export_retries_total",
		Help: "Total export retry attempts",
	})

	exportDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "telemetry_pipeline_export_duration_seconds",
		Help:    "Export latency per batch, including retries",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
	})

	circuitStateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "telemetry_pipeline_circuit_state",
		Help: "Circuit breaker state (1 for the active state, 0 otherwise)",
	}, []string{"state"})

	circuitOpenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_pipeline_circuit_open_total",
		Help: "Total circuit breaker open transitions",
	})

	inFlightExports = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_pipeline_in_flight_exports",
		Help: "Current number of concurrent export calls",
	})
)

func init() {
	prometheus.MustRegister(exportRequestsTotal)
	prometheus.MustRegister(exportErrorsTotal)
	prometheus.MustRegister(exportBytesTotal)
	prometheus.MustRegister(exportRetriesTotal)
	prometheus.MustRegister(exportDurationSeconds)
	prometheus.MustRegister(circuitStateGauge)
	prometheus.MustRegister(circuitOpenTotal)
	prometheus.MustRegister(inFlightExports)

	exportRetriesTotal.Add(0)
	circuitOpenTotal.Add(0)
	inFlightExports.Set(0)
}

// setCircuitState marks the active breaker state on the gauge.
func setCircuitState(active CircuitState) {
	for _, s := range []CircuitState{CircuitClosed, CircuitOpen, CircuitHalfOpen} {
		v := 0.0
		if s == active {
			v = 1.0
		}
		circuitStateGauge.WithLabelValues(s.String()).Set(v)
	}
}
