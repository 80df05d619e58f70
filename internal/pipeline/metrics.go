package pipeline

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsReceivedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_pipeline_events_received_total",
		Help: "Total events admitted into the queue, by kind",
	}, []string{"kind"})

	exportedEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_pipeline_exported_events_total",
		Help: "Total events delivered to the collector",
	})

	exportedBatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_pipeline_exported_batches_total",
		Help: "Total successful batch exports",
	})

	exportFailedBatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_pipeline_export_failed_batches_total",
		Help: "Total batches dropped after exhausting their retry budget",
	})

	lostOnShutdownTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_pipeline_lost_on_shutdown_total",
		Help: "Total events abandoned because the shutdown deadline arrived first",
	})

	batchSizeEvents = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "telemetry_pipeline_batch_size_events",
		Help:    "Events per exported batch",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(eventsReceivedTotal)
	prometheus.MustRegister(exportedEventsTotal)
	prometheus.MustRegister(exportedBatchesTotal)
	prometheus.MustRegister(exportFailedBatchesTotal)
	prometheus.MustRegister(lostOnShutdownTotal)
	prometheus.MustRegister(batchSizeEvents)

	exportedEventsTotal.Add(0)
	exportedBatchesTotal.Add(0)
	exportFailedBatchesTotal.Add(0)
	lostOnShutdownTotal.Add(0)
}
