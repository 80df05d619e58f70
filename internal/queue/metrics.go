package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_pipeline_queue_depth",
		Help: "Current number of events buffered in the queue",
	})

	queueCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_pipeline_queue_capacity",
		Help: "Configured queue capacity",
	})

	droppedOldestTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_pipeline_dropped_oldest_total",
		Help: "Total events evicted from the queue head under the drop_oldest policy",
	})

	droppedNewestTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_pipeline_dropped_newest_total",
		Help: "Total incoming events discarded under the drop_newest policy",
	})

	enqueueBlockedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_pipeline_enqueue_blocked_total",
		Help: "Total enqueue calls that had to wait under the block policy",
	})
)

func init() {
	prometheus.MustRegister(queueDepth)
	prometheus.MustRegister(queueCapacity)
	prometheus.MustRegister(droppedOldestTotal)
	prometheus.MustRegister(droppedNewestTotal)
	prometheus.MustRegister(enqueueBlockedTotal)

	droppedOldestTotal.Add(0)
	droppedNewestTotal.Add(0)
	enqueueBlockedTotal.Add(0)
}
