// Package observability holds the process-wide Prometheus collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	importFilesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cadence",
		Subsystem: "ingest",
		Name:      "files_total",
		Help:      "Source files processed, grouped by outcome.",
	}, []string{"outcome"})

	importDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cadence",
		Subsystem: "ingest",
		Name:      "batch_duration_seconds",
		Help:      "Wall time of a directory import.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	})

	lastImportGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cadence",
		Subsystem: "ingest",
		Name:      "last_activity_imported_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity import.",
	})

	activityWritesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cadence",
		Subsystem: "store",
		Name:      "activity_writes_total",
		Help:      "Activity writes, grouped by last-writer-wins outcome.",
	}, []string{"outcome"})

	metricsCacheCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cadence",
		Subsystem: "horizon",
		Name:      "metrics_cache_lookups_total",
		Help:      "Per-activity metrics cache lookups, grouped by result.",
	}, []string{"result"})

	beliefOpsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cadence",
		Subsystem: "beliefs",
		Name:      "operations_total",
		Help:      "Belief store operations, grouped by operation and result.",
	}, []string{"op", "result"})

	eventsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cadence",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Change events published, grouped by sink and result.",
	}, []string{"sink", "result"})

	eventsDroppedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cadence",
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Change events dropped because the outbox was full, grouped by type.",
	}, []string{"type"})

	outboxDepthGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cadence",
		Subsystem: "events",
		Name:      "outbox_depth",
		Help:      "Events waiting in the outbox.",
	})
)

func init() {
	prometheus.MustRegister(importFilesCounter, importDuration, lastImportGauge,
		activityWritesCounter, metricsCacheCounter, beliefOpsCounter, eventsCounter,
		eventsDroppedCounter, outboxDepthGauge)
}

// RecordImportedFile counts one processed source file.
func RecordImportedFile(outcome string) {
	importFilesCounter.WithLabelValues(outcome).Inc()
}

// ObserveImportBatch records the duration of a directory import.
func ObserveImportBatch(d time.Duration) {
	importDuration.Observe(d.Seconds())
}

// RecordActivityImported updates the last import watermark.
func RecordActivityImported(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastImportGauge.Set(float64(ts.Unix()))
}

// RecordActivityWrite counts an activity write by outcome.
func RecordActivityWrite(outcome string) {
	if outcome == "" {
		return
	}
	activityWritesCounter.WithLabelValues(outcome).Inc()
}

// RecordMetricsCache counts a cache hit or miss.
func RecordMetricsCache(hit bool) {
	if hit {
		metricsCacheCounter.WithLabelValues("hit").Inc()
		return
	}
	metricsCacheCounter.WithLabelValues("miss").Inc()
}

// RecordBeliefOp counts a belief operation.
func RecordBeliefOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	beliefOpsCounter.WithLabelValues(op, result).Inc()
}

// RecordEvent counts a published change event.
func RecordEvent(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	eventsCounter.WithLabelValues(sink, result).Inc()
}

// RecordEventDropped counts an event dropped by a full outbox.
func RecordEventDropped(eventType string) {
	eventsDroppedCounter.WithLabelValues(eventType).Inc()
}

// SetOutboxDepth reports the number of queued events.
func SetOutboxDepth(n int) {
	outboxDepthGauge.Set(float64(n))
}
