// Package metrics defines the coordinator's Prometheus instruments.
//
// All collectors are registered on a package-level registry exposed through
// Handler, so the /metrics endpoint serves exactly what this package defines
// and tests can scrape it without touching the global default registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	// JobsQueued counts jobs admitted to the queue.
	JobsQueued = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "folio",
		Name:      "jobs_queued_total",
		Help:      "Jobs admitted to the archive queue.",
	})

	// DispatchesLeased counts dispatches handed to workers.
	DispatchesLeased = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "folio",
		Name:      "dispatches_leased_total",
		Help:      "Job leases handed out to workers.",
	})

	// DispatchFailures counts explicit worker failure reports.
	DispatchFailures = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "folio",
		Name:      "dispatch_failures_total",
		Help:      "Dispatch failures reported by workers.",
	})

	// JobsExhausted counts jobs failed after using their whole dispatch budget.
	JobsExhausted = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "folio",
		Name:      "jobs_exhausted_total",
		Help:      "Jobs failed permanently after exhausting their dispatch budget.",
	})

	// VersionsStored counts stored work versions.
	VersionsStored = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "folio",
		Name:      "versions_stored_total",
		Help:      "Work versions written to the version store.",
	})

	// DuplicatesDetected counts submissions identical to the current HEAD.
	DuplicatesDetected = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "folio",
		Name:      "duplicates_detected_total",
		Help:      "Submissions whose content matched the current HEAD.",
	})

	// ObjectsStored counts supporting-object payloads accepted.
	ObjectsStored = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "folio",
		Name:      "objects_stored_total",
		Help:      "Supporting-object payloads accepted from workers.",
	})

	// BlobOperationDuration observes blob-store call latency per operation.
	BlobOperationDuration = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "folio",
		Name:      "blob_operation_duration_seconds",
		Help:      "Latency of blob store operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "outcome"})
)

// Handler returns the HTTP handler serving the coordinator's metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// BlobMetrics adapts the registry to the blob store's Metrics interface.
type BlobMetrics struct{}

// ObserveOperation records one blob-store call.
func (BlobMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	BlobOperationDuration.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}
