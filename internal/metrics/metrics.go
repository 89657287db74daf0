// Package metrics exports the per-table serializer and subscription hub
// observability spec.md assumes exists, in the promauto style of the
// teacher's internal/fraud/metrics.go.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SerializerQueueDepth is the number of requests waiting on a table's
	// serializer queue, sampled each time the serializer dequeues a request.
	SerializerQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "holdem_serializer_queue_depth",
		Help: "Number of requests waiting on a table's serializer queue",
	}, []string{"table_id"})

	// ApplyLatency measures how long one dequeued request took to
	// validate, apply, and persist.
	ApplyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "holdem_serializer_apply_latency_seconds",
		Help:    "Time spent applying one request in the table serializer",
		Buckets: prometheus.DefBuckets,
	}, []string{"request_kind"})

	// RevisionsPublished counts every new revision a table's serializer
	// has published to the subscription hub.
	RevisionsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "holdem_serializer_revisions_published_total",
		Help: "Total number of revisions published by a table's serializer",
	}, []string{"table_id"})

	// ShowdownsProcessed counts ProcessShowdown calls, split by whether the
	// call actually distributed a pot or was an idempotent no-op.
	ShowdownsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "holdem_showdowns_processed_total",
		Help: "Total number of showdown calls, by outcome",
	}, []string{"outcome"})

	// PersistenceRetries counts retry-once attempts after a transient
	// persistence failure.
	PersistenceRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "holdem_serializer_persistence_retries_total",
		Help: "Total number of persistence retries after a transient failure",
	}, []string{"table_id", "result"})

	// TablesPoisoned counts tables that transitioned to poisoned after a
	// Fatal chip-conservation violation.
	TablesPoisoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "holdem_tables_poisoned_total",
		Help: "Total number of tables that were poisoned by a fatal invariant violation",
	})

	// HubSubscribers tracks live subscription-hub subscriber counts per
	// table and stream.
	HubSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "holdem_hub_subscribers",
		Help: "Number of live subscribers by table and stream",
	}, []string{"table_id", "stream"})

	// HubDroppedRevisions counts revisions dropped for a slow subscriber
	// under the hub's best-effort delivery policy.
	HubDroppedRevisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "holdem_hub_dropped_revisions_total",
		Help: "Total number of revisions dropped for a slow subscriber",
	}, []string{"table_id", "stream"})
)

// RecordApply records one serializer apply's latency.
func RecordApply(requestKind string, seconds float64) {
	ApplyLatency.WithLabelValues(requestKind).Observe(seconds)
}

// RecordRevisionPublished increments the revision counter for a table.
func RecordRevisionPublished(tableID string) {
	RevisionsPublished.WithLabelValues(tableID).Inc()
}

// RecordShowdown records a showdown call's outcome ("distributed" or
// "idempotent_noop").
func RecordShowdown(outcome string) {
	ShowdownsProcessed.WithLabelValues(outcome).Inc()
}

// RecordPersistenceRetry records a retry attempt's result ("retrying" when a
// failed attempt is about to be retried, "succeeded" when a retry worked).
func RecordPersistenceRetry(tableID, result string) {
	PersistenceRetries.WithLabelValues(tableID, result).Inc()
}

// RecordTablePoisoned records a table transitioning to poisoned.
func RecordTablePoisoned() {
	TablesPoisoned.Inc()
}

// SetQueueDepth samples the current serializer queue depth for a table.
func SetQueueDepth(tableID string, depth int) {
	SerializerQueueDepth.WithLabelValues(tableID).Set(float64(depth))
}

// SetHubSubscribers samples the current subscriber count for a table's
// stream.
func SetHubSubscribers(tableID, stream string, count int) {
	HubSubscribers.WithLabelValues(tableID, stream).Set(float64(count))
}

// RecordHubDroppedRevision records one dropped revision for a slow
// subscriber.
func RecordHubDroppedRevision(tableID, stream string) {
	HubDroppedRevisions.WithLabelValues(tableID, stream).Inc()
}
