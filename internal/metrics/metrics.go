// Package metrics centralizes the Prometheus label schema and bucket
// definitions so every package that registers a metric uses the same
// shape.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TableLabels is the label set every per-table counter/histogram
// carries.
var TableLabels = []string{"table"}

// LatencyBuckets covers sub-second to multi-minute operations (schema
// reconcile, bulk poll).
var LatencyBuckets = []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 300, 600}

var (
	SyncInserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gurglefish_sync_inserts_total",
		Help: "rows inserted during incremental sync, by table",
	}, TableLabels)
	SyncUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gurglefish_sync_updates_total",
		Help: "rows updated during incremental sync, by table",
	}, TableLabels)
	SyncDeletes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gurglefish_sync_deletes_total",
		Help: "rows deleted during incremental sync (tombstone + scrub), by table",
	}, TableLabels)
	SyncErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gurglefish_sync_errors_total",
		Help: "errors encountered syncing a table",
	}, TableLabels)
	SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gurglefish_sync_duration_seconds",
		Help:    "wall-clock time spent syncing a table",
		Buckets: LatencyBuckets,
	}, TableLabels)
	APICallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gurglefish_remote_api_calls_total",
		Help: "remote API round trips, by table",
	}, TableLabels)
	SchemaChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gurglefish_schema_changes_total",
		Help: "column add/drop operations applied, by table",
	}, append(TableLabels, "op"))
)
