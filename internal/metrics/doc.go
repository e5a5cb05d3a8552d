// Package metrics provides Prometheus instrumentation for the catalog.
//
// All metrics are prefixed with "cobiv_" and registered through promauto at
// package initialization.
//
// # Metric Categories
//
// ## Database Metrics
//
// Query counters and latency per catalog operation, transaction duration by
// outcome (commit or rollback) and rows affected by write operations.
//
// ## Sync Metrics
//
// Runs, the running gauge, files added and removed, tags imported from
// embedded metadata, failed repositories and cancellations.
//
// ## Set and Cursor Metrics
//
// Ordered set regenerations and sizes by lifetime (transient working set or
// persisted named set), cursor structural mutations and query compilations.
//
// ## Catalog Content Metrics
//
// Gauges for files, tags, named sets and repositories. They are refreshed by a
// Collector that polls a StatsProvider (the catalog store) on an interval.
//
// ## Thumbnail Metrics
//
// Generations by source and status, phase durations, cache hits and misses,
// invalidations, background queue depth and worker state.
//
// # Usage
//
//	metrics.InitializeMetrics()
//	collector := metrics.NewCollector(db, time.Minute)
//	collector.Start()
//	defer collector.Stop()
package metrics
