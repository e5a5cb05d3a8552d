package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cobiv_db_queries_total",
			Help: "Total number of catalog queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cobiv_db_query_duration_seconds",
			Help:    "Catalog query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cobiv_db_transaction_duration_seconds",
			Help:    "Catalog transaction duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"outcome"}, // "commit", "rollback"
	)

	DBRowsAffected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cobiv_db_rows_affected",
			Help:    "Rows affected by catalog write operations",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"operation"},
	)
)

// Sync metrics
var (
	SyncRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cobiv_sync_runs_total",
			Help: "Total number of catalog synchronization runs",
		},
	)

	SyncIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cobiv_sync_running",
			Help: "Whether a synchronization is currently running (1 = running, 0 = idle)",
		},
	)

	SyncFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cobiv_sync_files_total",
			Help: "Files added or removed by synchronization",
		},
		[]string{"change"}, // "added", "removed"
	)

	SyncTagsImported = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cobiv_sync_tags_imported_total",
			Help: "Tags imported from embedded image metadata",
		},
	)

	SyncFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cobiv_sync_failures_total",
			Help: "Repositories that failed to synchronize",
		},
	)

	SyncCancellations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cobiv_sync_cancellations_total",
			Help: "Synchronizations stopped by cooperative cancellation",
		},
	)

	SyncLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cobiv_sync_last_run_duration_seconds",
			Help: "Duration of the last synchronization in seconds",
		},
	)
)

// Set and cursor metrics
var (
	SetRegenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cobiv_set_regenerations_total",
			Help: "Ordered set regenerations",
		},
		[]string{"lifetime"}, // "transient", "persisted"
	)

	SetSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cobiv_set_size",
			Help: "Number of entries in the last regenerated set",
		},
		[]string{"lifetime"},
	)

	CursorMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cobiv_cursor_mutations_total",
			Help: "Structural mutations performed through a cursor",
		},
		[]string{"operation"}, // "remove", "move", "mark"
	)

	QueryCompilationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cobiv_query_compilations_total",
			Help: "Criteria and sort compilations",
		},
		[]string{"kind", "status"}, // kind: "filter", "sort"
	)
)

// Catalog content metrics
var (
	CatalogFilesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cobiv_catalog_files",
			Help: "Number of files in the catalog",
		},
	)

	CatalogTagsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cobiv_catalog_tags",
			Help: "Number of tag rows in the catalog",
		},
	)

	CatalogSetsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cobiv_catalog_named_sets",
			Help: "Number of persisted named sets",
		},
	)

	CatalogRepositoriesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cobiv_catalog_repositories",
			Help: "Number of scan repositories",
		},
	)
)

// Thumbnail metrics
var (
	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cobiv_thumbnail_generations_total",
			Help: "Total number of thumbnail generations",
		},
		[]string{"source", "status"}, // source: "sync", "worker"; status: "success", "decode_error", "write_error"
	)

	ThumbnailGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cobiv_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"phase"}, // "decode", "resize", "encode"
	)

	ThumbnailCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cobiv_thumbnail_cache_hits_total",
			Help: "Thumbnail lookups answered from the cache directory",
		},
	)

	ThumbnailCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cobiv_thumbnail_cache_misses_total",
			Help: "Thumbnail lookups that required generation",
		},
	)

	ThumbnailInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cobiv_thumbnail_invalidations_total",
			Help: "Cached thumbnails removed after a content change",
		},
	)

	ThumbnailQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cobiv_thumbnail_queue_depth",
			Help: "Pending background thumbnail requests",
		},
	)

	ThumbnailWorkerRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cobiv_thumbnail_worker_running",
			Help: "Whether the background thumbnail worker is running (1 = running, 0 = stopped)",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cobiv_filesystem_retry_attempts_total",
			Help: "Filesystem operations retried after a stale handle",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cobiv_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after exhausting retries",
		},
		[]string{"operation"},
	)
)
