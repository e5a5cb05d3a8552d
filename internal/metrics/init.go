package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, op := range []string{"initialize_schema", "create_catalog", "add_repository",
		"insert_files", "delete_files", "regenerate_set", "sort_set", "copy_set", "add_tags",
		"remove_tags", "set_mark", "mark_all", "invert_marks", "remove_entry", "move_entry", "vacuum"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, outcome := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(outcome)
	}

	for _, change := range []string{"added", "removed"} {
		SyncFilesTotal.WithLabelValues(change)
	}

	for _, lifetime := range []string{"transient", "persisted"} {
		SetRegenerationsTotal.WithLabelValues(lifetime)
		SetSize.WithLabelValues(lifetime)
	}

	for _, op := range []string{"remove", "move", "mark"} {
		CursorMutationsTotal.WithLabelValues(op)
	}

	for _, kind := range []string{"filter", "sort"} {
		QueryCompilationsTotal.WithLabelValues(kind, "success")
		QueryCompilationsTotal.WithLabelValues(kind, "error")
	}

	for _, source := range []string{"sync", "worker"} {
		for _, status := range []string{"success", "decode_error", "write_error"} {
			ThumbnailGenerationsTotal.WithLabelValues(source, status)
		}
	}

	for _, phase := range []string{"decode", "resize", "encode"} {
		ThumbnailGenerationDuration.WithLabelValues(phase)
	}

	for _, op := range []string{"stat", "open", "readdir"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
	}
}
