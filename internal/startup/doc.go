// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// [LoadConfig] reads a YAML file (default ~/.cobiv/cobiv.yml, written with
// default values when missing), then loads a .env file from the working
// directory if one exists, and finally applies these environment overrides:
//
//   - COBIV_DATABASE_PATH: catalog database file (database.path)
//   - COBIV_THUMBNAIL_DIR: thumbnail cache directory (thumbnails.path)
//   - COBIV_THUMBNAIL_SIZE: thumbnail long side in pixels (thumbnails.image_size, default 120)
//   - COBIV_REPOSITORY: default repository added on first run (repository, default ~/Pictures)
//   - COBIV_EXTENSIONS: comma separated image extensions (extensions)
//   - COBIV_LOG_FILE: rotating log file, stderr when empty (log.file)
//   - COBIV_METRICS_ADDR: Prometheus endpoint address, disabled when empty (metrics.addr)
//   - LOG_LEVEL / DEBUG: see package logging
//
// Other keys in the file stay reachable through [Config.Lookup] with dotted
// names such as "plugins.viewer.zoom".
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
//   - [LogDatabaseInit]: database initialization timing
//   - [LogThumbnailInit]: thumbnail cache directory and size
//   - [LogSyncStarted], [LogSyncFinished]: catalog synchronization
//   - [LogMetricsServer]: metrics endpoint and its routes (debug level)
//   - [LogShutdownInitiated], [LogShutdownComplete]: graceful shutdown
package startup
