package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"cobiv/internal/logging"
	"cobiv/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Set regeneration and copies touch every row of a set
const longTimeout = 2 * time.Minute

var (
	// ErrAlreadyExists reports a uniqueness conflict on catalog, repository or set creation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound reports a missing catalog, set or file.
	ErrNotFound = errors.New("not found")

	// ErrReadOnlySet reports an attempt to regenerate a set flagged read-only.
	ErrReadOnlySet = errors.New("set is read-only")
)

// Database manages the catalog: files, tags, repositories and ordered sets.
//
// The working set and the mark set live in TEMP tables, which SQLite scopes
// to a single connection. The pool is therefore pinned to one connection
// for the lifetime of the Database.
//
// Access to that connection goes through gate. A batch holds it exclusively
// from BeginBatch to EndBatch; every other call waits for the open batch to
// end before its own timeout starts, so a long sync delays commands but
// never makes them fail. Nothing may call back into the Database while it
// holds the gate.
type Database struct {
	db      *sql.DB
	dbPath  string
	created bool
	gate    sync.RWMutex
	txStart time.Time // owned by the holder of the exclusive gate
}

// New opens the catalog at dbPath, creating the schema on first use.
// The parent directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection, never recycled: TEMP tables die with their connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS catalog (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS repository (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	catalog_key INTEGER NOT NULL,
	path TEXT NOT NULL,
	recursive INTEGER NOT NULL DEFAULT 1,
	UNIQUE(catalog_key, path)
);

CREATE TABLE IF NOT EXISTS file (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_key INTEGER NOT NULL,
	name TEXT NOT NULL UNIQUE,
	filename TEXT NOT NULL,
	path TEXT NOT NULL,
	ext TEXT NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	file_date INTEGER NOT NULL DEFAULT 0,
	searchable INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_file_repo ON file(repo_key);

CREATE TABLE IF NOT EXISTS tag (
	file_key INTEGER NOT NULL,
	kind TEXT NOT NULL,
	value TEXT NOT NULL,
	UNIQUE(file_key, kind, value)
);

CREATE INDEX IF NOT EXISTS idx_tag_kind_value ON tag(kind, value);

CREATE TABLE IF NOT EXISTS set_head (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	readonly INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS set_detail (
	set_head_key INTEGER NOT NULL,
	position INTEGER NOT NULL,
	file_key INTEGER NOT NULL
);

-- Not unique: position shifts update rows one at a time.
CREATE INDEX IF NOT EXISTS idx_set_detail_pos ON set_detail(set_head_key, position);
CREATE UNIQUE INDEX IF NOT EXISTS idx_set_detail_file ON set_detail(set_head_key, file_key);
CREATE INDEX IF NOT EXISTS idx_set_detail_file_key ON set_detail(file_key);
`

const tempSchema = `
CREATE TEMP TABLE IF NOT EXISTS current_set (
	set_head_key INTEGER NOT NULL DEFAULT 0,
	position INTEGER NOT NULL,
	file_key INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS temp.idx_current_set_pos ON current_set(position);
CREATE UNIQUE INDEX IF NOT EXISTS temp.idx_current_set_file ON current_set(file_key);

CREATE TEMP TABLE IF NOT EXISTS marked (
	file_key INTEGER PRIMARY KEY
);
`

func (d *Database) initialize(ctx context.Context) error {
	done := observeQuery("initialize_schema")

	initialized, err := d.probe(ctx)
	if err != nil {
		done(err)
		return err
	}

	if !initialized {
		logging.Info("Creating catalog schema")
		if _, err = d.db.ExecContext(ctx, schema); err != nil {
			done(err)
			return err
		}
		d.created = true
	}

	_, err = d.db.ExecContext(ctx, tempSchema)
	done(err)
	return err
}

// probe reports whether the catalog schema already exists.
func (d *Database) probe(ctx context.Context) (bool, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'catalog'",
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to probe schema: %w", err)
	}
	return count > 0, nil
}

// Created reports whether New created the schema rather than finding it.
func (d *Database) Created() bool {
	return d.created
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// BeginBatch starts a transaction for batch operations, waiting for any
// open batch to end first. The caller must call EndBatch exactly once.
func (d *Database) BeginBatch(ctx context.Context) (*sql.Tx, error) {
	d.gate.Lock()
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		d.gate.Unlock()
		return nil, err
	}
	d.txStart = time.Now()
	return tx, nil
}

// EndBatch commits the transaction, or rolls it back when err is non-nil,
// and lets waiting callers through.
func (d *Database) EndBatch(tx *sql.Tx, err error) error {
	defer d.gate.Unlock()
	return finishTx(tx, d.txStart, err)
}

func finishTx(tx *sql.Tx, start time.Time, err error) error {
	duration := time.Since(start).Seconds()

	if err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(duration)
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(duration)
	return tx.Commit()
}

// shared waits for any open batch to end, then bounds the statements that
// follow by timeout. release must be called when they are done.
func (d *Database) shared(ctx context.Context, timeout time.Duration) (context.Context, func()) {
	d.gate.RLock()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		d.gate.RUnlock()
	}
}

// exclusive is like shared but keeps every other caller out until release.
// Callers of inTx and Vacuum use it.
func (d *Database) exclusive(ctx context.Context, timeout time.Duration) (context.Context, func()) {
	d.gate.Lock()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		d.gate.Unlock()
	}
}

// inTx runs fn inside a transaction, recording the operation's query
// metrics. The caller holds the gate through exclusive.
func (d *Database) inTx(ctx context.Context, operation string, fn func(tx *sql.Tx) error) error {
	done := observeQuery(operation)

	start := time.Now()
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		done(err)
		return err
	}

	err = finishTx(tx, start, fn(tx))
	done(err)
	return err
}

// GetStats returns catalog counts for the metrics collector.
func (d *Database) GetStats() metrics.Stats {
	ctx, release := d.shared(context.Background(), defaultTimeout)
	defer release()

	var stats metrics.Stats
	err := d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM file),
			(SELECT COUNT(*) FROM tag),
			(SELECT COUNT(*) FROM set_head),
			(SELECT COUNT(*) FROM repository)
	`).Scan(&stats.TotalFiles, &stats.TotalTags, &stats.TotalSets, &stats.TotalRepositories)
	if err != nil {
		logging.Warn("failed to collect catalog stats: %v", err)
	}
	return stats
}

// Vacuum optimizes the database.
func (d *Database) Vacuum(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("vacuum", start, err) }()

	ctx, release := d.exclusive(ctx, longTimeout)
	defer release()

	_, err = d.db.ExecContext(ctx, "VACUUM")
	return err
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// observeQuery starts timing operation; call the returned func with the outcome.
func observeQuery(operation string) func(error) {
	start := time.Now()
	return func(err error) {
		recordQuery(operation, start, err)
	}
}

func observeRows(operation string, result sql.Result) {
	if result == nil {
		return
	}
	if rows, err := result.RowsAffected(); err == nil && rows > 0 {
		metrics.DBRowsAffected.WithLabelValues(operation).Observe(float64(rows))
	}
}

// isUniqueViolation reports whether err is a SQLite uniqueness failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}
	return false
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logging.Error("error closing rows: %v", err)
	}
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("%s is read-only! Mode: %v - this will cause write failures", path, info.Mode())
			if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
				logging.Error("Failed to fix permissions on %s: %v", path, chmodErr)
			} else {
				logging.Info("Fixed permissions on %s", path)
			}
		}
	}

	return nil
}
