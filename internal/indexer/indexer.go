package indexer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"

	"cobiv/internal/database"
	"cobiv/internal/events"
	"cobiv/internal/filesystem"
	"cobiv/internal/logging"
	"cobiv/internal/media"
	"cobiv/internal/mediatypes"
	"cobiv/internal/metrics"
	"cobiv/internal/progress"
)

var (
	// ErrCancelled is returned by Sync when Cancel stopped it.
	ErrCancelled = errors.New("sync cancelled")

	// ErrAlreadyRunning is returned by Sync while another sync is in progress.
	ErrAlreadyRunning = errors.New("sync already running")
)

// defaultSetQuery lists every cataloged file in insertion order.
const defaultSetQuery = "SELECT id FROM file ORDER BY id"

// TagReader extracts embedded tag values from an image file.
type TagReader func(path string) ([]string, error)

// Options configures an Indexer. Zero values select the defaults.
type Options struct {
	// Extensions is the allow-list of image extensions.
	Extensions mediatypes.ExtensionSet

	// Ignore holds glob patterns matched against entry base names.
	// Matching directories are not descended into.
	Ignore []string

	Reporter progress.Reporter
	ReadTags TagReader
	Retry    filesystem.RetryConfig

	// Events receives a content change for every removed file.
	Events *events.Bus
}

// SyncResult summarizes one sync run.
type SyncResult struct {
	RunID        uuid.UUID     `json:"runId"`
	Repositories int           `json:"repositories"`
	Added        int           `json:"added"`
	Removed      int           `json:"removed"`
	TagsImported int           `json:"tagsImported"`
	Failed       int           `json:"failed"`
	Cancelled    bool          `json:"cancelled"`
	DefaultSet   bool          `json:"defaultSet"`
	Duration     time.Duration `json:"duration"`
}

// Changed reports whether the run added or removed any file.
func (r SyncResult) Changed() bool {
	return r.Added+r.Removed > 0
}

// Indexer runs catalog syncs. At most one sync runs at a time.
type Indexer struct {
	db       *database.Database
	exts     mediatypes.ExtensionSet
	ignore   []glob.Glob
	reporter progress.Reporter
	readTags TagReader
	retry    filesystem.RetryConfig
	bus      *events.Bus

	runMu     sync.Mutex
	running   bool
	cancelled atomic.Bool
	wg        sync.WaitGroup

	lastMu     sync.Mutex
	lastResult SyncResult
	lastErr    error
}

// New creates an Indexer over db.
func New(db *database.Database, opts Options) (*Indexer, error) {
	idx := &Indexer{
		db:       db,
		exts:     opts.Extensions,
		reporter: progress.OrDiscard(opts.Reporter),
		readTags: opts.ReadTags,
		retry:    opts.Retry,
		bus:      opts.Events,
	}

	if len(idx.exts) == 0 {
		idx.exts = mediatypes.NewExtensionSet(nil)
	}
	if idx.readTags == nil {
		idx.readTags = media.ReadEmbeddedTags
	}
	if idx.retry.MaxRetries == 0 && idx.retry.InitialBackoff == 0 {
		idx.retry = filesystem.DefaultRetryConfig()
	}

	for _, pattern := range opts.Ignore {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
		}
		idx.ignore = append(idx.ignore, g)
	}

	return idx, nil
}

// Start runs a sync in the background. Use Wait to join it and LastResult
// to read its outcome. It returns ErrAlreadyRunning without starting
// anything when a sync is in progress.
func (idx *Indexer) Start(ctx context.Context) error {
	if !idx.tryStart() {
		return ErrAlreadyRunning
	}

	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		defer idx.finish()

		_, err := idx.run(ctx)
		if err != nil && !errors.Is(err, ErrCancelled) {
			logging.Error("Catalog sync failed: %v", err)
		}
	}()
	return nil
}

// Wait blocks until the background sync started by Start returns.
func (idx *Indexer) Wait() {
	idx.wg.Wait()
}

// Sync runs a sync and waits for it.
func (idx *Indexer) Sync(ctx context.Context) (SyncResult, error) {
	if !idx.tryStart() {
		return SyncResult{}, ErrAlreadyRunning
	}
	defer idx.finish()

	return idx.run(ctx)
}

// Cancel asks the running sync to stop at the next file boundary.
// It has no effect when no sync is running.
func (idx *Indexer) Cancel() {
	if !idx.Running() {
		return
	}
	idx.cancelled.Store(true)
	logging.Info("Catalog sync cancellation requested")
}

// Running reports whether a sync is in progress.
func (idx *Indexer) Running() bool {
	idx.runMu.Lock()
	defer idx.runMu.Unlock()
	return idx.running
}

// LastResult returns the outcome of the most recent completed sync.
func (idx *Indexer) LastResult() (SyncResult, error) {
	idx.lastMu.Lock()
	defer idx.lastMu.Unlock()
	return idx.lastResult, idx.lastErr
}

func (idx *Indexer) tryStart() bool {
	idx.runMu.Lock()
	defer idx.runMu.Unlock()

	if idx.running {
		return false
	}
	idx.running = true
	idx.cancelled.Store(false)
	return true
}

func (idx *Indexer) finish() {
	idx.runMu.Lock()
	idx.running = false
	idx.runMu.Unlock()
}

func (idx *Indexer) run(ctx context.Context) (result SyncResult, err error) {
	metrics.SyncIsRunning.Set(1)
	defer metrics.SyncIsRunning.Set(0)
	metrics.SyncRunsTotal.Inc()

	result.RunID = uuid.New()
	start := time.Now()

	defer func() {
		result.Duration = time.Since(start)
		metrics.SyncLastRunDuration.Set(result.Duration.Seconds())

		idx.lastMu.Lock()
		idx.lastResult, idx.lastErr = result, err
		idx.lastMu.Unlock()
	}()

	logging.Info("Catalog sync %s starting", result.RunID)

	repos, err := idx.db.Repositories(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list repositories: %w", err)
	}

	idx.reporter.Start("Updating catalog...")
	defer idx.reporter.Stop()

	for _, repo := range repos {
		err = ErrCancelled
		if !idx.cancelled.Load() {
			err = idx.syncRepository(ctx, repo, &result)
		}
		if errors.Is(err, ErrCancelled) {
			result.Cancelled = true
			metrics.SyncCancellations.Inc()
			logging.Info("Catalog sync %s cancelled in %s", result.RunID, repo.Path)
			return result, ErrCancelled
		}
		if err != nil {
			logging.Error("Sync of repository %s failed: %v", repo.Path, err)
			result.Failed++
			metrics.SyncFailures.Inc()
			continue
		}
		result.Repositories++
	}

	refresh := result.Changed()
	if !refresh {
		refresh, err = idx.defaultSetStale(ctx)
		if err != nil {
			return result, err
		}
	}

	if refresh {
		if _, _, err = idx.db.RegenerateSet(ctx, database.DefaultSetName, idx.reporter, defaultSetQuery); err != nil {
			return result, fmt.Errorf("failed to regenerate default set: %w", err)
		}
		result.DefaultSet = true
	}

	logging.Info("Catalog sync %s done: %d added, %d removed, %d tags, %d failed in %v",
		result.RunID, result.Added, result.Removed, result.TagsImported, result.Failed,
		time.Since(start).Round(time.Millisecond))
	return result, nil
}

// defaultSetStale reports whether the default set is missing or does not
// hold every cataloged file, which happens after a cancelled run.
func (idx *Indexer) defaultSetStale(ctx context.Context) (bool, error) {
	set, err := idx.db.NamedSet(ctx, database.DefaultSetName)
	if errors.Is(err, database.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	n, err := idx.db.SetLen(ctx, set)
	if err != nil {
		return false, err
	}
	return n != idx.db.GetStats().TotalFiles, nil
}

type repoChanges struct {
	added, removed, tags, failed int
	removedIDs                   []int64
}

// pendingFile is an added path read from disk, ready to be cataloged.
type pendingFile struct {
	record *database.FileRecord
	tags   []string
}

func (idx *Indexer) syncRepository(ctx context.Context, repo database.Repository, result *SyncResult) error {
	onDisk, err := idx.scan(repo)
	if err != nil {
		return err
	}

	stored, err := idx.db.RepositoryFiles(ctx, repo.ID)
	if err != nil {
		return fmt.Errorf("failed to list cataloged files: %w", err)
	}

	added := difference(onDisk, stored)
	removed := difference(stored, onDisk)

	logging.Debug("Repository %s: %d on disk, %d cataloged, %d to add, %d to remove",
		repo.Path, len(onDisk), len(stored), len(added), len(removed))

	if len(added) == 0 && len(removed) == 0 {
		return nil
	}

	idx.reporter.SetMax(len(added) + 1)
	idx.reporter.Reset(fmt.Sprintf("Updating %s...", repo.Path))

	// Disk reads happen before the batch so the catalog stays available
	// to other callers while files are inspected.
	var changes repoChanges
	pending, err := idx.prepare(repo, added, &changes)
	if err != nil {
		return err
	}

	tx, err := idx.db.BeginBatch(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = idx.db.EndBatch(tx, idx.apply(ctx, tx, removed, pending, &changes))
	if err != nil {
		return err
	}
	idx.reporter.Tick()

	result.Added += changes.added
	result.Removed += changes.removed
	result.TagsImported += changes.tags
	result.Failed += changes.failed

	metrics.SyncFilesTotal.WithLabelValues("added").Add(float64(changes.added))
	metrics.SyncFilesTotal.WithLabelValues("removed").Add(float64(changes.removed))
	metrics.SyncTagsImported.Add(float64(changes.tags))

	if idx.bus != nil {
		idx.bus.FileContentChanged(changes.removedIDs...)
	}
	return nil
}

// prepare stats every added path and reads its embedded tags. Unreadable
// files are counted as failed and left out.
func (idx *Indexer) prepare(repo database.Repository, added []string, changes *repoChanges) ([]pendingFile, error) {
	pending := make([]pendingFile, 0, len(added))
	for _, path := range added {
		if idx.cancelled.Load() {
			return nil, ErrCancelled
		}

		file, err := idx.inspect(repo, path)
		if err != nil {
			logging.Warn("Skipping %s: %v", path, err)
			changes.failed++
			metrics.SyncFailures.Inc()
		} else {
			pending = append(pending, file)
		}
		idx.reporter.Tick()
	}
	return pending, nil
}

func (idx *Indexer) inspect(repo database.Repository, path string) (pendingFile, error) {
	info, err := filesystem.StatWithRetry(path, idx.retry)
	if err != nil {
		return pendingFile{}, err
	}

	file := pendingFile{record: &database.FileRecord{
		RepoKey:    repo.ID,
		Name:       path,
		Filename:   filepath.Base(path),
		Dir:        filepath.Dir(path),
		Ext:        mediatypes.Ext(path),
		Size:       info.Size(),
		ModTime:    info.ModTime(),
		Searchable: true,
	}}

	file.tags, err = idx.readTags(path)
	if err != nil {
		logging.Debug("No embedded tags read from %s: %v", path, err)
		file.tags = nil
	}
	return file, nil
}

// apply writes one repository's diff inside tx.
func (idx *Indexer) apply(ctx context.Context, tx *sql.Tx, removed []string, pending []pendingFile, changes *repoChanges) error {
	if idx.cancelled.Load() {
		return ErrCancelled
	}

	if len(removed) > 0 {
		ids, err := idx.db.DeleteFiles(ctx, tx, removed)
		if err != nil {
			return fmt.Errorf("failed to delete missing files: %w", err)
		}
		changes.removed = len(ids)
		changes.removedIDs = ids
	}

	for _, file := range pending {
		if idx.cancelled.Load() {
			return ErrCancelled
		}

		if err := idx.addFile(ctx, tx, file, changes); err != nil {
			logging.Warn("Skipping %s: %v", file.record.Name, err)
			changes.failed++
			metrics.SyncFailures.Inc()
		}
	}

	return nil
}

func (idx *Indexer) addFile(ctx context.Context, tx *sql.Tx, file pendingFile, changes *repoChanges) error {
	if err := idx.db.InsertFile(ctx, tx, file.record); err != nil {
		return err
	}
	changes.added++

	if len(file.tags) == 0 {
		return nil
	}

	tags := make([]database.Tag, 0, len(file.tags))
	for _, v := range file.tags {
		tags = append(tags, database.Tag{FileKey: file.record.ID, Kind: database.DefaultTagKind, Value: v})
	}

	n, err := idx.db.InsertTags(ctx, tx, tags)
	if err != nil {
		logging.Warn("Failed to import tags of %s: %v", file.record.Name, err)
		return nil
	}
	changes.tags += n
	return nil
}

// scan lists the allowed image paths under the repository root.
func (idx *Indexer) scan(repo database.Repository) ([]string, error) {
	root := filepath.Clean(repo.Path)

	if !repo.Recursive {
		entries, err := filesystem.ReadDirWithRetry(root, idx.retry)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", root, err)
		}

		var paths []string
		for _, entry := range entries {
			if entry.IsDir() || idx.ignored(entry.Name()) || !idx.exts.Allows(entry.Name()) {
				continue
			}
			paths = append(paths, filepath.Join(root, entry.Name()))
		}
		return paths, nil
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logging.Warn("Skipping unreadable entry %s: %v", path, err)
			return nil
		}
		if idx.cancelled.Load() {
			return ErrCancelled
		}

		if path != root && idx.ignored(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !idx.exts.Allows(d.Name()) {
			return nil
		}

		paths = append(paths, path)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return paths, nil
}

func (idx *Indexer) ignored(name string) bool {
	for _, g := range idx.ignore {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// difference returns the elements of a missing from b, sorted.
func difference(a, b []string) []string {
	in := make(map[string]struct{}, len(b))
	for _, s := range b {
		in[s] = struct{}{}
	}

	var out []string
	for _, s := range a {
		if _, ok := in[s]; !ok {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out
}
