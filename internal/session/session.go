package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cobiv/internal/database"
	"cobiv/internal/events"
	"cobiv/internal/indexer"
	"cobiv/internal/logging"
	"cobiv/internal/media"
	"cobiv/internal/progress"
	"cobiv/internal/query"
)

// currentSetQuery reads the working set in position order.
const currentSetQuery = "SELECT file_key FROM current_set ORDER BY position"

// Options holds a Session's collaborators. DB is required.
type Options struct {
	DB       *database.Database
	Cache    *media.ThumbnailCache
	Indexer  *indexer.Indexer
	Events   *events.Bus
	Reporter progress.Reporter
}

// Session is the command-facing root: the working set, its cursor and the
// services acting on them.
type Session struct {
	db       *database.Database
	cache    *media.ThumbnailCache
	indexer  *indexer.Indexer
	bus      *events.Bus
	reporter progress.Reporter
	compiler *query.Compiler

	cursor *Cursor
}

// New creates a session with an empty working set.
func New(ctx context.Context, opts Options) (*Session, error) {
	if opts.DB == nil {
		return nil, errors.New("session needs a database")
	}

	s := &Session{
		db:       opts.DB,
		cache:    opts.Cache,
		indexer:  opts.Indexer,
		bus:      opts.Events,
		reporter: progress.OrDiscard(opts.Reporter),
	}
	if s.bus == nil {
		s.bus = events.NewBus()
	}
	s.compiler = query.NewCompiler(query.NewEvaluator(s, nil))

	if s.cache != nil {
		s.bus.OnFileContentChanged(func(id int64) {
			s.cache.Invalidate(id)
		})
	}

	cursor, err := newCursor(ctx, s.db, database.CurrentSet, s.cache, s.bus)
	if err != nil {
		return nil, err
	}
	s.cursor = cursor
	return s, nil
}

// Cursor returns the primary cursor.
func (s *Session) Cursor() *Cursor {
	return s.cursor
}

// Events returns the session's event bus.
func (s *Session) Events() *events.Bus {
	return s.bus
}

// Cache returns the thumbnail cache, which may be nil.
func (s *Session) Cache() *media.ThumbnailCache {
	return s.cache
}

// Field implements query.FieldSource over the primary cursor.
func (s *Session) Field(name string) string {
	if s.cursor == nil {
		return ""
	}
	return s.cursor.Field(name)
}

// Search rebuilds the working set from criteria and points the cursor at
// its first entry. Without criteria the default set is loaded.
func (s *Session) Search(ctx context.Context, criteria ...string) (int, error) {
	if len(criteria) == 0 {
		n, err := s.db.CopyNamedToCurrent(ctx, database.DefaultSetName)
		if err == nil {
			return n, s.reload(ctx, n)
		}
		if !errors.Is(err, database.ErrNotFound) {
			return 0, err
		}
		logging.Debug("Default set missing, searching every file")
	}

	q, err := s.compiler.CompileFilter(criteria)
	if err != nil {
		return 0, err
	}

	defer s.track("Loading results...")()
	_, n, err := s.db.RegenerateSet(ctx, database.CurrentSetName, s.reporter, q.SQL, q.Args...)
	if err != nil {
		return 0, fmt.Errorf("search failed: %w", err)
	}
	return n, s.reload(ctx, n)
}

// Sort reorders the working set. The cursor stays on the same file.
func (s *Session) Sort(ctx context.Context, fields ...string) (int, error) {
	plan, err := s.compiler.CompileSort(fields)
	if err != nil {
		return 0, err
	}
	if plan.Empty() {
		return s.cursor.Len(ctx)
	}

	current := s.cursor.FileKey()

	defer s.track("Sorting...")()
	n, err := s.db.SortCurrent(ctx, s.reporter, plan.Setup, plan.Ordering, plan.Teardown)
	if err != nil {
		return 0, fmt.Errorf("sort failed: %w", err)
	}

	pos := 0
	if current != 0 {
		mapping, err := s.db.PositionMapping(ctx, database.CurrentSet, []int64{current})
		if err != nil {
			return n, err
		}
		pos = mapping[current]
	}
	if _, err := s.cursor.Go(ctx, pos); err != nil {
		return n, err
	}
	s.bus.SetLoaded(n)
	return n, nil
}

// LoadSet copies a named set into the working set.
func (s *Session) LoadSet(ctx context.Context, name string) (int, error) {
	n, err := s.db.CopyNamedToCurrent(ctx, name)
	if err != nil {
		return 0, err
	}
	return n, s.reload(ctx, n)
}

// SaveSet stores the working set, in order, as a named set.
func (s *Session) SaveSet(ctx context.Context, name string) (int, error) {
	if name == "" || name == database.CurrentSetName {
		return 0, fmt.Errorf("invalid set name %q", name)
	}

	defer s.track("Saving set " + name + "...")()
	_, n, err := s.db.RegenerateSet(ctx, name, s.reporter, currentSetQuery)
	return n, err
}

// track opens a progress run and returns the func that closes it.
func (s *Session) track(caption string) func() {
	s.reporter.Start(caption)
	return s.reporter.Stop
}

// reload repoints the primary cursor at the start of the working set.
func (s *Session) reload(ctx context.Context, n int) error {
	cursor, err := newCursor(ctx, s.db, database.CurrentSet, s.cache, s.bus)
	if err != nil {
		return err
	}
	s.cursor = cursor
	s.bus.SetLoaded(n)
	return nil
}

// AddTags tags the current file. Each value is "value" (kind tag) or
// "kind:value".
func (s *Session) AddTags(ctx context.Context, values ...string) (int, error) {
	if s.cursor.FileKey() == 0 {
		return 0, nil
	}

	added := 0
	for kind, vs := range groupByKind(values) {
		n, err := s.db.AddTags(ctx, s.cursor.FileKey(), kind, vs...)
		if err != nil {
			return added, err
		}
		added += n
	}
	return added, nil
}

// RemoveTags removes tags from the current file, in the AddTags format.
func (s *Session) RemoveTags(ctx context.Context, values ...string) (int, error) {
	if s.cursor.FileKey() == 0 {
		return 0, nil
	}

	removed := 0
	for kind, vs := range groupByKind(values) {
		n, err := s.db.RemoveTags(ctx, s.cursor.FileKey(), kind, vs...)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}

func groupByKind(values []string) map[string][]string {
	groups := make(map[string][]string)
	for _, v := range values {
		kind, value, ok := strings.Cut(v, ":")
		if !ok {
			kind, value = database.DefaultTagKind, v
		}
		if value == "" {
			continue
		}
		groups[kind] = append(groups[kind], value)
	}
	return groups
}

// ListTags returns the current file's tag values, one per line. Tags of a
// kind other than tag are written kind:value.
func (s *Session) ListTags(ctx context.Context) (string, error) {
	tags, err := s.cursor.Tags(ctx)
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(tags))
	for _, t := range tags {
		if t.Kind == database.DefaultTagKind {
			lines = append(lines, t.Value)
		} else {
			lines = append(lines, t.Kind+":"+t.Value)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// MarkAll marks or unmarks the whole working set; nil toggles.
func (s *Session) MarkAll(ctx context.Context, value *bool) (bool, error) {
	return s.db.MarkAll(ctx, value)
}

// InvertMarks flips the mark of every working-set file.
func (s *Session) InvertMarks(ctx context.Context) error {
	return s.db.InvertMarks(ctx)
}

// Page returns up to n entries after the cursor and queues their
// thumbnails for background generation.
func (s *Session) Page(ctx context.Context, n int) ([]database.SetEntry, error) {
	entries, err := s.cursor.NextIDs(ctx, n)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && len(entries) > 0 {
		reqs := make([]media.ThumbnailRequest, len(entries))
		for i, e := range entries {
			reqs[i] = media.ThumbnailRequest{FileID: e.FileKey, Source: e.Name}
		}
		s.cache.Enqueue(reqs...)
	}
	return entries, nil
}

// UpdateDB starts a catalog sync in the background.
func (s *Session) UpdateDB(ctx context.Context) error {
	if s.indexer == nil {
		return errors.New("no indexer configured")
	}
	return s.indexer.Start(ctx)
}

// CancelUpdateDB asks a running sync to stop.
func (s *Session) CancelUpdateDB() {
	if s.indexer != nil {
		s.indexer.Cancel()
	}
}

// Close stops background work owned by the session.
func (s *Session) Close() {
	if s.indexer != nil {
		s.indexer.Cancel()
		s.indexer.Wait()
	}
	if s.cache != nil {
		s.cache.Stop()
	}
}
