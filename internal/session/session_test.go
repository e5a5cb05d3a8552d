package session

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cobiv/internal/database"
	"cobiv/internal/events"
	"cobiv/internal/indexer"
	"cobiv/internal/media"
)

func setupTestDB(t *testing.T) *database.Database {
	t.Helper()

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// insertFiles catalogs paths in order and returns their keys.
func insertFiles(t *testing.T, db *database.Database, paths ...string) []int64 {
	t.Helper()
	ctx := context.Background()

	tx, err := db.BeginBatch(ctx)
	require.NoError(t, err)

	ids := make([]int64, 0, len(paths))
	for i, p := range paths {
		rec := &database.FileRecord{
			RepoKey:    1,
			Name:       p,
			Filename:   filepath.Base(p),
			Dir:        filepath.Dir(p),
			Ext:        filepath.Ext(p)[1:],
			Size:       int64(10 * (i + 1)),
			ModTime:    time.Unix(int64(1_700_000_000+i), 0),
			Searchable: true,
		}
		if err := db.InsertFile(ctx, tx, rec); err != nil {
			_ = db.EndBatch(tx, err)
			t.Fatalf("InsertFile failed: %v", err)
		}
		ids = append(ids, rec.ID)
	}
	require.NoError(t, db.EndBatch(tx, nil))
	return ids
}

// newTestSession returns a session whose working set holds n files named
// /pics/0.jpg ... in key order.
func newTestSession(t *testing.T, n int, opts Options) (*Session, []int64) {
	t.Helper()
	ctx := context.Background()

	if opts.DB == nil {
		opts.DB = setupTestDB(t)
	}

	paths := make([]string, n)
	for i := range paths {
		paths[i] = filepath.Join("/pics", string(rune('a'+i))+".jpg")
	}
	ids := insertFiles(t, opts.DB, paths...)

	s, err := New(ctx, opts)
	require.NoError(t, err)

	_, err = s.Search(ctx)
	require.NoError(t, err)
	return s, ids
}

func currentKeys(t *testing.T, s *Session) []int64 {
	t.Helper()

	keys, err := s.db.SetFileKeys(context.Background(), database.CurrentSet)
	require.NoError(t, err)
	return keys
}

// assertContiguous checks positions 0..len-1 each hold exactly one entry.
func assertContiguous(t *testing.T, c *Cursor) {
	t.Helper()
	ctx := context.Background()

	n, err := c.Len(ctx)
	require.NoError(t, err)
	for pos := 0; pos < n; pos++ {
		e, ok, err := c.Get(ctx, pos)
		require.NoError(t, err)
		require.True(t, ok, "position %d missing", pos)
		assert.Equal(t, pos, e.Position)
	}
	_, ok, err := c.Get(ctx, n)
	require.NoError(t, err)
	assert.False(t, ok, "position %d should not exist", n)
}

func TestNewRequiresDatabase(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.Error(t, err)
}

func TestCursorNavigation(t *testing.T) {
	ctx := context.Background()
	s, ids := newTestSession(t, 5, Options{})
	c := s.Cursor()

	pos, ok := c.Position()
	require.True(t, ok)
	assert.Equal(t, 0, pos)
	assert.Equal(t, ids[0], c.FileKey())

	for p := 1; p < 4; p++ {
		moved, err := c.Go(ctx, p)
		require.NoError(t, err)
		require.True(t, moved)

		_, err = c.Previous(ctx)
		require.NoError(t, err)
		_, err = c.Next(ctx)
		require.NoError(t, err)

		pos, _ = c.Position()
		assert.Equal(t, p, pos)
		assert.Equal(t, ids[p], c.FileKey())
	}

	moved, err := c.Go(ctx, 5)
	require.NoError(t, err)
	assert.False(t, moved)
	moved, err = c.Go(ctx, -1)
	require.NoError(t, err)
	assert.False(t, moved)
	pos, _ = c.Position()
	assert.Equal(t, 3, pos, "failed Go must not move the cursor")

	_, err = c.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[4], c.FileKey())
	moved, err = c.Next(ctx)
	require.NoError(t, err)
	assert.False(t, moved)

	_, err = c.First(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[0], c.FileKey())
	moved, err = c.Previous(ctx)
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestCursorEmptySet(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, Options{DB: setupTestDB(t)})
	require.NoError(t, err)
	c := s.Cursor()

	_, ok := c.Position()
	assert.False(t, ok)

	for _, op := range []func(context.Context) (bool, error){c.Next, c.Previous, c.First, c.Last, c.Remove} {
		done, err := op(ctx)
		require.NoError(t, err)
		assert.False(t, done)
	}

	marked, err := c.Mark(ctx, nil)
	require.NoError(t, err)
	assert.False(t, marked)
	assert.Empty(t, c.Field("filename"))
	assert.Empty(t, c.ThumbnailPath())
}

func TestCursorRemoveMiddle(t *testing.T) {
	ctx := context.Background()
	s, ids := newTestSession(t, 5, Options{})
	c := s.Cursor()

	_, err := c.Go(ctx, 2)
	require.NoError(t, err)

	removed, err := c.Remove(ctx)
	require.NoError(t, err)
	require.True(t, removed)

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	pos, ok := c.Position()
	require.True(t, ok)
	assert.Equal(t, 2, pos)
	assert.Equal(t, ids[3], c.FileKey(), "cursor moves to the record that followed")

	prev, _, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ids[1], prev.FileKey)
	next, _, err := c.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, ids[4], next.FileKey)

	assert.Equal(t, []int64{ids[0], ids[1], ids[3], ids[4]}, currentKeys(t, s))
	assertContiguous(t, c)
}

func TestCursorRemoveToEmpty(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus()
	var last int64 = -1
	bus.OnCursorChanged(func(id int64, _ string) { last = id })

	s, ids := newTestSession(t, 3, Options{Events: bus})
	c := s.Cursor()

	_, err := c.Last(ctx)
	require.NoError(t, err)

	_, err = c.Remove(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[1], c.FileKey(), "removing the last entry moves back")
	assert.Equal(t, ids[1], last)

	for n := 0; n < 2; n++ {
		removed, err := c.Remove(ctx)
		require.NoError(t, err)
		assert.True(t, removed)
	}

	_, ok := c.Position()
	assert.False(t, ok)
	assert.Equal(t, int64(0), last)

	removed, err := c.Remove(ctx)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestCursorRemoveDropsMark(t *testing.T) {
	ctx := context.Background()
	s, ids := newTestSession(t, 3, Options{})
	c := s.Cursor()

	yes := true
	_, err := c.Mark(ctx, &yes)
	require.NoError(t, err)

	_, err = c.Remove(ctx)
	require.NoError(t, err)

	marked, err := c.AllMarked(ctx)
	require.NoError(t, err)
	assert.NotContains(t, marked, ids[0])
}

func TestCursorMoveTo(t *testing.T) {
	ctx := context.Background()
	s, ids := newTestSession(t, 5, Options{})
	c := s.Cursor()

	moved, err := c.MoveTo(ctx, 3)
	require.NoError(t, err)
	require.True(t, moved)

	pos, _ := c.Position()
	assert.Equal(t, 3, pos)
	assert.Equal(t, ids[0], c.FileKey())
	assert.Equal(t, []int64{ids[1], ids[2], ids[3], ids[0], ids[4]}, currentKeys(t, s))
	assertContiguous(t, c)

	moved, err = c.MoveTo(ctx, 1)
	require.NoError(t, err)
	require.True(t, moved)
	assert.Equal(t, []int64{ids[1], ids[0], ids[2], ids[3], ids[4]}, currentKeys(t, s))

	moved, err = c.MoveTo(ctx, 1)
	require.NoError(t, err)
	assert.False(t, moved, "moving onto the current position is a no-op")

	moved, err = c.MoveTo(ctx, 9)
	require.NoError(t, err)
	assert.False(t, moved)
	assertContiguous(t, c)
}

func TestCursorNeighbors(t *testing.T) {
	ctx := context.Background()
	s, ids := newTestSession(t, 6, Options{})
	c := s.Cursor()

	other, ok, err := c.CursorAt(ctx, 3)
	require.NoError(t, err)
	require.True(t, ok)

	yes := true
	_, err = other.Mark(ctx, &yes)
	require.NoError(t, err)

	_, err = c.Go(ctx, 2)
	require.NoError(t, err)

	next, err := c.NextIDs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, ids[3], next[0].FileKey)
	assert.True(t, next[0].Marked)
	assert.Equal(t, ids[4], next[1].FileKey)
	assert.False(t, next[1].Marked)

	prev, err := c.PreviousIDs(ctx, 5)
	require.NoError(t, err)
	require.Len(t, prev, 2)
	assert.Equal(t, 0, prev[0].Position)
	assert.Equal(t, 1, prev[1].Position)

	tail, err := c.NextIDs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, tail, 3)

	pos, _ := c.Position()
	assert.Equal(t, 2, pos, "neighbor lookups do not move the cursor")

	_, ok, err = c.CursorAt(ctx, 6)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCursorMark(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, 2, Options{})
	c := s.Cursor()

	marked, err := c.Mark(ctx, nil)
	require.NoError(t, err)
	assert.True(t, marked)

	got, err := c.Marked(ctx)
	require.NoError(t, err)
	assert.True(t, got)

	marked, err = c.Mark(ctx, nil)
	require.NoError(t, err)
	assert.False(t, marked)

	no := false
	marked, err = c.Mark(ctx, &no)
	require.NoError(t, err)
	assert.False(t, marked)
}

func TestMarksOutliveWorkingSet(t *testing.T) {
	ctx := context.Background()
	s, ids := newTestSession(t, 3, Options{})

	_, err := s.Cursor().Mark(ctx, nil)
	require.NoError(t, err)

	_, err = s.Search(ctx, "filename:b.jpg")
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[1]}, currentKeys(t, s))

	marked, err := s.Cursor().AllMarked(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[0]}, marked)

	// Marking the new working set leaves the outside mark alone.
	no := false
	_, err = s.MarkAll(ctx, &no)
	require.NoError(t, err)
	marked, err = s.Cursor().AllMarked(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[0]}, marked)
}

func TestInvertMarksTwice(t *testing.T) {
	ctx := context.Background()
	s, ids := newTestSession(t, 4, Options{})
	c := s.Cursor()

	for _, pos := range []int{1, 3} {
		_, err := c.Go(ctx, pos)
		require.NoError(t, err)
		_, err = c.Mark(ctx, nil)
		require.NoError(t, err)
	}

	require.NoError(t, s.InvertMarks(ctx))
	marked, err := c.AllMarked(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[0], ids[2]}, marked)

	require.NoError(t, s.InvertMarks(ctx))
	marked, err = c.AllMarked(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[1], ids[3]}, marked)
}

func TestMarkAllToggle(t *testing.T) {
	ctx := context.Background()
	s, ids := newTestSession(t, 3, Options{})

	applied, err := s.MarkAll(ctx, nil)
	require.NoError(t, err)
	assert.True(t, applied)

	marked, err := s.Cursor().AllMarked(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids, marked)

	applied, err = s.MarkAll(ctx, nil)
	require.NoError(t, err)
	assert.False(t, applied)

	marked, err = s.Cursor().AllMarked(ctx)
	require.NoError(t, err)
	assert.Empty(t, marked)
}

func TestSearchAndSort(t *testing.T) {
	ctx := context.Background()
	s, ids := newTestSession(t, 4, Options{})

	_, err := s.Cursor().Go(ctx, 1)
	require.NoError(t, err)
	_, err = s.AddTags(ctx, "red", "rating:3")
	require.NoError(t, err)
	_, err = s.Cursor().Go(ctx, 2)
	require.NoError(t, err)
	_, err = s.AddTags(ctx, "red", "rating:1")
	require.NoError(t, err)

	n, err := s.Search(ctx, "red")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{ids[1], ids[2]}, currentKeys(t, s))
	assert.Equal(t, ids[1], s.Cursor().FileKey())

	n, err = s.Sort(ctx, "#rating")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{ids[2], ids[1]}, currentKeys(t, s))

	pos, _ := s.Cursor().Position()
	assert.Equal(t, 1, pos, "the cursor follows its file through a sort")
	assert.Equal(t, ids[1], s.Cursor().FileKey())

	n, err = s.Sort(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSearchWithoutCriteriaLoadsDefaultSet(t *testing.T) {
	ctx := context.Background()
	s, ids := newTestSession(t, 3, Options{})

	_, _, err := s.db.RegenerateSet(ctx, database.DefaultSetName, nil, "SELECT id FROM file ORDER BY id DESC")
	require.NoError(t, err)

	n, err := s.Search(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int64{ids[2], ids[1], ids[0]}, currentKeys(t, s))
}

func TestSaveAndLoadSet(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus()
	var loaded []int
	bus.OnSetLoaded(func(n int) { loaded = append(loaded, n) })

	s, ids := newTestSession(t, 4, Options{Events: bus})

	_, err := s.Cursor().MoveTo(ctx, 3)
	require.NoError(t, err)
	want := currentKeys(t, s)

	n, err := s.SaveSet(ctx, "favorites")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = s.Search(ctx, "filename:a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[0]}, currentKeys(t, s))

	n, err = s.LoadSet(ctx, "favorites")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, want, currentKeys(t, s))

	_, err = s.LoadSet(ctx, "missing")
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = s.SaveSet(ctx, database.CurrentSetName)
	assert.Error(t, err)

	assert.Equal(t, []int{4, 1, 4}, loaded[len(loaded)-3:])
}

func TestTags(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, 2, Options{})

	added, err := s.AddTags(ctx, "red", "blue", "red", "rating:5", "empty:")
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	text, err := s.ListTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rating:5\nblue\nred", text)

	removed, err := s.RemoveTags(ctx, "blue", "rating:5", "green")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	text, err = s.ListTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, "red", text)
}

func TestFieldLookups(t *testing.T) {
	ctx := context.Background()
	s, ids := newTestSession(t, 3, Options{})
	c := s.Cursor()

	_, err := c.Go(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, "b.jpg", s.Field("filename"))
	assert.Equal(t, "/pics", s.Field("path"))
	assert.Equal(t, "/pics/b.jpg", s.Field("name"))
	assert.Equal(t, "jpg", s.Field("ext"))
	assert.Equal(t, "20", s.Field("size"))
	assert.Equal(t, "1700000001", s.Field("file_date"))
	assert.Equal(t, "", s.Field("unknown"))
	assert.NotEmpty(t, s.Field("id"))

	n, err := s.Search(ctx, "size:>:%{size}%")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{ids[2]}, currentKeys(t, s))
}

func TestPositionMapping(t *testing.T) {
	ctx := context.Background()
	s, ids := newTestSession(t, 3, Options{})

	mapping, err := s.Cursor().PositionMapping(ctx, []int64{ids[2], ids[0], 999})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{ids[2]: 2, ids[0]: 0}, mapping)
}

func writeTestPNG(t *testing.T, path string) {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		img.Set(x, 5, color.NRGBA{R: 255, A: 255})
	}

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestThumbnailsFollowContentChanges(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cache, err := media.NewThumbnailCache(filepath.Join(dir, "thumbs"), 32)
	require.NoError(t, err)

	db := setupTestDB(t)
	src := filepath.Join(dir, "pic.png")
	writeTestPNG(t, src)
	ids := insertFiles(t, db, src)

	s, err := New(ctx, Options{DB: db, Cache: cache})
	require.NoError(t, err)
	_, err = s.Search(ctx)
	require.NoError(t, err)

	path := s.Cursor().ThumbnailPath()
	assert.Equal(t, cache.Path(ids[0]), path)
	assert.FileExists(t, path)

	s.Events().FileContentChanged(ids[0])
	assert.NoFileExists(t, path)
}

func TestPageQueuesThumbnails(t *testing.T) {
	ctx := context.Background()

	cache, err := media.NewThumbnailCache(filepath.Join(t.TempDir(), "thumbs"), 32)
	require.NoError(t, err)

	s, ids := newTestSession(t, 4, Options{Cache: cache})

	entries, err := s.Page(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ids[1], entries[0].FileKey)
	assert.Equal(t, 2, cache.QueueLen())

	s.Close()
}

// recordingReporter keeps the order of the progress calls that open, reset
// and close a run.
type recordingReporter struct {
	calls []string
}

func (r *recordingReporter) Start(caption string) { r.calls = append(r.calls, "start "+caption) }
func (r *recordingReporter) SetMax(int)           {}
func (r *recordingReporter) Tick()                {}
func (r *recordingReporter) Reset(string)         { r.calls = append(r.calls, "reset") }
func (r *recordingReporter) Stop()                { r.calls = append(r.calls, "stop") }

func TestSetRebuildsReportProgressRuns(t *testing.T) {
	ctx := context.Background()
	rep := &recordingReporter{}
	s, _ := newTestSession(t, 3, Options{Reporter: rep})
	rep.calls = nil

	_, err := s.Search(ctx, "ext:jpg")
	require.NoError(t, err)
	_, err = s.Sort(ctx, "-size")
	require.NoError(t, err)
	_, err = s.SaveSet(ctx, "kept")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start Loading results...", "reset", "stop",
		"start Sorting...", "reset", "stop",
		"start Saving set kept...", "reset", "stop",
	}, rep.calls)
}

func TestCommandsDuringBackgroundSync(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping background sync test in short mode")
	}

	ctx := context.Background()
	db := setupTestDB(t)
	dir := t.TempDir()

	writeFiles := func(from, to int) {
		for i := from; i < to; i++ {
			path := filepath.Join(dir, fmt.Sprintf("%03d.jpg", i))
			require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		}
	}
	writeFiles(0, 3)

	key, err := db.CreateCatalog(ctx, database.DefaultCatalogName)
	require.NoError(t, err)
	_, err = db.AddRepository(ctx, key, dir, true)
	require.NoError(t, err)

	var block atomic.Bool
	var once sync.Once
	entered := make(chan struct{})
	resume := make(chan struct{})
	idx, err := indexer.New(db, indexer.Options{
		ReadTags: func(string) ([]string, error) {
			if block.Load() {
				once.Do(func() {
					close(entered)
					<-resume
				})
			}
			return nil, nil
		},
	})
	require.NoError(t, err)

	_, err = idx.Sync(ctx)
	require.NoError(t, err)

	s, err := New(ctx, Options{DB: db, Indexer: idx})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	n, err := s.Search(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	writeFiles(3, 203)
	block.Store(true)
	require.NoError(t, s.UpdateDB(ctx))
	<-entered
	assert.True(t, idx.Running())

	applied, err := s.MarkAll(ctx, nil)
	require.NoError(t, err)
	assert.True(t, applied)

	ok, err := s.Cursor().Go(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	close(resume)

	deadline := time.Now().Add(30 * time.Second)
	for idx.Running() {
		require.True(t, time.Now().Before(deadline), "sync did not finish")

		_, err := s.Cursor().Go(ctx, 1)
		require.NoError(t, err)
		require.NoError(t, s.InvertMarks(ctx))
	}
	idx.Wait()

	result, err := idx.LastResult()
	require.NoError(t, err)
	assert.Equal(t, 200, result.Added)
	assert.True(t, result.DefaultSet)

	assertContiguous(t, s.Cursor())
	n, err = s.Cursor().Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "a sync leaves the working set alone")

	n, err = s.Search(ctx)
	require.NoError(t, err)
	assert.Equal(t, 203, n)
}
