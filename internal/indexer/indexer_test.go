package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"cobiv/internal/database"
	"cobiv/internal/events"
)

func setupTestDB(t *testing.T) *database.Database {
	t.Helper()

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// addRepository registers dir under the default catalog, creating the catalog when needed.
func addRepository(t *testing.T, db *database.Database, dir string, recursive bool) {
	t.Helper()
	ctx := context.Background()

	key, err := db.CatalogKey(ctx, database.DefaultCatalogName)
	if errors.Is(err, database.ErrNotFound) {
		key, err = db.CreateCatalog(ctx, database.DefaultCatalogName)
	}
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if _, err := db.AddRepository(ctx, key, dir, recursive); err != nil {
		t.Fatalf("AddRepository failed: %v", err)
	}
}

func touch(t *testing.T, path string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func noTags(string) ([]string, error) { return nil, nil }

func cataloged(t *testing.T, db *database.Database, repoKey int64) []string {
	t.Helper()

	names, err := db.RepositoryFiles(context.Background(), repoKey)
	if err != nil {
		t.Fatalf("RepositoryFiles failed: %v", err)
	}
	slices.Sort(names)
	return names
}

func defaultSetLen(t *testing.T, db *database.Database) int {
	t.Helper()
	ctx := context.Background()

	set, err := db.NamedSet(ctx, database.DefaultSetName)
	if err != nil {
		t.Fatalf("NamedSet failed: %v", err)
	}
	n, err := db.SetLen(ctx, set)
	if err != nil {
		t.Fatalf("SetLen failed: %v", err)
	}
	return n
}

func TestSyncAddsAndRemoves(t *testing.T) {
	db := setupTestDB(t)
	dir := t.TempDir()

	touch(t, filepath.Join(dir, "a.jpg"))
	touch(t, filepath.Join(dir, "b.PNG"))
	touch(t, filepath.Join(dir, "sub", "c.gif"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, ".hidden", "d.jpg"))
	touch(t, filepath.Join(dir, ".e.jpg"))
	addRepository(t, db, dir, true)

	bus := events.NewBus()
	var changed []int64
	bus.OnFileContentChanged(func(id int64) { changed = append(changed, id) })

	idx, err := New(db, Options{
		Ignore: []string{".*"},
		ReadTags: func(path string) ([]string, error) {
			if filepath.Base(path) == "a.jpg" {
				return []string{"red", "blue"}, nil
			}
			return nil, errors.New("no metadata")
		},
		Events: bus,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := idx.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if result.Added != 3 || result.Removed != 0 || result.TagsImported != 2 || result.Failed != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
	if !result.DefaultSet {
		t.Error("default set should be regenerated after changes")
	}
	if result.RunID.String() == "" {
		t.Error("expected run id")
	}

	want := []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "b.PNG"),
		filepath.Join(dir, "sub", "c.gif"),
	}
	if got := cataloged(t, db, 1); !slices.Equal(got, want) {
		t.Errorf("cataloged = %v, want %v", got, want)
	}
	if n := defaultSetLen(t, db); n != 3 {
		t.Errorf("default set len = %d, want 3", n)
	}

	// Second pass: one file gone, one new.
	if err := os.Remove(filepath.Join(dir, "b.PNG")); err != nil {
		t.Fatal(err)
	}
	touch(t, filepath.Join(dir, "sub", "f.webp"))

	result, err = idx.Sync(context.Background())
	if err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	if result.Added != 1 || result.Removed != 1 {
		t.Errorf("unexpected second result: %+v", result)
	}
	if len(changed) != 1 {
		t.Errorf("content change events = %v, want one for the removed file", changed)
	}
	if n := defaultSetLen(t, db); n != 3 {
		t.Errorf("default set len = %d, want 3", n)
	}

	// Third pass: nothing to do.
	result, err = idx.Sync(context.Background())
	if err != nil {
		t.Fatalf("third Sync failed: %v", err)
	}
	if result.Changed() || result.DefaultSet {
		t.Errorf("expected no changes, got %+v", result)
	}
}

func TestSyncImportsTagsFromDefaultReader(t *testing.T) {
	db := setupTestDB(t)
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "plain.png"))
	addRepository(t, db, dir, true)

	idx, err := New(db, Options{})
	if err != nil {
		t.Fatal(err)
	}

	result, err := idx.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	// A file that is not a real PNG has no readable tags but is still cataloged.
	if result.Added != 1 || result.TagsImported != 0 || result.Failed != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestSyncNonRecursive(t *testing.T) {
	db := setupTestDB(t)
	dir := t.TempDir()

	touch(t, filepath.Join(dir, "top.jpg"))
	touch(t, filepath.Join(dir, "nested", "deep.jpg"))
	addRepository(t, db, dir, false)

	idx, err := New(db, Options{ReadTags: noTags})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := idx.Sync(context.Background()); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	want := []string{filepath.Join(dir, "top.jpg")}
	if got := cataloged(t, db, 1); !slices.Equal(got, want) {
		t.Errorf("cataloged = %v, want %v", got, want)
	}
}

func TestSyncMissingRepositoryContinues(t *testing.T) {
	db := setupTestDB(t)
	good := t.TempDir()
	touch(t, filepath.Join(good, "ok.jpg"))

	addRepository(t, db, filepath.Join(t.TempDir(), "gone"), true)
	addRepository(t, db, good, true)

	idx, err := New(db, Options{ReadTags: noTags})
	if err != nil {
		t.Fatal(err)
	}

	result, err := idx.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if result.Failed != 1 || result.Repositories != 1 || result.Added != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestSyncCancelRollsBackRepository(t *testing.T) {
	db := setupTestDB(t)
	dir := t.TempDir()
	for _, name := range []string{"1.jpg", "2.jpg", "3.jpg"} {
		touch(t, filepath.Join(dir, name))
	}
	addRepository(t, db, dir, true)

	var idx *Indexer
	var once sync.Once
	idx, err := New(db, Options{
		ReadTags: func(string) ([]string, error) {
			once.Do(idx.Cancel)
			return nil, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := idx.Sync(context.Background())
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Sync error = %v, want ErrCancelled", err)
	}
	if !result.Cancelled {
		t.Error("result should be flagged cancelled")
	}
	if got := cataloged(t, db, 1); len(got) != 0 {
		t.Errorf("cancelled repository left files behind: %v", got)
	}
	if idx.Running() {
		t.Error("indexer should not be running after cancel")
	}
	if _, err := db.NamedSet(context.Background(), database.DefaultSetName); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("default set should not exist after a cancelled first sync, got %v", err)
	}

	// The next run starts clean.
	result, err = idx.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync after cancel failed: %v", err)
	}
	if result.Added != 3 || !result.DefaultSet {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestSyncRegeneratesStaleDefaultSet(t *testing.T) {
	db := setupTestDB(t)
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.jpg"))
	touch(t, filepath.Join(dir, "b.jpg"))
	addRepository(t, db, dir, true)

	idx, err := New(db, Options{ReadTags: noTags})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, _, err := db.RegenerateSet(context.Background(), database.DefaultSetName, nil, "SELECT id FROM file WHERE 0"); err != nil {
		t.Fatal(err)
	}

	result, err := idx.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if result.Changed() {
		t.Errorf("expected no file changes, got %+v", result)
	}
	if !result.DefaultSet {
		t.Error("stale default set should be regenerated")
	}
	if n := defaultSetLen(t, db); n != 2 {
		t.Errorf("default set len = %d, want 2", n)
	}
}

func TestStartRejectsConcurrentSync(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping background sync test in short mode")
	}

	db := setupTestDB(t)
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.jpg"))
	addRepository(t, db, dir, true)

	entered := make(chan struct{})
	release := make(chan struct{})
	idx, err := New(db, Options{
		ReadTags: func(string) ([]string, error) {
			close(entered)
			<-release
			return nil, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := idx.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-entered

	if !idx.Running() {
		t.Error("expected sync running")
	}
	if _, err := idx.Sync(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Sync error = %v, want ErrAlreadyRunning", err)
	}
	if err := idx.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Start error = %v, want ErrAlreadyRunning", err)
	}

	close(release)
	idx.Wait()

	result, err := idx.LastResult()
	if err != nil {
		t.Fatalf("background sync failed: %v", err)
	}
	if result.Added != 1 {
		t.Errorf("Added = %d, want 1", result.Added)
	}
}

func TestCancelWhenIdleIsNoop(t *testing.T) {
	db := setupTestDB(t)
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.jpg"))
	addRepository(t, db, dir, true)

	idx, err := New(db, Options{ReadTags: noTags})
	if err != nil {
		t.Fatal(err)
	}

	idx.Cancel()
	if _, err := idx.Sync(context.Background()); err != nil {
		t.Errorf("Sync after idle Cancel failed: %v", err)
	}
}

func TestNewRejectsInvalidPattern(t *testing.T) {
	if _, err := New(nil, Options{Ignore: []string{"[a-"}}); err == nil {
		t.Error("expected error for invalid glob")
	}
}

func TestDifference(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want []string
	}{
		{"disjoint", []string{"b", "a"}, []string{"c"}, []string{"a", "b"}},
		{"subset", []string{"a"}, []string{"a", "b"}, nil},
		{"partial", []string{"c", "a", "b"}, []string{"b"}, []string{"a", "c"}},
		{"empty", nil, []string{"a"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := difference(tt.a, tt.b); !slices.Equal(got, tt.want) {
				t.Errorf("difference(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
