package commands

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"cobiv/internal/database"
	"cobiv/internal/progress/mocks"
	"cobiv/internal/session"
)

// setupRegistry returns a registry over a session whose working set holds
// /pics/a.jpg, /pics/b.jpg and /pics/c.jpg.
func setupRegistry(t *testing.T, out *mocks.MockNotifier) (*Registry, *session.Session) {
	t.Helper()
	ctx := context.Background()

	db, err := database.New(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	tx, err := db.BeginBatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		err = db.InsertFile(ctx, tx, &database.FileRecord{
			RepoKey:    1,
			Name:       "/pics/" + name,
			Filename:   name,
			Dir:        "/pics",
			Ext:        "jpg",
			Size:       int64(i + 1),
			ModTime:    time.Unix(1_700_000_000, 0),
			Searchable: true,
		})
		if err != nil {
			break
		}
	}
	if err := db.EndBatch(tx, err); err != nil {
		t.Fatalf("seeding failed: %v", err)
	}

	sess, err := session.New(ctx, session.Options{DB: db})
	if err != nil {
		t.Fatalf("session.New failed: %v", err)
	}
	if _, err := sess.Search(ctx); err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	return New(sess, out), sess
}

func TestSearchNotifiesCount(t *testing.T) {
	ctrl := gomock.NewController(t)
	out := mocks.NewMockNotifier(ctrl)
	r, _ := setupRegistry(t, out)

	gomock.InOrder(
		out.EXPECT().Notify("3 files"),
		out.EXPECT().Notify("1 files"),
	)

	if err := r.Execute(context.Background(), "search"); err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if err := r.Execute(context.Background(), "search   filename:b.jpg"); err != nil {
		t.Fatalf("search failed: %v", err)
	}
}

func TestTagCommands(t *testing.T) {
	ctrl := gomock.NewController(t)
	out := mocks.NewMockNotifier(ctrl)
	r, _ := setupRegistry(t, out)
	ctx := context.Background()

	gomock.InOrder(
		out.EXPECT().Notify("blue\nred"),
		out.EXPECT().Notify("red"),
	)

	for _, line := range []string{"add-tag red blue", "ls-tag", "rm-tag blue", "ls-tag", "add-tag", "rm-tag"} {
		if err := r.Execute(ctx, line); err != nil {
			t.Fatalf("%q failed: %v", line, err)
		}
	}
}

func TestNavigationCommands(t *testing.T) {
	ctrl := gomock.NewController(t)
	out := mocks.NewMockNotifier(ctrl)
	r, sess := setupRegistry(t, out)
	ctx := context.Background()

	gomock.InOrder(
		out.EXPECT().Notify("1: /pics/b.jpg"),
		out.EXPECT().Notify("2: /pics/c.jpg"),
		out.EXPECT().Notify("0: /pics/a.jpg"),
		out.EXPECT().Notify("2: /pics/c.jpg"),
		out.EXPECT().Notify("0: /pics/c.jpg"),
		out.EXPECT().Notify("0: /pics/a.jpg"),
	)

	// "next" at the end notifies nothing.
	for _, line := range []string{"next", "next", "next", "first", "last", "move 0", "remove"} {
		if err := r.Execute(ctx, line); err != nil {
			t.Fatalf("%q failed: %v", line, err)
		}
	}

	if n, _ := sess.Cursor().Len(ctx); n != 2 {
		t.Errorf("Len = %d after remove, want 2", n)
	}
}

func TestMarkCommands(t *testing.T) {
	ctrl := gomock.NewController(t)
	out := mocks.NewMockNotifier(ctrl)
	r, _ := setupRegistry(t, out)
	ctx := context.Background()

	gomock.InOrder(
		out.EXPECT().Notify("marked"),
		out.EXPECT().Notify("1"),
		out.EXPECT().Notify("2\n3"),
		out.EXPECT().Notify("all unmarked"),
		out.EXPECT().Notify(""),
		out.EXPECT().Notify("all marked"),
		out.EXPECT().Notify("1: /pics/b.jpg"),
		out.EXPECT().Notify("unmarked"),
		out.EXPECT().Notify("* 2: /pics/c.jpg"),
	)

	for _, line := range []string{
		"mark", "ls-marked",
		"mark-invert", "ls-marked",
		"mark-all false", "ls-marked",
		"mark-all", "go 1", "mark 0", "page",
	} {
		if err := r.Execute(ctx, line); err != nil {
			t.Fatalf("%q failed: %v", line, err)
		}
	}
}

func TestMarkAllRejectsInvalidBool(t *testing.T) {
	ctrl := gomock.NewController(t)
	r, _ := setupRegistry(t, mocks.NewMockNotifier(ctrl))

	err := r.Execute(context.Background(), "mark-all maybe")
	if !errors.Is(err, ErrUsage) {
		t.Errorf("error = %v, want ErrUsage", err)
	}
}

func TestUsageErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	r, _ := setupRegistry(t, mocks.NewMockNotifier(ctrl))

	for _, line := range []string{"go", "go x", "move", "load-set", "save-set a b", "sort", "page 0"} {
		if err := r.Execute(context.Background(), line); !errors.Is(err, ErrUsage) {
			t.Errorf("%q: error = %v, want ErrUsage", line, err)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	ctrl := gomock.NewController(t)
	r, _ := setupRegistry(t, mocks.NewMockNotifier(ctrl))

	if err := r.Execute(context.Background(), "frobnicate"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("error = %v, want ErrUnknownCommand", err)
	}
	if err := r.Execute(context.Background(), "   "); err != nil {
		t.Errorf("blank line: %v", err)
	}
}

func TestSetCommands(t *testing.T) {
	ctrl := gomock.NewController(t)
	out := mocks.NewMockNotifier(ctrl)
	r, _ := setupRegistry(t, out)
	ctx := context.Background()

	gomock.InOrder(
		out.EXPECT().Notify("3 files"),
		out.EXPECT().Notify("saved 3 files as all"),
		out.EXPECT().Notify("1 files"),
		out.EXPECT().Notify("3 files"),
	)

	for _, line := range []string{"sort -size", "save-set all", "search filename:a.jpg", "load-set all"} {
		if err := r.Execute(ctx, line); err != nil {
			t.Fatalf("%q failed: %v", line, err)
		}
	}
}

func TestUpdateDBWithoutIndexer(t *testing.T) {
	ctrl := gomock.NewController(t)
	r, _ := setupRegistry(t, mocks.NewMockNotifier(ctrl))

	if err := r.Execute(context.Background(), "updatedb"); err == nil {
		t.Error("expected error without an indexer")
	}
	if err := r.Execute(context.Background(), "cancel-updatedb"); err != nil {
		t.Errorf("cancel-updatedb: %v", err)
	}
}

func TestInfoDescribesCurrentFile(t *testing.T) {
	ctrl := gomock.NewController(t)
	out := mocks.NewMockNotifier(ctrl)
	r, _ := setupRegistry(t, out)

	gomock.InOrder(
		out.EXPECT().Notify("2: /pics/c.jpg"),
		out.EXPECT().Notify("name: /pics/c.jpg\nsize: 3\ntype: image/jpeg"),
	)

	if err := r.Execute(context.Background(), "last"); err != nil {
		t.Fatal(err)
	}
	if err := r.Execute(context.Background(), "info"); err != nil {
		t.Fatal(err)
	}
}

func TestHelpListsEveryCommand(t *testing.T) {
	ctrl := gomock.NewController(t)
	out := mocks.NewMockNotifier(ctrl)
	r, _ := setupRegistry(t, out)

	var text string
	out.EXPECT().Notify(gomock.Any()).Do(func(s string) { text = s })

	if err := r.Run(context.Background(), "help"); err != nil {
		t.Fatal(err)
	}
	for _, name := range r.Names() {
		cmd, _ := r.Lookup(name)
		if !strings.Contains(text, cmd.Usage) {
			t.Errorf("help misses %s", name)
		}
	}
}
