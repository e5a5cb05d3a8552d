package session

import (
	"context"
	"strconv"
	"time"

	"cobiv/internal/database"
	"cobiv/internal/events"
	"cobiv/internal/logging"
	"cobiv/internal/media"
	"cobiv/internal/metrics"
)

// fieldTimeout bounds the lookup behind Field, which has no context.
const fieldTimeout = 2 * time.Second

// Cursor points at one position of an ordered set and keeps the file key
// and name found there. A Cursor is not safe for concurrent use.
//
// Several cursors may share a set. Remove and MoveTo renumber the set, so
// positions held by other cursors over the same set must be re-derived
// after either call.
type Cursor struct {
	db    *database.Database
	set   database.OrderedSet
	cache *media.ThumbnailCache
	bus   *events.Bus

	pos     int
	valid   bool
	fileKey int64
	name    string
	record  *database.FileRecord
}

// newCursor binds a cursor to set and moves it to the first entry, if any.
// cache and bus may be nil.
func newCursor(ctx context.Context, db *database.Database, set database.OrderedSet, cache *media.ThumbnailCache, bus *events.Bus) (*Cursor, error) {
	c := &Cursor{db: db, set: set, cache: cache, bus: bus}
	if _, err := c.Go(ctx, 0); err != nil {
		return nil, err
	}
	if !c.valid {
		c.publish()
	}
	return c, nil
}

// Set returns the set the cursor is bound to.
func (c *Cursor) Set() database.OrderedSet {
	return c.set
}

// Position returns the current position; ok is false when the set is empty.
func (c *Cursor) Position() (pos int, ok bool) {
	return c.pos, c.valid
}

// FileKey returns the key of the current file, or 0.
func (c *Cursor) FileKey() int64 {
	return c.fileKey
}

// Name returns the full path of the current file, or "".
func (c *Cursor) Name() string {
	return c.name
}

// Len returns the size of the bound set.
func (c *Cursor) Len(ctx context.Context) (int, error) {
	return c.db.SetLen(ctx, c.set)
}

// Get returns the entry at pos without moving the cursor.
func (c *Cursor) Get(ctx context.Context, pos int) (database.SetEntry, bool, error) {
	return c.db.SetEntryAt(ctx, c.set, pos)
}

// Go moves to pos. Out of range positions return false and leave the
// cursor unchanged.
func (c *Cursor) Go(ctx context.Context, pos int) (bool, error) {
	if pos < 0 {
		return false, nil
	}

	entry, ok, err := c.db.SetEntryAt(ctx, c.set, pos)
	if err != nil || !ok {
		return false, err
	}

	c.pos = entry.Position
	c.valid = true
	c.fileKey = entry.FileKey
	c.name = entry.Name
	c.record = nil
	c.publish()
	return true, nil
}

// Next moves one position forward.
func (c *Cursor) Next(ctx context.Context) (bool, error) {
	if !c.valid {
		return false, nil
	}
	return c.Go(ctx, c.pos+1)
}

// Previous moves one position back.
func (c *Cursor) Previous(ctx context.Context) (bool, error) {
	if !c.valid {
		return false, nil
	}
	return c.Go(ctx, c.pos-1)
}

// First moves to position 0.
func (c *Cursor) First(ctx context.Context) (bool, error) {
	return c.Go(ctx, 0)
}

// Last moves to the final position.
func (c *Cursor) Last(ctx context.Context) (bool, error) {
	n, err := c.Len(ctx)
	if err != nil {
		return false, err
	}
	return c.Go(ctx, n-1)
}

// NextIDs returns up to n entries after the current position, in position
// order, with their mark state filled in.
func (c *Cursor) NextIDs(ctx context.Context, n int) ([]database.SetEntry, error) {
	return c.neighbors(ctx, n, true)
}

// PreviousIDs returns up to n entries before the current position, in
// position order, with their mark state filled in.
func (c *Cursor) PreviousIDs(ctx context.Context, n int) ([]database.SetEntry, error) {
	return c.neighbors(ctx, n, false)
}

func (c *Cursor) neighbors(ctx context.Context, n int, after bool) ([]database.SetEntry, error) {
	if !c.valid || n <= 0 {
		return nil, nil
	}

	entries, err := c.db.SetNeighbors(ctx, c.set, c.pos, n, after)
	if err != nil || len(entries) == 0 {
		return entries, err
	}

	marked, err := c.db.MarkedBitmap(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Marked = marked.Contains(uint64(entries[i].FileKey))
	}
	return entries, nil
}

// CursorAt returns an independent cursor over the same set at pos. It
// publishes no events. ok is false when pos is out of range.
func (c *Cursor) CursorAt(ctx context.Context, pos int) (*Cursor, bool, error) {
	other := &Cursor{db: c.db, set: c.set, cache: c.cache}
	ok, err := other.Go(ctx, pos)
	if err != nil || !ok {
		return nil, false, err
	}
	return other, true, nil
}

// Remove deletes the current entry from the set and from the mark set,
// then moves to the entry that followed it, else the one before, else
// nowhere. It returns false when there was nothing to remove.
func (c *Cursor) Remove(ctx context.Context) (bool, error) {
	if !c.valid {
		return false, nil
	}

	removed, err := c.db.RemoveSetEntry(ctx, c.set, c.pos)
	if err != nil || !removed {
		return false, err
	}
	metrics.CursorMutationsTotal.WithLabelValues("remove").Inc()
	logging.Debug("Removed %s from set %q at %d", c.name, c.set.Name, c.pos)

	pos := c.pos
	if ok, err := c.Go(ctx, pos); err != nil || ok {
		return true, err
	}
	if ok, err := c.Go(ctx, pos-1); err != nil || ok {
		return true, err
	}

	c.clear()
	c.publish()
	return true, nil
}

// MoveTo relocates the current entry to pos, shifting the entries in
// between. The cursor follows the entry. It returns false when pos equals
// the current position or is out of range.
func (c *Cursor) MoveTo(ctx context.Context, pos int) (bool, error) {
	if !c.valid || pos == c.pos {
		return false, nil
	}

	moved, err := c.db.MoveSetEntry(ctx, c.set, c.pos, pos)
	if err != nil || !moved {
		return false, err
	}
	metrics.CursorMutationsTotal.WithLabelValues("move").Inc()

	c.pos = pos
	return true, nil
}

// Mark sets the mark of the current file, or toggles it when value is nil.
// It returns the resulting mark state.
func (c *Cursor) Mark(ctx context.Context, value *bool) (bool, error) {
	if !c.valid {
		return false, nil
	}

	var mark bool
	if value != nil {
		mark = *value
	} else {
		marked, err := c.db.IsMarked(ctx, c.fileKey)
		if err != nil {
			return false, err
		}
		mark = !marked
	}

	if err := c.db.SetMark(ctx, c.fileKey, mark); err != nil {
		return false, err
	}
	metrics.CursorMutationsTotal.WithLabelValues("mark").Inc()
	return mark, nil
}

// Marked reports whether the current file is marked.
func (c *Cursor) Marked(ctx context.Context) (bool, error) {
	if !c.valid {
		return false, nil
	}
	return c.db.IsMarked(ctx, c.fileKey)
}

// AllMarked returns every marked file key, whether or not it belongs to
// the bound set.
func (c *Cursor) AllMarked(ctx context.Context) ([]int64, error) {
	return c.db.MarkedKeys(ctx)
}

// PositionMapping returns the position in the bound set of each file key
// present there.
func (c *Cursor) PositionMapping(ctx context.Context, fileKeys []int64) (map[int64]int, error) {
	return c.db.PositionMapping(ctx, c.set, fileKeys)
}

// Tags returns the tags of the current file.
func (c *Cursor) Tags(ctx context.Context) ([]database.Tag, error) {
	if !c.valid {
		return nil, nil
	}
	return c.db.FileTags(ctx, c.fileKey)
}

// ThumbnailPath returns the thumbnail of the current file, generating it
// when needed. It returns "" without a cache or a current file.
func (c *Cursor) ThumbnailPath() string {
	if !c.valid || c.cache == nil {
		return ""
	}
	return c.cache.Get(c.fileKey, c.name)
}

// Field returns a field of the current file for criterion templates.
func (c *Cursor) Field(name string) string {
	if !c.valid {
		return ""
	}

	switch name {
	case "id":
		return strconv.FormatInt(c.fileKey, 10)
	case "name":
		return c.name
	}

	if c.record == nil {
		ctx, cancel := context.WithTimeout(context.Background(), fieldTimeout)
		defer cancel()

		rec, err := c.db.File(ctx, c.fileKey)
		if err != nil {
			logging.Warn("Failed to load file %d for field %s: %v", c.fileKey, name, err)
			return ""
		}
		c.record = rec
	}

	switch name {
	case "filename":
		return c.record.Filename
	case "path":
		return c.record.Dir
	case "ext":
		return c.record.Ext
	case "size":
		return strconv.FormatInt(c.record.Size, 10)
	case "file_date":
		return strconv.FormatInt(c.record.ModTime.Unix(), 10)
	}
	return ""
}

func (c *Cursor) clear() {
	c.pos = 0
	c.valid = false
	c.fileKey = 0
	c.name = ""
	c.record = nil
}

func (c *Cursor) publish() {
	if c.bus != nil {
		c.bus.CursorChanged(c.fileKey, c.name)
	}
}
