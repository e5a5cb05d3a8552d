package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cobiv/internal/logging"
	"cobiv/internal/metrics"
	"cobiv/internal/progress"
)

// NamedSet looks up a persisted set.
func (d *Database) NamedSet(ctx context.Context, name string) (OrderedSet, error) {
	if name == CurrentSetName {
		return CurrentSet, nil
	}

	ctx, release := d.shared(ctx, defaultTimeout)
	defer release()

	set := OrderedSet{Name: name}
	err := d.db.QueryRowContext(ctx,
		"SELECT id, readonly FROM set_head WHERE name = ?", name,
	).Scan(&set.HeadKey, &set.ReadOnly)
	if errors.Is(err, sql.ErrNoRows) {
		return OrderedSet{}, fmt.Errorf("set %q: %w", name, ErrNotFound)
	}
	return set, err
}

// NamedSets lists persisted sets by name.
func (d *Database) NamedSets(ctx context.Context) ([]OrderedSet, error) {
	ctx, release := d.shared(ctx, defaultTimeout)
	defer release()

	rows, err := d.db.QueryContext(ctx, "SELECT id, name, readonly FROM set_head ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var sets []OrderedSet
	for rows.Next() {
		var s OrderedSet
		if err := rows.Scan(&s.HeadKey, &s.Name, &s.ReadOnly); err != nil {
			return nil, err
		}
		sets = append(sets, s)
	}
	return sets, rows.Err()
}

// SetReadOnly protects a named set from regeneration.
func (d *Database) SetReadOnly(ctx context.Context, name string, readOnly bool) error {
	ctx, release := d.shared(ctx, defaultTimeout)
	defer release()

	result, err := d.db.ExecContext(ctx, "UPDATE set_head SET readonly = ? WHERE name = ?", readOnly, name)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("set %q: %w", name, ErrNotFound)
	}
	return nil
}

// RegenerateSet replaces the content of the set called name with the file
// keys produced by query, numbered 0..n-1 in result order. The first result
// column must be the file key; any other columns are ignored.
//
// CurrentSetName rebuilds the transient working set. Any other name creates
// the persisted set when missing and fails with ErrReadOnlySet when it is
// protected.
func (d *Database) RegenerateSet(ctx context.Context, name string, rep progress.Reporter, query string, args ...any) (OrderedSet, int, error) {
	ctx, release := d.exclusive(ctx, longTimeout)
	defer release()

	var set OrderedSet
	var count int
	err := d.inTx(ctx, "regenerate_set", func(tx *sql.Tx) error {
		var err error
		set, count, err = regenerate(ctx, tx, name, progress.OrDiscard(rep), query, args...)
		return err
	})
	if err != nil {
		return OrderedSet{}, 0, err
	}

	logging.Debug("Regenerated set %q with %d entries", name, count)
	return set, count, nil
}

// SortCurrent reorders the working set. setup materializes whatever ordering
// needs, ordering selects the working set's file keys in their new order,
// and teardown drops what setup created. All three run in one transaction.
func (d *Database) SortCurrent(ctx context.Context, rep progress.Reporter, setup, ordering, teardown string) (int, error) {
	ctx, release := d.exclusive(ctx, longTimeout)
	defer release()

	var count int
	err := d.inTx(ctx, "sort_set", func(tx *sql.Tx) error {
		if teardown != "" {
			if _, err := tx.ExecContext(ctx, teardown); err != nil {
				return err
			}
		}
		if setup != "" {
			if _, err := tx.ExecContext(ctx, setup); err != nil {
				return fmt.Errorf("failed to prepare sort: %w", err)
			}
		}

		var err error
		_, count, err = regenerate(ctx, tx, CurrentSetName, progress.OrDiscard(rep), ordering)
		if err != nil {
			return err
		}

		if teardown != "" {
			_, err = tx.ExecContext(ctx, teardown)
		}
		return err
	})
	return count, err
}

func regenerate(ctx context.Context, tx *sql.Tx, name string, rep progress.Reporter, query string, args ...any) (OrderedSet, int, error) {
	set, err := resetSet(ctx, tx, name)
	if err != nil {
		return OrderedSet{}, 0, err
	}

	keys, err := queryKeys(ctx, tx, query, args...)
	if err != nil {
		return OrderedSet{}, 0, fmt.Errorf("failed to run set query: %w", err)
	}

	rep.SetMax(len(keys) + 1)
	rep.Reset(setCaption(name))

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO "+set.table()+" (set_head_key, position, file_key) VALUES (?, ?, ?)")
	if err != nil {
		return OrderedSet{}, 0, err
	}
	defer func() { _ = stmt.Close() }()

	for pos, key := range keys {
		if _, err := stmt.ExecContext(ctx, set.HeadKey, pos, key); err != nil {
			return OrderedSet{}, 0, err
		}
		rep.Tick()
	}
	rep.Tick()

	metrics.SetRegenerationsTotal.WithLabelValues(set.lifetime()).Inc()
	metrics.SetSize.WithLabelValues(set.lifetime()).Set(float64(len(keys)))
	return set, len(keys), nil
}

func setCaption(name string) string {
	switch name {
	case DefaultSetName:
		return "Creating default set..."
	case CurrentSetName:
		return "Loading results..."
	default:
		return fmt.Sprintf("Creating set %s...", name)
	}
}

// resetSet empties the named set, creating its head row when missing.
func resetSet(ctx context.Context, tx *sql.Tx, name string) (OrderedSet, error) {
	if name == CurrentSetName {
		_, err := tx.ExecContext(ctx, "DELETE FROM current_set")
		return CurrentSet, err
	}

	set := OrderedSet{Name: name}
	err := tx.QueryRowContext(ctx,
		"SELECT id, readonly FROM set_head WHERE name = ?", name,
	).Scan(&set.HeadKey, &set.ReadOnly)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		result, err := tx.ExecContext(ctx, "INSERT INTO set_head (name, readonly) VALUES (?, 0)", name)
		if err != nil {
			return OrderedSet{}, err
		}
		set.HeadKey, err = result.LastInsertId()
		return set, err
	case err != nil:
		return OrderedSet{}, err
	case set.ReadOnly:
		return OrderedSet{}, fmt.Errorf("set %q: %w", name, ErrReadOnlySet)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM set_detail WHERE set_head_key = ?", set.HeadKey)
	return set, err
}

// queryKeys reads the first column of every row as a file key, dropping
// repeats so the unique (set, file) constraint holds.
func queryKeys(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, errors.New("set query returns no columns")
	}

	var key int64
	dest := make([]any, len(cols))
	dest[0] = &key
	for i := 1; i < len(cols); i++ {
		dest[i] = new(any)
	}

	seen := make(map[int64]struct{})
	var keys []int64
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// CopyNamedToCurrent loads a persisted set into the working set, keeping
// its order. It returns the number of entries loaded.
func (d *Database) CopyNamedToCurrent(ctx context.Context, name string) (int, error) {
	ctx, release := d.exclusive(ctx, longTimeout)
	defer release()

	var count int
	err := d.inTx(ctx, "copy_set", func(tx *sql.Tx) error {
		var headKey int64
		err := tx.QueryRowContext(ctx, "SELECT id FROM set_head WHERE name = ?", name).Scan(&headKey)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("set %q: %w", name, ErrNotFound)
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM current_set"); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO current_set (set_head_key, position, file_key)
			SELECT 0, position, file_key FROM set_detail
			WHERE set_head_key = ?
			ORDER BY position
		`, headKey)
		if err != nil {
			return err
		}
		n, _ := result.RowsAffected()
		count = int(n)
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.SetSize.WithLabelValues("transient").Set(float64(count))
	return count, nil
}

// SetLen returns the number of entries in set.
func (d *Database) SetLen(ctx context.Context, set OrderedSet) (int, error) {
	ctx, release := d.shared(ctx, defaultTimeout)
	defer release()

	var n int
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+set.table()+" WHERE set_head_key = ?", set.HeadKey,
	).Scan(&n)
	return n, err
}

// SetEntryAt returns the entry at pos. ok is false when pos is outside the set.
func (d *Database) SetEntryAt(ctx context.Context, set OrderedSet, pos int) (entry SetEntry, ok bool, err error) {
	ctx, release := d.shared(ctx, defaultTimeout)
	defer release()

	err = d.db.QueryRowContext(ctx, `
		SELECT c.file_key, c.position, f.name
		FROM `+set.table()+` c
		JOIN file f ON f.id = c.file_key
		WHERE c.set_head_key = ? AND c.position = ?
	`, set.HeadKey, pos).Scan(&entry.FileKey, &entry.Position, &entry.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return SetEntry{}, false, nil
	}
	if err != nil {
		return SetEntry{}, false, err
	}
	return entry, true, nil
}

// SetNeighbors returns up to n entries strictly after pos (or strictly
// before it when after is false), in ascending position order.
func (d *Database) SetNeighbors(ctx context.Context, set OrderedSet, pos, n int, after bool) ([]SetEntry, error) {
	if n <= 0 {
		return nil, nil
	}

	ctx, release := d.shared(ctx, defaultTimeout)
	defer release()

	lo, hi := pos+1, pos+n
	if !after {
		lo, hi = pos-n, pos-1
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT c.file_key, c.position, f.name
		FROM `+set.table()+` c
		JOIN file f ON f.id = c.file_key
		WHERE c.set_head_key = ? AND c.position BETWEEN ? AND ?
		ORDER BY c.position
	`, set.HeadKey, lo, hi)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var entries []SetEntry
	for rows.Next() {
		var e SetEntry
		if err := rows.Scan(&e.FileKey, &e.Position, &e.Name); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SetFileKeys returns the file keys of set in position order.
func (d *Database) SetFileKeys(ctx context.Context, set OrderedSet) ([]int64, error) {
	ctx, release := d.shared(ctx, longTimeout)
	defer release()

	rows, err := d.db.QueryContext(ctx,
		"SELECT file_key FROM "+set.table()+" WHERE set_head_key = ? ORDER BY position", set.HeadKey)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var keys []int64
	for rows.Next() {
		var k int64
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// PositionMapping returns the position of each of fileKeys present in set.
func (d *Database) PositionMapping(ctx context.Context, set OrderedSet, fileKeys []int64) (map[int64]int, error) {
	mapping := make(map[int64]int, len(fileKeys))
	if len(fileKeys) == 0 {
		return mapping, nil
	}

	ctx, release := d.shared(ctx, defaultTimeout)
	defer release()

	args := make([]any, 0, len(fileKeys)+1)
	args = append(args, set.HeadKey)
	for _, k := range fileKeys {
		args = append(args, k)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(fileKeys)), ",")

	rows, err := d.db.QueryContext(ctx,
		"SELECT file_key, position FROM "+set.table()+
			" WHERE set_head_key = ? AND file_key IN ("+placeholders+")", args...)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	for rows.Next() {
		var key int64
		var pos int
		if err := rows.Scan(&key, &pos); err != nil {
			return nil, err
		}
		mapping[key] = pos
	}
	return mapping, rows.Err()
}

// RemoveSetEntry deletes the entry at pos, drops its mark and shifts the
// tail down by one. removed is false when pos holds no entry.
func (d *Database) RemoveSetEntry(ctx context.Context, set OrderedSet, pos int) (removed bool, err error) {
	ctx, release := d.exclusive(ctx, defaultTimeout)
	defer release()

	err = d.inTx(ctx, "remove_entry", func(tx *sql.Tx) error {
		var fileKey int64
		err := tx.QueryRowContext(ctx,
			"SELECT file_key FROM "+set.table()+" WHERE set_head_key = ? AND position = ?",
			set.HeadKey, pos,
		).Scan(&fileKey)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+set.table()+" WHERE set_head_key = ? AND position = ?", set.HeadKey, pos); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM marked WHERE file_key = ?", fileKey); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE "+set.table()+" SET position = position - 1 WHERE set_head_key = ? AND position > ?",
			set.HeadKey, pos); err != nil {
			return err
		}

		removed = true
		return nil
	})
	return removed, err
}

// MoveSetEntry relocates the entry at from to position to, shifting the
// entries in between by one toward the vacated slot. moved is false when
// either position is outside the set or they are equal.
func (d *Database) MoveSetEntry(ctx context.Context, set OrderedSet, from, to int) (moved bool, err error) {
	if from == to {
		return false, nil
	}

	ctx, release := d.exclusive(ctx, defaultTimeout)
	defer release()

	table := set.table()
	err = d.inTx(ctx, "move_entry", func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM "+table+" WHERE set_head_key = ?", set.HeadKey).Scan(&n); err != nil {
			return err
		}
		if from < 0 || from >= n || to < 0 || to >= n {
			return nil
		}

		shift := "UPDATE " + table + " SET position = position - 1 WHERE set_head_key = ? AND position > ? AND position <= ?"
		if to < from {
			shift = "UPDATE " + table + " SET position = position + 1 WHERE set_head_key = ? AND position < ? AND position >= ?"
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE "+table+" SET position = -1 WHERE set_head_key = ? AND position = ?", set.HeadKey, from); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, shift, set.HeadKey, from, to); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE "+table+" SET position = ? WHERE set_head_key = ? AND position = -1", to, set.HeadKey); err != nil {
			return err
		}

		moved = true
		return nil
	})
	return moved, err
}
