package database

import (
	"context"
	"database/sql"
	"strings"

	"cobiv/internal/metrics"
)

// InsertTags adds tags within a batch, skipping triples already present.
// It returns how many rows were inserted.
func (d *Database) InsertTags(ctx context.Context, tx *sql.Tx, tags []Tag) (int, error) {
	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO tag (file_key, kind, value) VALUES (?, ?, ?)")
	if err != nil {
		return 0, err
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, t := range tags {
		value := strings.TrimSpace(t.Value)
		if value == "" {
			continue
		}
		kind := t.Kind
		if kind == "" {
			kind = DefaultTagKind
		}

		result, err := stmt.ExecContext(ctx, t.FileKey, kind, value)
		if err != nil {
			return inserted, err
		}
		if n, _ := result.RowsAffected(); n > 0 {
			inserted += int(n)
		}
	}

	if inserted > 0 {
		metrics.DBRowsAffected.WithLabelValues("add_tags").Observe(float64(inserted))
	}
	return inserted, nil
}

// AddTags attaches values of kind to one file. Existing triples are left
// alone; the count of new rows is returned.
func (d *Database) AddTags(ctx context.Context, fileKey int64, kind string, values ...string) (int, error) {
	ctx, release := d.exclusive(ctx, defaultTimeout)
	defer release()

	tags := make([]Tag, 0, len(values))
	for _, v := range values {
		tags = append(tags, Tag{FileKey: fileKey, Kind: kind, Value: v})
	}

	var added int
	err := d.inTx(ctx, "add_tags", func(tx *sql.Tx) error {
		var err error
		added, err = d.InsertTags(ctx, tx, tags)
		return err
	})
	return added, err
}

// RemoveTags detaches values of kind from one file and returns how many rows
// were deleted.
func (d *Database) RemoveTags(ctx context.Context, fileKey int64, kind string, values ...string) (int, error) {
	ctx, release := d.exclusive(ctx, defaultTimeout)
	defer release()

	if kind == "" {
		kind = DefaultTagKind
	}

	removed := 0
	err := d.inTx(ctx, "remove_tags", func(tx *sql.Tx) error {
		for _, v := range values {
			result, err := tx.ExecContext(ctx,
				"DELETE FROM tag WHERE file_key = ? AND kind = ? AND value = ?",
				fileKey, kind, strings.TrimSpace(v))
			if err != nil {
				return err
			}
			n, _ := result.RowsAffected()
			removed += int(n)
		}
		return nil
	})
	return removed, err
}

// FileTags returns every tag of a file ordered by kind then value.
func (d *Database) FileTags(ctx context.Context, fileKey int64) ([]Tag, error) {
	ctx, release := d.shared(ctx, defaultTimeout)
	defer release()

	rows, err := d.db.QueryContext(ctx,
		"SELECT kind, value FROM tag WHERE file_key = ? ORDER BY kind, value", fileKey)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var tags []Tag
	for rows.Next() {
		t := Tag{FileKey: fileKey}
		if err := rows.Scan(&t.Kind, &t.Value); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
