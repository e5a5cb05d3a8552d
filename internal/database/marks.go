package database

import (
	"context"
	"database/sql"

	"github.com/RoaringBitmap/roaring/roaring64"

	"cobiv/internal/metrics"
)

// SetMark adds or removes fileKey from the mark set.
func (d *Database) SetMark(ctx context.Context, fileKey int64, value bool) error {
	done := observeQuery("set_mark")

	ctx, release := d.shared(ctx, defaultTimeout)
	defer release()

	query := "DELETE FROM marked WHERE file_key = ?"
	if value {
		query = "INSERT OR IGNORE INTO marked (file_key) VALUES (?)"
	}

	_, err := d.db.ExecContext(ctx, query, fileKey)
	done(err)
	return err
}

// IsMarked reports whether fileKey is marked.
func (d *Database) IsMarked(ctx context.Context, fileKey int64) (bool, error) {
	ctx, release := d.shared(ctx, defaultTimeout)
	defer release()

	var n int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM marked WHERE file_key = ?", fileKey).Scan(&n)
	return n > 0, err
}

// MarkAll marks (value true) or unmarks (value false) every file of the
// working set. A nil value marks everything when at least one working-set
// file is unmarked and clears the working set's marks otherwise. Marks on
// files outside the working set are untouched. The applied value is returned.
func (d *Database) MarkAll(ctx context.Context, value *bool) (bool, error) {
	ctx, release := d.exclusive(ctx, longTimeout)
	defer release()

	var applied bool
	err := d.inTx(ctx, "mark_all", func(tx *sql.Tx) error {
		if value == nil {
			var unmarked int
			if err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM current_set c
				LEFT JOIN marked m ON m.file_key = c.file_key
				WHERE m.file_key IS NULL
			`).Scan(&unmarked); err != nil {
				return err
			}
			applied = unmarked > 0
		} else {
			applied = *value
		}

		query := "DELETE FROM marked WHERE file_key IN (SELECT file_key FROM current_set)"
		if applied {
			query = "INSERT OR IGNORE INTO marked (file_key) SELECT file_key FROM current_set"
		}
		result, err := tx.ExecContext(ctx, query)
		observeRows("mark_all", result)
		return err
	})
	return applied, err
}

// InvertMarks flips the mark of every working-set file. The new marks are
// computed as the working set minus the existing mark set before anything is
// written; marks outside the working set are untouched.
func (d *Database) InvertMarks(ctx context.Context) error {
	ctx, release := d.exclusive(ctx, longTimeout)
	defer release()

	return d.inTx(ctx, "invert_marks", func(tx *sql.Tx) error {
		for _, stmt := range []string{
			"DROP TABLE IF EXISTS temp.marked_inverted",
			`CREATE TEMP TABLE marked_inverted AS
				SELECT c.file_key FROM current_set c
				LEFT JOIN marked m ON m.file_key = c.file_key
				WHERE m.file_key IS NULL`,
			"DELETE FROM marked WHERE file_key IN (SELECT file_key FROM current_set)",
			"INSERT OR IGNORE INTO marked (file_key) SELECT file_key FROM marked_inverted",
			"DROP TABLE marked_inverted",
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		metrics.CursorMutationsTotal.WithLabelValues("mark").Inc()
		return nil
	})
}

// MarkedKeys returns every marked file key in ascending order.
func (d *Database) MarkedKeys(ctx context.Context) ([]int64, error) {
	ctx, release := d.shared(ctx, defaultTimeout)
	defer release()

	rows, err := d.db.QueryContext(ctx, "SELECT file_key FROM marked ORDER BY file_key")
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

// MarkedBitmap returns a snapshot of the mark set for membership tests over
// a page of entries without a query per entry.
func (d *Database) MarkedBitmap(ctx context.Context) (*roaring64.Bitmap, error) {
	keys, err := d.MarkedKeys(ctx)
	if err != nil {
		return nil, err
	}

	bm := roaring64.New()
	for _, k := range keys {
		bm.Add(uint64(k))
	}
	return bm, nil
}
