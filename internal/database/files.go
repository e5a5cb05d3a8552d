package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cobiv/internal/metrics"
)

// RepositoryFiles returns the full paths cataloged under a repository.
func (d *Database) RepositoryFiles(ctx context.Context, repoKey int64) ([]string, error) {
	ctx, release := d.shared(ctx, longTimeout)
	defer release()

	rows, err := d.db.QueryContext(ctx, "SELECT name FROM file WHERE repo_key = ?", repoKey)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// InsertFile adds a file within a batch and sets file.ID.
func (d *Database) InsertFile(ctx context.Context, tx *sql.Tx, file *FileRecord) error {
	done := observeQuery("insert_files")

	result, err := tx.ExecContext(ctx, `
		INSERT INTO file (repo_key, name, filename, path, ext, size, file_date, searchable)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		file.RepoKey,
		file.Name,
		file.Filename,
		file.Dir,
		file.Ext,
		file.Size,
		file.ModTime.Unix(),
		file.Searchable,
	)
	if err != nil {
		done(err)
		return fmt.Errorf("failed to insert %s: %w", file.Name, err)
	}

	file.ID, err = result.LastInsertId()
	done(err)
	return err
}

// DeleteFiles removes files by full path within a batch, together with their
// tags, marks and membership in every ordered set. Set positions behind each
// removed entry are shifted down so every set stays contiguous.
// It returns the keys of the files that existed.
func (d *Database) DeleteFiles(ctx context.Context, tx *sql.Tx, names []string) ([]int64, error) {
	done := observeQuery("delete_files")

	var removed []int64
	var err error
	defer func() { done(err) }()

	for _, name := range names {
		var id int64
		err = tx.QueryRowContext(ctx, "SELECT id FROM file WHERE name = ?", name).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
			continue
		}
		if err != nil {
			return removed, err
		}

		if err = purgeFile(ctx, tx, id); err != nil {
			return removed, fmt.Errorf("failed to delete %s: %w", name, err)
		}
		removed = append(removed, id)
	}

	if len(removed) > 0 {
		metrics.DBRowsAffected.WithLabelValues("delete_files").Observe(float64(len(removed)))
	}
	return removed, nil
}

func purgeFile(ctx context.Context, tx *sql.Tx, id int64) error {
	if err := removeFromSets(ctx, tx, "set_detail", id); err != nil {
		return err
	}
	if err := removeFromSets(ctx, tx, "current_set", id); err != nil {
		return err
	}

	for _, stmt := range []string{
		"DELETE FROM tag WHERE file_key = ?",
		"DELETE FROM marked WHERE file_key = ?",
		"DELETE FROM file WHERE id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	return nil
}

// removeFromSets deletes fileKey from every set stored in table and closes
// the resulting position gaps.
func removeFromSets(ctx context.Context, tx *sql.Tx, table string, fileKey int64) error {
	type slot struct {
		head int64
		pos  int
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT set_head_key, position FROM "+table+" WHERE file_key = ?", fileKey)
	if err != nil {
		return err
	}
	var slots []slot
	for rows.Next() {
		var s slot
		if err := rows.Scan(&s.head, &s.pos); err != nil {
			closeRows(rows)
			return err
		}
		slots = append(slots, s)
	}
	closeRows(rows)
	if err := rows.Err(); err != nil {
		return err
	}

	for _, s := range slots {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE set_head_key = ? AND file_key = ?", s.head, fileKey); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE "+table+" SET position = position - 1 WHERE set_head_key = ? AND position > ?",
			s.head, s.pos); err != nil {
			return err
		}
	}
	return nil
}

// File returns a file by key.
func (d *Database) File(ctx context.Context, id int64) (*FileRecord, error) {
	ctx, release := d.shared(ctx, defaultTimeout)
	defer release()

	var f FileRecord
	var fileDate int64
	err := d.db.QueryRowContext(ctx, `
		SELECT id, repo_key, name, filename, path, ext, size, file_date, searchable
		FROM file WHERE id = ?
	`, id).Scan(&f.ID, &f.RepoKey, &f.Name, &f.Filename, &f.Dir, &f.Ext, &f.Size, &fileDate, &f.Searchable)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	f.ModTime = time.Unix(fileDate, 0)
	return &f, nil
}

// SetSearchable flags whether a file can be returned by searches.
func (d *Database) SetSearchable(ctx context.Context, id int64, searchable bool) error {
	ctx, release := d.shared(ctx, defaultTimeout)
	defer release()

	result, err := d.db.ExecContext(ctx, "UPDATE file SET searchable = ? WHERE id = ?", searchable, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("file %d: %w", id, ErrNotFound)
	}
	return nil
}
