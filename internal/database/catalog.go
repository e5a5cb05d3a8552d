package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateCatalog inserts a catalog and returns its key.
// An existing name yields ErrAlreadyExists.
func (d *Database) CreateCatalog(ctx context.Context, name string) (int64, error) {
	done := observeQuery("create_catalog")

	ctx, release := d.shared(ctx, defaultTimeout)
	defer release()

	result, err := d.db.ExecContext(ctx, "INSERT INTO catalog (name) VALUES (?)", name)
	if err != nil {
		done(err)
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("catalog %q: %w", name, ErrAlreadyExists)
		}
		return 0, fmt.Errorf("failed to create catalog: %w", err)
	}
	done(nil)

	return result.LastInsertId()
}

// CatalogKey looks up a catalog by name.
func (d *Database) CatalogKey(ctx context.Context, name string) (int64, error) {
	ctx, release := d.shared(ctx, defaultTimeout)
	defer release()

	var id int64
	err := d.db.QueryRowContext(ctx, "SELECT id FROM catalog WHERE name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("catalog %q: %w", name, ErrNotFound)
	}
	return id, err
}

// AddRepository registers a scan root under a catalog.
// A path already registered for the catalog yields ErrAlreadyExists.
func (d *Database) AddRepository(ctx context.Context, catalogKey int64, path string, recursive bool) (int64, error) {
	done := observeQuery("add_repository")

	ctx, release := d.shared(ctx, defaultTimeout)
	defer release()

	result, err := d.db.ExecContext(ctx,
		"INSERT INTO repository (catalog_key, path, recursive) VALUES (?, ?, ?)",
		catalogKey, path, recursive,
	)
	if err != nil {
		done(err)
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("repository %q: %w", path, ErrAlreadyExists)
		}
		return 0, fmt.Errorf("failed to add repository: %w", err)
	}
	done(nil)

	return result.LastInsertId()
}

// Repositories lists every scan root.
func (d *Database) Repositories(ctx context.Context) ([]Repository, error) {
	ctx, release := d.shared(ctx, defaultTimeout)
	defer release()

	rows, err := d.db.QueryContext(ctx, "SELECT id, catalog_key, path, recursive FROM repository ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var repos []Repository
	for rows.Next() {
		var r Repository
		if err := rows.Scan(&r.ID, &r.CatalogKey, &r.Path, &r.Recursive); err != nil {
			return nil, err
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}
