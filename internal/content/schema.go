package content

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrSchemaMismatch indicates the database was written by a newer sloppy.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// migrations returns the embedded scripts in apply order. Script N moves
// the database from user_version N-1 to N.
func migrations() ([]string, error) {
	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// migrate brings the database up to the newest embedded migration, tracking
// progress in PRAGMA user_version. Each step commits on its own.
func (s *Store) migrate(ctx context.Context) error {
	scripts, err := migrations()
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > len(scripts) {
		return fmt.Errorf("%w: database has version %d, this build knows %d (delete %s to start over)",
			ErrSchemaMismatch, current, len(scripts), s.path)
	}

	for version := current + 1; version <= len(scripts); version++ {
		body, err := migrationFS.ReadFile(scripts[version-1])
		if err != nil {
			return fmt.Errorf("read migration %d: %w", version, err)
		}
		if err := s.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return err
			}
			// PRAGMA does not accept bound parameters.
			_, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
			return err
		}); err != nil {
			return fmt.Errorf("apply migration %s: %w", scripts[version-1], err)
		}
	}
	return nil
}
