package sqldb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

const migrationTable = "schema_migrations"

// Migrate applies the embedded migrations for the active dialect. Each file
// runs at most once, in its own transaction, and is recorded by name in
// schema_migrations.
//
// Files may carry "-- +migrate Up" / "-- +migrate Down" markers; only the Up
// section is executed. Down sections exist for manual rollbacks.
func (db *DB) Migrate(ctx context.Context) error {
	root := path.Join("migrations", db.driver)

	entries, err := fs.ReadDir(migrationFS, root)
	if err != nil {
		return fmt.Errorf("sqldb: reading migrations: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+migrationTable+` (
			name       TEXT PRIMARY KEY,
			applied_at BIGINT NOT NULL
		)`); err != nil {
		return fmt.Errorf("sqldb: ensuring migration table: %w", err)
	}

	for _, file := range files {
		applied, err := db.migrationApplied(ctx, file)
		if err != nil {
			return fmt.Errorf("sqldb: checking migration %s: %w", file, err)
		}
		if applied {
			continue
		}

		content, err := fs.ReadFile(migrationFS, path.Join(root, file))
		if err != nil {
			return fmt.Errorf("sqldb: reading migration %s: %w", file, err)
		}

		up := upSection(string(content))
		if strings.TrimSpace(up) == "" {
			continue
		}

		err = db.WithTransaction(ctx, func(tx *DB) error {
			if _, err := tx.q.ExecContext(ctx, up); err != nil {
				return fmt.Errorf("exec: %w", err)
			}
			_, err := tx.q.ExecContext(ctx,
				tx.conn.Rebind(`INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?) ON CONFLICT DO NOTHING`),
				file, time.Now().UTC().UnixMilli(),
			)
			if err != nil {
				return fmt.Errorf("record: %w", err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("sqldb: migration %s: %w", file, err)
		}
	}

	return nil
}

func (db *DB) migrationApplied(ctx context.Context, name string) (bool, error) {
	var found int
	err := db.conn.QueryRowxContext(ctx,
		db.conn.Rebind(`SELECT 1 FROM `+migrationTable+` WHERE name = ?`), name,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// upSection returns the SQL between the Up and Down markers, or the whole
// file when it has no markers.
func upSection(content string) string {
	const upMarker, downMarker = "-- +migrate Up", "-- +migrate Down"

	start := strings.Index(content, upMarker)
	if start == -1 {
		return content
	}
	content = content[start+len(upMarker):]

	if end := strings.Index(content, downMarker); end != -1 {
		content = content[:end]
	}
	return content
}
