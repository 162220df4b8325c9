package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// migrations are applied in order; the highest applied version is
// recorded in schema_migrations so the probe-and-patch pattern is never
// needed.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS works (
		id               TEXT PRIMARY KEY,
		title            TEXT NOT NULL DEFAULT '',
		url              TEXT NOT NULL DEFAULT '',
		notes            TEXT NOT NULL DEFAULT '',
		is_reviewed      BOOLEAN NOT NULL DEFAULT FALSE,
		architect        TEXT NOT NULL DEFAULT '',
		year             INTEGER,
		country          TEXT NOT NULL DEFAULT '',
		city             TEXT NOT NULL DEFAULT '',
		usage            TEXT NOT NULL DEFAULT '',
		structure        TEXT NOT NULL DEFAULT '',
		ai_description   TEXT NOT NULL DEFAULT '',
		thumbnail_url    TEXT NOT NULL DEFAULT '',
		is_analyzed      BOOLEAN NOT NULL DEFAULT FALSE,
		image_path       TEXT NOT NULL DEFAULT '',
		visual_analysis  TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_works_created_at ON works (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_works_is_reviewed ON works (is_reviewed)`,
	`CREATE INDEX IF NOT EXISTS idx_works_is_analyzed ON works (is_analyzed)`,
}

// Migrate brings the schema up to the current version.
func Migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		version := i + 1
		if current.Valid && int64(version) <= current.Int64 {
			continue
		}

		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", version, err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			return fmt.Errorf("record migration %d: %w", version, err)
		}
		if logger != nil {
			logger.Info("applied migration", "version", version)
		}
	}

	return nil
}
