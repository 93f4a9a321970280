package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations holds the schema history. Entry i upgrades a database from
// user_version i to i+1; existing entries must never change.
var migrations = [][]string{
	{
		`CREATE TABLE jobs (
			id         TEXT PRIMARY KEY,
			status     TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE job_status (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id     TEXT NOT NULL REFERENCES jobs(id),
			status     TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE job_parameters (
			job_id     TEXT NOT NULL REFERENCES jobs(id),
			name       TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (job_id, name)
		)`,
		`CREATE INDEX idx_job_status_job_id ON job_status(job_id)`,
		`CREATE INDEX idx_jobs_updated_at ON jobs(updated_at)`,
	},
	{
		`ALTER TABLE job_status ADD COLUMN source TEXT NOT NULL DEFAULT ''`,
	},
	{
		`CREATE INDEX idx_jobs_status ON jobs(status)`,
	},
}

// SchemaVersion is the user_version of a fully migrated database.
var SchemaVersion = len(migrations)

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&v)
	return v, err
}

// migrate applies the migrations the database has not seen yet, one
// transaction per version.
func migrate(ctx context.Context, db *sql.DB) error {
	have, err := schemaVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if have > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than this binary (%d)", have, SchemaVersion)
	}
	for v := have; v < SchemaVersion; v++ {
		if err := applyMigration(ctx, db, v); err != nil {
			return fmt.Errorf("migrate to version %d: %w", v+1, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, v int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range migrations[v] {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, v+1)); err != nil {
		return err
	}
	return tx.Commit()
}
