package infra

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS characters (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		gender       TEXT NOT NULL DEFAULT 'other',
		adapter_tag  TEXT NOT NULL DEFAULT '',
		hair_tags    TEXT NOT NULL DEFAULT '',
		eye_tags     TEXT NOT NULL DEFAULT '',
		body_tags    TEXT NOT NULL DEFAULT '',
		attire_tags  TEXT NOT NULL DEFAULT '',
		extra_tags   TEXT NOT NULL DEFAULT '',
		style        TEXT NOT NULL DEFAULT '',
		theme        TEXT NOT NULL DEFAULT '',
		description  TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS reference_images (
		id           TEXT PRIMARY KEY,
		character_id TEXT NOT NULL REFERENCES characters(id) ON DELETE CASCADE,
		view         TEXT NOT NULL,
		storage_key  TEXT NOT NULL,
		url          TEXT NOT NULL,
		width        INT NOT NULL DEFAULT 0,
		height       INT NOT NULL DEFAULT 0,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS reference_images_character_idx
		ON reference_images (character_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS reference_jobs (
		id            TEXT PRIMARY KEY,
		character_id  TEXT NOT NULL REFERENCES characters(id) ON DELETE CASCADE,
		views         TEXT[] NOT NULL,
		user_input    TEXT NOT NULL DEFAULT '',
		sample_keys   TEXT[] NOT NULL DEFAULT '{}',
		status        TEXT NOT NULL DEFAULT 'queued',
		progress_json JSONB,
		error_message TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// One active run per character; the enqueue path surfaces violations as
	// ErrRunInProgress.
	`CREATE UNIQUE INDEX IF NOT EXISTS reference_jobs_active_idx
		ON reference_jobs (character_id)
		WHERE status IN ('queued', 'running')`,
	`CREATE INDEX IF NOT EXISTS reference_jobs_claim_idx
		ON reference_jobs (status, created_at)`,
}

// EnsureSchema creates the tables the service requires. It connects over
// database/sql with the pq driver, separate from the pgx pool the
// repositories use at runtime.
func EnsureSchema(ctx context.Context, databaseURL string) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("schema: open database: %w", err)
	}
	defer db.Close()
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema: apply statement: %w", err)
		}
	}
	return nil
}
