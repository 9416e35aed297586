package database

import (
	"context"
	"fmt"
)

// schema is idempotent. The partial unique index keeps at most one active
// record per source and external id.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS harvested_jobs (
		id                   TEXT PRIMARY KEY,
		source               TEXT NOT NULL,
		external_id          TEXT NOT NULL DEFAULT '',
		status               TEXT NOT NULL DEFAULT 'active',
		title                TEXT NOT NULL,
		company              TEXT NOT NULL,
		location             TEXT NOT NULL DEFAULT '',
		description          TEXT NOT NULL,
		requirements         TEXT[] NOT NULL DEFAULT '{}',
		responsibilities     TEXT[] NOT NULL DEFAULT '{}',
		benefits             TEXT[] NOT NULL DEFAULT '{}',
		skills               TEXT[] NOT NULL DEFAULT '{}',
		contact_email        TEXT NOT NULL DEFAULT '',
		contact_phone        TEXT NOT NULL DEFAULT '',
		application_deadline TIMESTAMPTZ,
		posted_date          TIMESTAMPTZ,
		source_url           TEXT NOT NULL DEFAULT '',
		content_hash         TEXT NOT NULL,
		title_key            TEXT NOT NULL,
		company_key          TEXT NOT NULL,
		description_key      TEXT NOT NULL DEFAULT '',
		first_seen_at        TIMESTAMPTZ NOT NULL,
		last_seen_at         TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS harvested_jobs_active_external_id
		ON harvested_jobs (source, external_id) WHERE status = 'active' AND external_id <> ''`,
	`CREATE INDEX IF NOT EXISTS harvested_jobs_title_company ON harvested_jobs (source, title_key, company_key)`,
	`CREATE INDEX IF NOT EXISTS harvested_jobs_content_hash ON harvested_jobs (source, content_hash)`,
	`CREATE INDEX IF NOT EXISTS harvested_jobs_last_seen ON harvested_jobs (source, last_seen_at DESC)`,
}

// EnsureSchema creates the jobs table and its indexes when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
