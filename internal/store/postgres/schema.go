// Package postgres provides a PostgreSQL-backed [store.RecordStore].
//
// Usage:
//
//	s, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer s.Close()
//
//	_ = s.Create(ctx, rec)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlRecordings = `
CREATE TABLE IF NOT EXISTS recordings (
    id                TEXT         PRIMARY KEY,
    story_id          TEXT         NOT NULL,
    prompt_id         TEXT         NOT NULL DEFAULT '',
    audio_key         TEXT         NOT NULL,
    content_type      TEXT         NOT NULL DEFAULT '',
    duration_ms       DOUBLE PRECISION NOT NULL DEFAULT 0,
    silence_ratio     DOUBLE PRECISION NOT NULL DEFAULT 0,
    average_energy    DOUBLE PRECISION NOT NULL DEFAULT 0,
    quality_warnings  JSONB        NOT NULL DEFAULT '[]',
    transcript        JSONB,
    raw_transcript    TEXT         NOT NULL DEFAULT '',
    confidence_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
    validation_flags  JSONB        NOT NULL DEFAULT '[]',
    language          TEXT         NOT NULL DEFAULT '',
    model             TEXT         NOT NULL DEFAULT '',
    edited            BOOLEAN      NOT NULL DEFAULT false,
    created_at        TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_recordings_story_created
    ON recordings (story_id, created_at, id);
`

// Migrate creates the recordings table and its indexes. It is idempotent and
// safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlRecordings); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
