package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/memoira/internal/store"
	"github.com/MrWong99/memoira/internal/transcript"
)

var _ store.RecordStore = (*Store)(nil)

// uniqueViolation is the SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

const recordingColumns = `id, story_id, prompt_id, audio_key, content_type,
	duration_ms, silence_ratio, average_energy, quality_warnings,
	transcript, raw_transcript, confidence_score, validation_flags,
	language, model, edited, created_at, updated_at`

// Store is a [store.RecordStore] backed by a single [pgxpool.Pool].
// All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewStore connects to the database at dsn, pings it and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool, now: time.Now}, nil
}

// Close releases all connections held by the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Create implements [store.RecordStore].
func (s *Store) Create(ctx context.Context, rec store.Recording) error {
	warnings, err := marshalJSON(nonNil(rec.QualityWarnings))
	if err != nil {
		return fmt.Errorf("postgres store: create: %w", err)
	}
	flags, err := marshalJSON(nonNil(rec.ValidationFlags))
	if err != nil {
		return fmt.Errorf("postgres store: create: %w", err)
	}
	var tr *string
	if rec.Transcript != nil {
		v, err := marshalJSON(rec.Transcript)
		if err != nil {
			return fmt.Errorf("postgres store: create: %w", err)
		}
		tr = &v
	}

	const q = `
		INSERT INTO recordings (` + recordingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10::jsonb, $11, $12,
		        $13::jsonb, $14, $15, $16, $17, $18)`

	_, err = s.pool.Exec(ctx, q,
		rec.ID, rec.StoryID, rec.PromptID, rec.AudioKey, rec.ContentType,
		rec.DurationMs, rec.SilenceRatio, rec.AverageEnergy, warnings,
		tr, rec.RawTranscript, rec.ConfidenceScore, flags,
		rec.Language, rec.Model, rec.Edited, rec.CreatedAt, rec.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return store.ErrDuplicateID
	}
	if err != nil {
		return fmt.Errorf("postgres store: create: %w", err)
	}
	return nil
}

// Get implements [store.RecordStore].
func (s *Store) Get(ctx context.Context, id string) (store.Recording, error) {
	const q = `SELECT ` + recordingColumns + ` FROM recordings WHERE id = $1`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return store.Recording{}, fmt.Errorf("postgres store: get: %w", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanRecording)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Recording{}, store.ErrNotFound
	}
	if err != nil {
		return store.Recording{}, fmt.Errorf("postgres store: get: %w", err)
	}
	return rec, nil
}

// ListByStory implements [store.RecordStore].
func (s *Store) ListByStory(ctx context.Context, storyID string) ([]store.Recording, error) {
	const q = `
		SELECT ` + recordingColumns + `
		FROM   recordings
		WHERE  story_id = $1
		ORDER  BY created_at, id`

	rows, err := s.pool.Query(ctx, q, storyID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanRecording)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	if recs == nil {
		recs = []store.Recording{}
	}
	return recs, nil
}

// SaveTranscript implements [store.RecordStore]. Every transcript column is
// overwritten in one statement.
func (s *Store) SaveTranscript(ctx context.Context, id string, u store.TranscriptUpdate) (store.Recording, error) {
	tr, err := marshalJSON(u.Formatted)
	if err != nil {
		return store.Recording{}, fmt.Errorf("postgres store: save transcript: %w", err)
	}
	flags, err := marshalJSON(nonNil(u.Flags))
	if err != nil {
		return store.Recording{}, fmt.Errorf("postgres store: save transcript: %w", err)
	}

	const q = `
		UPDATE recordings
		SET    transcript       = $2::jsonb,
		       raw_transcript   = $3,
		       confidence_score = $4,
		       validation_flags = $5::jsonb,
		       language         = $6,
		       model            = $7,
		       edited           = $8,
		       updated_at       = $9
		WHERE  id = $1
		RETURNING ` + recordingColumns

	rows, err := s.pool.Query(ctx, q, id, tr, u.Raw, u.Confidence, flags, u.Language, u.Model, u.Edited, s.now())
	if err != nil {
		return store.Recording{}, fmt.Errorf("postgres store: save transcript: %w", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanRecording)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Recording{}, store.ErrNotFound
	}
	if err != nil {
		return store.Recording{}, fmt.Errorf("postgres store: save transcript: %w", err)
	}
	return rec, nil
}

// Ping implements [store.RecordStore].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres store: ping: %w", err)
	}
	return nil
}

// scanRecording scans one row selected with recordingColumns.
func scanRecording(row pgx.CollectableRow) (store.Recording, error) {
	var (
		r                   store.Recording
		warnings, tr, flags []byte
	)
	if err := row.Scan(
		&r.ID, &r.StoryID, &r.PromptID, &r.AudioKey, &r.ContentType,
		&r.DurationMs, &r.SilenceRatio, &r.AverageEnergy, &warnings,
		&tr, &r.RawTranscript, &r.ConfidenceScore, &flags,
		&r.Language, &r.Model, &r.Edited, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return store.Recording{}, err
	}
	if err := json.Unmarshal(warnings, &r.QualityWarnings); err != nil {
		return store.Recording{}, fmt.Errorf("decode quality_warnings: %w", err)
	}
	if err := json.Unmarshal(flags, &r.ValidationFlags); err != nil {
		return store.Recording{}, fmt.Errorf("decode validation_flags: %w", err)
	}
	if len(tr) > 0 {
		var f transcript.Formatted
		if err := json.Unmarshal(tr, &f); err != nil {
			return store.Recording{}, fmt.Errorf("decode transcript: %w", err)
		}
		r.Transcript = &f
	}
	return r, nil
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
