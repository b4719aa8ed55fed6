// Package supabase stores recordings in a hosted Supabase project: metadata in
// a PostgREST table and audio in a Storage bucket.
//
// The recordings table uses the same columns as the postgres backend; run that
// package's DDL in the Supabase SQL editor once.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	postgrest "github.com/supabase-community/postgrest-go"
	storage_go "github.com/supabase-community/storage-go"
	supa "github.com/supabase-community/supabase-go"

	"github.com/MrWong99/memoira/internal/store"
)

// Compile-time assertions.
var (
	_ store.RecordStore = (*Records)(nil)
	_ store.BlobStore   = (*Blobs)(nil)
)

// DefaultTable is the PostgREST table holding recordings.
const DefaultTable = "recordings"

// Records is a [store.RecordStore] backed by Supabase PostgREST.
type Records struct {
	client *postgrest.Client
	table  string
	now    func() time.Time
}

// NewRecords creates a PostgREST client for the project at projectURL
// authenticated with the service key.
func NewRecords(projectURL, serviceKey, table string) (*Records, error) {
	if projectURL == "" || serviceKey == "" {
		return nil, errors.New("supabase: project url and service key must not be empty")
	}
	if table == "" {
		table = DefaultTable
	}
	client := postgrest.NewClient(strings.TrimRight(projectURL, "/")+"/rest/v1", "", map[string]string{
		"apikey":        serviceKey,
		"Authorization": "Bearer " + serviceKey,
	})
	if client.ClientError != nil {
		return nil, fmt.Errorf("supabase: rest client: %w", client.ClientError)
	}
	return &Records{client: client, table: table, now: time.Now}, nil
}

// Create implements [store.RecordStore].
func (r *Records) Create(ctx context.Context, rec store.Recording) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec.QualityWarnings = nonNil(rec.QualityWarnings)
	rec.ValidationFlags = nonNil(rec.ValidationFlags)
	_, _, err := r.client.From(r.table).
		Insert(rec, false, "", "minimal", "").
		Execute()
	if err != nil {
		if strings.Contains(err.Error(), "23505") {
			return store.ErrDuplicateID
		}
		return fmt.Errorf("supabase: create: %w", err)
	}
	return nil
}

// Get implements [store.RecordStore].
func (r *Records) Get(ctx context.Context, id string) (store.Recording, error) {
	if err := ctx.Err(); err != nil {
		return store.Recording{}, err
	}
	body, _, err := r.client.From(r.table).
		Select("*", "", false).
		Eq("id", id).
		Execute()
	if err != nil {
		return store.Recording{}, fmt.Errorf("supabase: get: %w", err)
	}
	return one(body)
}

// ListByStory implements [store.RecordStore].
func (r *Records) ListByStory(ctx context.Context, storyID string) ([]store.Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, _, err := r.client.From(r.table).
		Select("*", "", false).
		Eq("story_id", storyID).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("supabase: list: %w", err)
	}
	var recs []store.Recording
	if err := json.Unmarshal(body, &recs); err != nil {
		return nil, fmt.Errorf("supabase: list: decode: %w", err)
	}
	// PostgREST orders by one column per call; break created_at ties by id.
	slices.SortStableFunc(recs, func(a, b store.Recording) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if recs == nil {
		recs = []store.Recording{}
	}
	return recs, nil
}

// SaveTranscript implements [store.RecordStore].
func (r *Records) SaveTranscript(ctx context.Context, id string, u store.TranscriptUpdate) (store.Recording, error) {
	if err := ctx.Err(); err != nil {
		return store.Recording{}, err
	}
	f := u.Formatted
	patch := map[string]any{
		"transcript":       &f,
		"raw_transcript":   u.Raw,
		"confidence_score": u.Confidence,
		"validation_flags": nonNil(u.Flags),
		"language":         u.Language,
		"model":            u.Model,
		"edited":           u.Edited,
		"updated_at":       r.now().UTC(),
	}
	body, _, err := r.client.From(r.table).
		Update(patch, "representation", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return store.Recording{}, fmt.Errorf("supabase: save transcript: %w", err)
	}
	return one(body)
}

// Ping implements [store.RecordStore] by selecting at most one id.
func (r *Records) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := r.client.From(r.table).
		Select("id", "", false).
		Limit(1, "").
		Execute()
	if err != nil {
		return fmt.Errorf("supabase: ping: %w", err)
	}
	return nil
}

func one(body []byte) (store.Recording, error) {
	var recs []store.Recording
	if err := json.Unmarshal(body, &recs); err != nil {
		return store.Recording{}, fmt.Errorf("supabase: decode: %w", err)
	}
	if len(recs) == 0 {
		return store.Recording{}, store.ErrNotFound
	}
	return recs[0], nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Blobs is a [store.BlobStore] backed by a Supabase Storage bucket.
type Blobs struct {
	storage *storage_go.Client
	bucket  string
}

// NewBlobs connects to the project's Storage API. The bucket must exist.
func NewBlobs(projectURL, serviceKey, bucket string) (*Blobs, error) {
	if bucket == "" {
		return nil, errors.New("supabase: bucket must not be empty")
	}
	client, err := supa.NewClient(strings.TrimRight(projectURL, "/"), serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("supabase: client: %w", err)
	}
	return &Blobs{storage: client.Storage, bucket: bucket}, nil
}

// Put implements [store.BlobStore]. Existing objects are overwritten.
func (b *Blobs) Put(ctx context.Context, key, contentType string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	upsert := true
	opts := storage_go.FileOptions{Upsert: &upsert}
	if contentType != "" {
		opts.ContentType = &contentType
	}
	if _, err := b.storage.UploadFile(b.bucket, key, bytes.NewReader(data), opts); err != nil {
		return fmt.Errorf("supabase: upload %q: %w", key, err)
	}
	return nil
}

// Get implements [store.BlobStore].
func (b *Blobs) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := b.storage.DownloadFile(b.bucket, key)
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "not found") || strings.Contains(msg, "404") {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("supabase: download %q: %w", key, err)
	}
	return data, nil
}

// Delete implements [store.BlobStore]. Storage reports success for missing
// objects.
func (b *Blobs) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.storage.RemoveFile(b.bucket, []string{key}); err != nil {
		return fmt.Errorf("supabase: remove %q: %w", key, err)
	}
	return nil
}
