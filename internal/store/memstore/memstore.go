// Package memstore provides in-memory implementations of the store
// interfaces. They are used in tests and for single-process development.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/memoira/internal/store"
)

// Compile-time assertions.
var (
	_ store.RecordStore = (*Records)(nil)
	_ store.BlobStore   = (*Blobs)(nil)
)

// Records is a thread-safe, in-memory [store.RecordStore].
type Records struct {
	mu   sync.RWMutex
	rows map[string]store.Recording
	now  func() time.Time
}

// NewRecords returns an empty Records store. now may be nil.
func NewRecords(now func() time.Time) *Records {
	if now == nil {
		now = time.Now
	}
	return &Records{rows: make(map[string]store.Recording), now: now}
}

// Create implements [store.RecordStore].
func (s *Records) Create(ctx context.Context, rec store.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[rec.ID]; ok {
		return store.ErrDuplicateID
	}
	s.rows[rec.ID] = clone(rec)
	return nil
}

// Get implements [store.RecordStore].
func (s *Records) Get(ctx context.Context, id string) (store.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rows[id]
	if !ok {
		return store.Recording{}, store.ErrNotFound
	}
	return clone(rec), nil
}

// ListByStory implements [store.RecordStore].
func (s *Records) ListByStory(ctx context.Context, storyID string) ([]store.Recording, error) {
	s.mu.RLock()
	out := make([]store.Recording, 0)
	for _, rec := range s.rows {
		if rec.StoryID == storyID {
			out = append(out, clone(rec))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b store.Recording) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// SaveTranscript implements [store.RecordStore].
func (s *Records) SaveTranscript(ctx context.Context, id string, u store.TranscriptUpdate) (store.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[id]
	if !ok {
		return store.Recording{}, store.ErrNotFound
	}
	u.Apply(&rec, s.now())
	s.rows[id] = rec
	return clone(rec), nil
}

// Ping implements [store.RecordStore]. It always succeeds.
func (s *Records) Ping(ctx context.Context) error { return nil }

// Len returns the number of stored recordings.
func (s *Records) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func clone(r store.Recording) store.Recording {
	r.QualityWarnings = slices.Clone(r.QualityWarnings)
	r.ValidationFlags = slices.Clone(r.ValidationFlags)
	if r.Transcript != nil {
		t := *r.Transcript
		r.Transcript = &t
	}
	return r
}

// Blobs is a thread-safe, in-memory [store.BlobStore].
type Blobs struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewBlobs returns an empty Blobs store.
func NewBlobs() *Blobs {
	return &Blobs{blobs: make(map[string][]byte)}
}

// Put implements [store.BlobStore].
func (b *Blobs) Put(ctx context.Context, key, contentType string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[key] = slices.Clone(data)
	return nil
}

// Get implements [store.BlobStore].
func (b *Blobs) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.blobs[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return slices.Clone(data), nil
}

// Delete implements [store.BlobStore].
func (b *Blobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, key)
	return nil
}

// Len returns the number of stored blobs.
func (b *Blobs) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blobs)
}
