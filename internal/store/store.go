// Package store defines the persistence collaborators for recordings: a
// [RecordStore] for recording metadata and transcripts and a [BlobStore] for
// the audio itself. Backends live in sub-packages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/memoira/internal/transcript"
)

var (
	// ErrNotFound is returned when no recording or blob exists for a key.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateID is returned by [RecordStore.Create] when the ID is taken.
	ErrDuplicateID = errors.New("store: duplicate id")
)

// Recording is one persisted answer to an interview prompt.
type Recording struct {
	ID          string `json:"id"`
	StoryID     string `json:"story_id"`
	PromptID    string `json:"prompt_id"`
	AudioKey    string `json:"audio_key"`
	ContentType string `json:"content_type"`

	DurationMs      float64  `json:"duration_ms"`
	SilenceRatio    float64  `json:"silence_ratio"`
	AverageEnergy   float64  `json:"average_energy"`
	QualityWarnings []string `json:"quality_warnings"`

	// Transcript is nil until the recording has been transcribed.
	Transcript      *transcript.Formatted `json:"transcript"`
	RawTranscript   string                `json:"raw_transcript"`
	ConfidenceScore float64               `json:"confidence_score"`
	ValidationFlags []transcript.Flag     `json:"validation_flags"`
	Language        string                `json:"language"`
	Model           string                `json:"model"`
	Edited          bool                  `json:"edited"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transcribed reports whether a transcript has been stored.
func (r Recording) Transcribed() bool { return r.Transcript != nil }

// TranscriptUpdate replaces every transcript-derived field of a recording.
type TranscriptUpdate struct {
	Formatted  transcript.Formatted
	Raw        string
	Confidence float64
	Flags      []transcript.Flag
	Language   string
	Model      string
	Edited     bool
}

// UpdateFromRecord builds the wholesale update for a processed transcript.
func UpdateFromRecord(rec *transcript.Record) TranscriptUpdate {
	return TranscriptUpdate{
		Formatted:  rec.Formatted,
		Raw:        rec.Raw,
		Confidence: rec.Confidence,
		Flags:      rec.Flags,
		Language:   rec.Language,
		Model:      rec.Model,
		Edited:     rec.Edited,
	}
}

// Apply copies u onto r and stamps UpdatedAt.
func (u TranscriptUpdate) Apply(r *Recording, now time.Time) {
	f := u.Formatted
	r.Transcript = &f
	r.RawTranscript = u.Raw
	r.ConfidenceScore = u.Confidence
	r.ValidationFlags = append([]transcript.Flag{}, u.Flags...)
	r.Language = u.Language
	r.Model = u.Model
	r.Edited = u.Edited
	r.UpdatedAt = now
}

// RecordStore persists recording metadata. Implementations must be safe for
// concurrent use.
type RecordStore interface {
	// Create inserts rec. The caller assigns ID and timestamps.
	Create(ctx context.Context, rec Recording) error

	// Get returns the recording with the given ID or [ErrNotFound].
	Get(ctx context.Context, id string) (Recording, error)

	// ListByStory returns the recordings of a story, oldest first.
	ListByStory(ctx context.Context, storyID string) ([]Recording, error)

	// SaveTranscript replaces the transcript fields of a recording and returns
	// the updated row, or [ErrNotFound].
	SaveTranscript(ctx context.Context, id string, u TranscriptUpdate) (Recording, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// BlobStore persists recording audio.
type BlobStore interface {
	// Put stores data under key, replacing any existing blob.
	Put(ctx context.Context, key, contentType string, data []byte) error

	// Get returns the blob stored under key or [ErrNotFound].
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the blob stored under key. Deleting a missing key is
	// not an error.
	Delete(ctx context.Context, key string) error
}
