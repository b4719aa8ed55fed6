// Package storetest holds behavioural tests shared by every store backend.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/memoira/internal/store"
	"github.com/MrWong99/memoira/internal/transcript"
)

// NewRecording returns a fully populated, untranscribed recording.
func NewRecording(storyID string, created time.Time) store.Recording {
	id := uuid.NewString()
	return store.Recording{
		ID:              id,
		StoryID:         storyID,
		PromptID:        "prompt-childhood",
		AudioKey:        "recordings/" + id + ".wav",
		ContentType:     "audio/wav",
		DurationMs:      12_500,
		SilenceRatio:    0.25,
		AverageEnergy:   0.08,
		QualityWarnings: []string{},
		ValidationFlags: []transcript.Flag{},
		CreatedAt:       created.UTC().Truncate(time.Millisecond),
		UpdatedAt:       created.UTC().Truncate(time.Millisecond),
	}
}

// RunRecordStore exercises a [store.RecordStore]. newStore must return an
// empty store for every call.
func RunRecordStore(t *testing.T, newStore func(t *testing.T) store.RecordStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("CreateGet", func(t *testing.T) {
		s := newStore(t)
		rec := NewRecording("story-a", base)
		rec.QualityWarnings = []string{"Recording is mostly silence (70% silent)."}
		if err := s.Create(ctx, rec); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, err := s.Get(ctx, rec.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.ID != rec.ID || got.StoryID != rec.StoryID || got.AudioKey != rec.AudioKey {
			t.Errorf("Get returned %+v, want %+v", got, rec)
		}
		if got.DurationMs != rec.DurationMs || got.SilenceRatio != rec.SilenceRatio {
			t.Errorf("metrics round trip: got %v/%v", got.DurationMs, got.SilenceRatio)
		}
		if len(got.QualityWarnings) != 1 || got.QualityWarnings[0] != rec.QualityWarnings[0] {
			t.Errorf("QualityWarnings = %v", got.QualityWarnings)
		}
		if got.Transcribed() {
			t.Error("fresh recording reports a transcript")
		}
		if !got.CreatedAt.Equal(rec.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, rec.CreatedAt)
		}
	})

	t.Run("Duplicate", func(t *testing.T) {
		s := newStore(t)
		rec := NewRecording("story-a", base)
		if err := s.Create(ctx, rec); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := s.Create(ctx, rec); !errors.Is(err, store.ErrDuplicateID) {
			t.Fatalf("second Create err = %v, want ErrDuplicateID", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStore(t)
		missing := uuid.NewString()
		if _, err := s.Get(ctx, missing); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Get err = %v, want ErrNotFound", err)
		}
		if _, err := s.SaveTranscript(ctx, missing, store.TranscriptUpdate{}); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("SaveTranscript err = %v, want ErrNotFound", err)
		}
	})

	t.Run("ListByStoryOrdered", func(t *testing.T) {
		s := newStore(t)
		second := NewRecording("story-b", base.Add(time.Minute))
		first := NewRecording("story-b", base)
		other := NewRecording("story-c", base)
		for _, r := range []store.Recording{second, first, other} {
			if err := s.Create(ctx, r); err != nil {
				t.Fatalf("Create: %v", err)
			}
		}
		got, err := s.ListByStory(ctx, "story-b")
		if err != nil {
			t.Fatalf("ListByStory: %v", err)
		}
		if len(got) != 2 || got[0].ID != first.ID || got[1].ID != second.ID {
			t.Fatalf("ListByStory = %v, want [first second]", ids(got))
		}
		empty, err := s.ListByStory(ctx, "story-none")
		if err != nil || len(empty) != 0 {
			t.Fatalf("empty story: got %v, %v", ids(empty), err)
		}
	})

	t.Run("SaveTranscriptReplaces", func(t *testing.T) {
		s := newStore(t)
		rec := NewRecording("story-d", base)
		if err := s.Create(ctx, rec); err != nil {
			t.Fatalf("Create: %v", err)
		}
		u := store.TranscriptUpdate{
			Formatted:  transcript.Format("We grew up by the river. It flooded twice.", 0),
			Raw:        "Thanks for watching! We grew up by the river. It flooded twice.",
			Confidence: 0.85,
			Flags:      []transcript.Flag{{Name: transcript.FlagShortTranscript, Severity: transcript.SeverityInfo, Message: "short"}},
			Language:   "en",
			Model:      "large-v3",
		}
		if _, err := s.SaveTranscript(ctx, rec.ID, u); err != nil {
			t.Fatalf("SaveTranscript: %v", err)
		}

		edit := store.TranscriptUpdate{
			Formatted:  transcript.Format("We grew up by the Rio Grande.", 0),
			Raw:        "We grew up by the Rio Grande.",
			Confidence: 0.7,
			Flags:      []transcript.Flag{},
			Language:   "en",
			Model:      "large-v3",
			Edited:     true,
		}
		got, err := s.SaveTranscript(ctx, rec.ID, edit)
		if err != nil {
			t.Fatalf("SaveTranscript edit: %v", err)
		}
		if !got.Transcribed() || *got.Transcript != edit.Formatted {
			t.Errorf("Transcript = %+v, want %+v", got.Transcript, edit.Formatted)
		}
		if got.ConfidenceScore != 0.7 || !got.Edited || len(got.ValidationFlags) != 0 {
			t.Errorf("edit not applied wholesale: %+v", got)
		}

		reread, err := s.Get(ctx, rec.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if reread.RawTranscript != edit.Raw || reread.Transcript == nil || reread.Transcript.HTML != edit.Formatted.HTML {
			t.Errorf("persisted transcript = %+v", reread)
		}
		if reread.UpdatedAt.Before(rec.UpdatedAt) {
			t.Errorf("UpdatedAt moved backwards: %v < %v", reread.UpdatedAt, rec.UpdatedAt)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := newStore(t).Ping(ctx); err != nil {
			t.Fatalf("Ping: %v", err)
		}
	})
}

// RunBlobStore exercises a [store.BlobStore].
func RunBlobStore(t *testing.T, newStore func(t *testing.T) store.BlobStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGet", func(t *testing.T) {
		s := newStore(t)
		data := []byte("RIFF....WAVEfmt ")
		if err := s.Put(ctx, "recordings/a.wav", "audio/wav", data); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := s.Get(ctx, "recordings/a.wav")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("Get = %q, want %q", got, data)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := newStore(t)
		_ = s.Put(ctx, "k.wav", "audio/wav", []byte("one"))
		if err := s.Put(ctx, "k.wav", "audio/wav", []byte("two")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, _ := s.Get(ctx, "k.wav")
		if string(got) != "two" {
			t.Errorf("Get = %q, want two", got)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := newStore(t).Get(ctx, "missing.wav"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("Get err = %v, want ErrNotFound", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		_ = s.Put(ctx, "story/d.wav", "audio/wav", []byte("gone"))
		if err := s.Delete(ctx, "story/d.wav"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.Get(ctx, "story/d.wav"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("Get after Delete err = %v, want ErrNotFound", err)
		}
		if err := s.Delete(ctx, "story/d.wav"); err != nil {
			t.Fatalf("second Delete: %v", err)
		}
	})
}

func ids(recs []store.Recording) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
