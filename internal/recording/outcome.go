package recording

import (
	"github.com/MrWong99/memoira/internal/store"
	"github.com/MrWong99/memoira/pkg/audio/quality"
)

// Outcome is the result of [Service.Save]. It is one of [Saved],
// [NeedsReview] or [Failed]; switch on the concrete type.
type Outcome interface {
	// Kind returns "saved", "needs_review" or "failed".
	Kind() string

	outcome()
}

// Saved means the recording and its audio were persisted.
type Saved struct {
	Recording store.Recording
}

// NeedsReview means the recording has quality warnings and was not saved.
// The caller must show every warning and offer to retry or save anyway.
type NeedsReview struct {
	Warnings []string
	Metrics  quality.Metrics
}

// Failed means the save could not be completed. Message is safe to show to
// the user; Err carries the cause for logs.
type Failed struct {
	Message string
	Err     error
}

func (Saved) Kind() string       { return "saved" }
func (NeedsReview) Kind() string { return "needs_review" }
func (Failed) Kind() string      { return "failed" }

func (Saved) outcome()       {}
func (NeedsReview) outcome() {}
func (Failed) outcome()      {}

// Error implements error so that a Failed outcome can be returned or wrapped
// where an error is expected.
func (f Failed) Error() string {
	if f.Err != nil {
		return f.Message + ": " + f.Err.Error()
	}
	return f.Message
}

// Unwrap returns the underlying cause.
func (f Failed) Unwrap() error { return f.Err }
