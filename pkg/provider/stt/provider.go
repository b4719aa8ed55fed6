// Package stt defines the Provider interface for Speech-to-Text backends.
//
// A provider takes one complete recording and returns its transcript. Oral
// history answers are recorded first and transcribed afterwards, so the
// interface is a single request/response call rather than a stream.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned by providers when the request carries no audio.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts the audio in req to text.
	//
	// Returns an error if the backend is unreachable, rejects the audio, or
	// ctx is cancelled. A successful call with no recognised speech returns
	// an empty Text, not an error.
	Transcribe(ctx context.Context, req Request) (Result, error)
}
