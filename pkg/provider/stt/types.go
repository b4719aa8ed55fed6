package stt

import "time"

// Request is one recording to transcribe.
type Request struct {
	// Audio is the encoded recording (normally RIFF/WAVE).
	Audio []byte

	// ContentType is the MIME type of Audio, e.g. "audio/wav".
	ContentType string

	// Language is a BCP-47 hint ("en", "es"). Empty lets the provider detect
	// the language, if supported.
	Language string
}

// Result is the transcript of a recording.
type Result struct {
	// Text is the transcribed speech, unmodified.
	Text string

	// Language is the detected or requested language.
	Language string

	// Model identifies the model that produced Text.
	Model string

	// Duration is the audio length as reported by the provider. May be zero.
	Duration time.Duration
}
