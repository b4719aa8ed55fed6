// Package audio decodes captured recordings into linear PCM and provides the
// sample-level helpers shared by the quality analyser and the speech-to-text
// providers.
//
// A recording enters the system as an encoded blob (normally a RIFF/WAVE file
// produced by the recorder, or raw 16-bit PCM from the live capture socket).
// [Decode] turns it into a [Clip]: mono float64 samples normalised to
// [-1.0, 1.0] plus the sample rate. Multi-channel input is reduced to mono by
// averaging the channels of each frame.
//
// This package lives under pkg/ because the recorder tooling and external
// importers reuse the decoder and WAV encoder directly.
package audio

import "time"

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Clip is a decoded mono recording.
type Clip struct {
	// Samples holds mono PCM normalised to [-1.0, 1.0].
	Samples []float64

	// SampleRate in Hz (e.g., 48000 for browser capture, 16000 for STT).
	SampleRate int

	// SourceChannels is the channel count of the encoded input before mono
	// reduction. Informational only.
	SourceChannels int
}

// Duration returns the playback length of the clip. Returns 0 when the sample
// rate is unknown.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / float64(c.SampleRate) * float64(time.Second))
}

// DurationMs returns the clip length in milliseconds as a float, which is the
// unit used by quality thresholds.
func (c Clip) DurationMs() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) * 1000 / float64(c.SampleRate)
}
