package recording

import (
	"context"
	"fmt"

	"github.com/MrWong99/memoira/pkg/audio"
	"github.com/MrWong99/memoira/pkg/audio/quality"
)

// LiveSession meters raw PCM while the user is still recording. It uses the
// same window accumulator as [Service.Analyze], so the summary at the end of
// a session matches a batch analysis of the same audio.
//
// A LiveSession is not safe for concurrent writes.
type LiveSession struct {
	svc      *Service
	meter    *quality.Meter
	channels int
	rate     int

	// rest holds the bytes of a frame split across two writes.
	rest []byte
}

// StartLive opens a live level meter for little-endian 16-bit PCM at the
// given rate and channel count, using the current thresholds.
func (s *Service) StartLive(sampleRate, channels int) (*LiveSession, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: live audio needs a positive sample rate and channel count", ErrInvalidRequest)
	}
	return &LiveSession{
		svc:      s,
		meter:    quality.NewMeter(sampleRate, s.Settings().Thresholds),
		channels: channels,
		rate:     sampleRate,
	}, nil
}

// Write feeds one PCM chunk and returns the levels of every analysis window
// it completed. Chunks need not end on a frame boundary: a trailing partial
// frame is held back and completed by the next write.
func (l *LiveSession) Write(pcm []byte) []quality.Level {
	if len(l.rest) > 0 {
		pcm = append(l.rest, pcm...)
		l.rest = nil
	}
	frame := 2 * l.channels
	whole := len(pcm) - len(pcm)%frame
	if whole < len(pcm) {
		l.rest = append([]byte(nil), pcm[whole:]...)
	}
	if whole == 0 {
		return nil
	}
	return l.meter.Write(audio.PCM16ToMono(pcm[:whole], l.channels))
}

// WindowMs returns the analysis window length in milliseconds.
func (l *LiveSession) WindowMs() float64 {
	return float64(l.meter.WindowSize()) * 1000 / float64(l.rate)
}

// Summary returns the metrics and policy decision for everything written so
// far. It may be called repeatedly.
func (l *LiveSession) Summary(ctx context.Context) (quality.Metrics, quality.Decision) {
	m := l.meter.Metrics()
	if m.DurationMs == 0 {
		m = quality.Unreadable(audio.ErrNoSamples)
	}
	d := quality.Evaluate(m)
	l.svc.recordAnalysis(ctx, m, d)
	return m, d
}
