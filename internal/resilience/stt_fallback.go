package resilience

import (
	"context"
	"log/slog"

	"github.com/MrWong99/memoira/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// STT backends. Each backend has its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe sends req to the first healthy backend. If that backend fails
// the next one is tried with the same request.
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	res, name, err := ExecuteNamed(ctx, f.group, func(ctx context.Context, p stt.Provider) (stt.Result, error) {
		return p.Transcribe(ctx, req)
	})
	if err != nil {
		return stt.Result{}, err
	}
	slog.Debug("transcription served", "provider", name)
	return res, nil
}

// Statuses reports the breaker state of every backend.
func (f *STTFallback) Statuses() []EntryStatus { return f.group.Statuses() }

// Healthy reports whether any backend is accepting calls.
func (f *STTFallback) Healthy() bool { return f.group.Healthy() }
