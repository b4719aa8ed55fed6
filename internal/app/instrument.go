package app

import (
	"context"
	"errors"

	"github.com/MrWong99/memoira/internal/observe"
	"github.com/MrWong99/memoira/pkg/provider/stt"
)

// instrumentedSTT counts requests and errors of one speech-to-text backend.
type instrumentedSTT struct {
	name    string
	next    stt.Provider
	metrics *observe.Metrics
}

var _ stt.Provider = (*instrumentedSTT)(nil)

func (p *instrumentedSTT) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	res, err := p.next.Transcribe(ctx, req)
	switch {
	case err == nil:
		p.metrics.RecordProviderRequest(ctx, p.name, "stt", "ok")
	case errors.Is(err, context.Canceled):
		p.metrics.RecordProviderRequest(ctx, p.name, "stt", "cancelled")
	default:
		p.metrics.RecordProviderRequest(ctx, p.name, "stt", "error")
		p.metrics.RecordProviderError(ctx, p.name, "stt")
	}
	return res, err
}
