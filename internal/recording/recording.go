// Package recording implements the save-and-transcribe workflow for recorded
// answers.
//
// A [Service] ties together the quality analyser, the persistence
// collaborators, a speech-to-text provider and the transcript pipeline:
//
//   - [Service.Analyze] measures a blob and decides accept or review.
//   - [Service.Save] persists a recording unless it needs review, returning a
//     tagged [Outcome].
//   - [Service.Transcribe] runs speech-to-text and the transcript pipeline
//     over a stored recording. Concurrent requests for the same recording
//     share one provider call.
//   - [Service.EditTranscript] replaces a transcript with user-typed text.
//   - [Service.List] returns a story's recordings, reusing a recent result
//     for a short debounce window.
//
// Thresholds and pipeline settings can be swapped at runtime with
// [Service.UpdateSettings]; in-flight calls keep the settings they started
// with.
package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/memoira/internal/coordinator"
	"github.com/MrWong99/memoira/internal/observe"
	"github.com/MrWong99/memoira/internal/store"
	"github.com/MrWong99/memoira/internal/transcript"
	"github.com/MrWong99/memoira/pkg/audio/quality"
	"github.com/MrWong99/memoira/pkg/provider/stt"
)

var (
	// ErrNoTranscriber is returned by [Service.Transcribe] when no
	// speech-to-text provider is configured.
	ErrNoTranscriber = errors.New("recording: no speech-to-text provider configured")

	// ErrInvalidRequest wraps argument errors such as a missing story ID.
	ErrInvalidRequest = errors.New("recording: invalid request")
)

// DefaultSTTTimeout bounds a transcription when [WithSTTTimeout] is not
// given. The provider call outlives the callers waiting on it, so it always
// needs a limit of its own.
const DefaultSTTTimeout = 2 * time.Minute

// Settings are the runtime-swappable parameters of a [Service].
type Settings struct {
	// Thresholds drive quality analysis. They are normalised on use.
	Thresholds quality.Thresholds

	// Pipeline post-processes transcripts. Nil selects a default pipeline.
	Pipeline *transcript.Pipeline

	// Language is the transcription language hint. Empty lets the provider
	// detect it.
	Language string
}

// DefaultSettings returns the built-in thresholds with a default pipeline.
func DefaultSettings() Settings {
	return Settings{
		Thresholds: quality.DefaultThresholds(),
		Pipeline:   transcript.NewPipeline(),
	}
}

// Option is a functional option for [New].
type Option func(*Service)

// WithSTT sets the speech-to-text provider. Without one, [Service.Transcribe]
// returns [ErrNoTranscriber].
func WithSTT(p stt.Provider) Option {
	return func(s *Service) { s.stt = p }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithSettings sets the initial settings.
func WithSettings(st Settings) Option {
	return func(s *Service) { s.initial = &st }
}

// WithClock replaces time.Now for record timestamps and the list debounce.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithListDebounce sets how long a story list is reused after loading.
// Zero only shares concurrent loads. The default is one second.
func WithListDebounce(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.listDebounce = d
		}
	}
}

// WithSTTTimeout bounds a single transcription call. Zero or negative keeps
// [DefaultSTTTimeout].
func WithSTTTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sttTimeout = d
		}
	}
}

// WithTracerProvider sets the provider spans are recorded on. Defaults to
// the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = observe.TracerFrom(tp) }
}

// Service is safe for concurrent use.
type Service struct {
	records store.RecordStore
	blobs   store.BlobStore
	stt     stt.Provider
	metrics *observe.Metrics
	tracer  trace.Tracer

	now          func() time.Time
	newID        func() string
	listDebounce time.Duration
	sttTimeout   time.Duration

	initial  *Settings
	settings atomic.Pointer[Settings]

	lists       *coordinator.Coordinator[[]store.Recording]
	transcribes *coordinator.Coordinator[store.Recording]
}

// New creates a Service over the given stores.
func New(records store.RecordStore, blobs store.BlobStore, opts ...Option) *Service {
	s := &Service{
		records:      records,
		blobs:        blobs,
		now:          time.Now,
		newID:        uuid.NewString,
		listDebounce: time.Second,
		sttTimeout:   DefaultSTTTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.tracer == nil {
		s.tracer = observe.Tracer()
	}
	st := DefaultSettings()
	if s.initial != nil {
		st = *s.initial
	}
	s.UpdateSettings(st)

	s.lists = coordinator.New(
		coordinator.WithDebounce[[]store.Recording](s.listDebounce),
		coordinator.WithClock[[]store.Recording](s.now),
	)
	s.transcribes = coordinator.New[store.Recording]()
	return s
}

// UpdateSettings swaps the runtime settings. Thresholds are normalised and
// every correction is logged.
func (s *Service) UpdateSettings(st Settings) {
	th, fixes := st.Thresholds.Normalize()
	for _, fix := range fixes {
		slog.Warn("recording: threshold corrected", "fix", fix)
	}
	st.Thresholds = th
	if st.Pipeline == nil {
		st.Pipeline = transcript.NewPipeline()
	}
	s.settings.Store(&st)
}

// SetListDebounce changes how long a loaded story list is reused.
func (s *Service) SetListDebounce(d time.Duration) { s.lists.SetDebounce(d) }

// Settings returns the current settings.
func (s *Service) Settings() Settings { return *s.settings.Load() }

// Analyze measures blob with the current thresholds and evaluates the quality
// policy. It never fails: unreadable audio yields invalid metrics with a
// single warning.
func (s *Service) Analyze(ctx context.Context, blob []byte) (quality.Metrics, quality.Decision) {
	th := s.Settings().Thresholds
	m := quality.Analyze(blob, &th)
	d := quality.Evaluate(m)
	s.recordAnalysis(ctx, m, d)
	return m, d
}

func (s *Service) recordAnalysis(ctx context.Context, m quality.Metrics, d quality.Decision) {
	verdict := string(d.Kind)
	if m.Has(quality.IssueUnreadable) {
		verdict = "unreadable"
	}
	kinds := make([]string, len(m.Issues))
	for i, is := range m.Issues {
		kinds[i] = string(is.Kind)
	}
	s.metrics.RecordAnalysis(ctx, verdict, kinds)
}

// SaveRequest is one recorded answer to persist.
type SaveRequest struct {
	StoryID     string
	PromptID    string
	Audio       []byte
	ContentType string

	// SaveAnyway persists the recording even when it has quality warnings.
	// The warnings are stored with it.
	SaveAnyway bool
}

// Save analyses req.Audio and persists it. A recording with any warning is
// only saved when req.SaveAnyway is set; otherwise the outcome is
// [NeedsReview] and nothing is written.
func (s *Service) Save(ctx context.Context, req SaveRequest) Outcome {
	ctx, span := s.tracer.Start(ctx, "recording.save", trace.WithAttributes(attribute.String("story.id", req.StoryID)))
	defer span.End()

	out := s.save(ctx, req)
	s.metrics.RecordSave(ctx, out.Kind())
	span.SetAttributes(attribute.String("recording.outcome", out.Kind()))
	if f, ok := out.(Failed); ok {
		observe.SpanError(span, f.Err)
		observe.Logger(ctx).Error("recording: save failed", "story_id", req.StoryID, "err", f.Err)
	}
	return out
}

func (s *Service) save(ctx context.Context, req SaveRequest) Outcome {
	if err := validateStoryID(req.StoryID); err != nil {
		return Failed{Message: "A story must be selected before saving.", Err: err}
	}
	if len(req.Audio) == 0 {
		return Failed{Message: "There is no audio to save.", Err: fmt.Errorf("%w: empty audio", ErrInvalidRequest)}
	}

	m, d := s.Analyze(ctx, req.Audio)
	if !d.Accepted() && !req.SaveAnyway {
		return NeedsReview{Warnings: d.Warnings, Metrics: m}
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	now := s.now().UTC()
	id := s.newID()
	rec := store.Recording{
		ID:              id,
		StoryID:         req.StoryID,
		PromptID:        req.PromptID,
		AudioKey:        req.StoryID + "/" + id + extension(contentType),
		ContentType:     contentType,
		DurationMs:      m.DurationMs,
		SilenceRatio:    m.SilenceRatio,
		AverageEnergy:   m.AverageEnergy,
		QualityWarnings: d.Override(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.blobs.Put(ctx, rec.AudioKey, contentType, req.Audio); err != nil {
		return Failed{Message: "The recording could not be uploaded. Please try again.", Err: err}
	}
	if err := s.records.Create(ctx, rec); err != nil {
		// The row never existed, so nothing else references the audio.
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), rec.AudioKey); derr != nil {
			observe.Logger(ctx).Warn("recording: orphaned audio left behind", "key", rec.AudioKey, "err", derr)
		}
		return Failed{Message: "The recording could not be saved. Please try again.", Err: err}
	}
	s.lists.Forget(req.StoryID)

	observe.Logger(ctx).Info("recording saved",
		"id", rec.ID,
		"story_id", rec.StoryID,
		"duration_ms", rec.DurationMs,
		"warnings", len(rec.QualityWarnings),
	)
	return Saved{Recording: rec}
}

// Get returns one recording or [store.ErrNotFound].
func (s *Service) Get(ctx context.Context, id string) (store.Recording, error) {
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return store.Recording{}, fmt.Errorf("recording: get %q: %w", id, err)
	}
	return rec, nil
}

// List returns the recordings of a story, oldest first. Concurrent calls for
// the same story share one store query, and a completed result is reused for
// the list debounce window unless a save or transcript change invalidates it.
func (s *Service) List(ctx context.Context, storyID string) ([]store.Recording, error) {
	if err := validateStoryID(storyID); err != nil {
		return nil, err
	}
	res, err := s.lists.Do(ctx, storyID, func(ctx context.Context) ([]store.Recording, error) {
		return s.records.ListByStory(ctx, storyID)
	})
	if err != nil {
		return nil, fmt.Errorf("recording: list story %q: %w", storyID, err)
	}
	out := make([]store.Recording, len(res.Value))
	copy(out, res.Value)
	return out, nil
}

// Transcribe runs speech-to-text and the transcript pipeline over a stored
// recording and persists the result. Concurrent calls for the same recording
// share one provider call; a caller whose ctx ends stops waiting without
// aborting the shared call.
func (s *Service) Transcribe(ctx context.Context, id string) (store.Recording, error) {
	if s.stt == nil {
		return store.Recording{}, ErrNoTranscriber
	}
	res, err := s.transcribes.Do(ctx, id, func(ctx context.Context) (store.Recording, error) {
		return s.transcribe(ctx, id)
	})
	if err != nil {
		return store.Recording{}, err
	}
	if res.Shared {
		observe.Logger(ctx).Debug("recording: joined in-flight transcription", "id", id)
	}
	return res.Value, nil
}

func (s *Service) transcribe(ctx context.Context, id string) (store.Recording, error) {
	ctx, span := s.tracer.Start(ctx, "recording.transcribe", trace.WithAttributes(attribute.String("recording.id", id)))
	defer span.End()

	st := s.Settings()

	rec, err := s.records.Get(ctx, id)
	if err != nil {
		observe.SpanError(span, err)
		return store.Recording{}, fmt.Errorf("recording: transcribe %q: %w", id, err)
	}
	blob, err := s.blobs.Get(ctx, rec.AudioKey)
	if err != nil {
		observe.SpanError(span, err)
		return store.Recording{}, fmt.Errorf("recording: transcribe %q: load audio: %w", id, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.sttTimeout)
	defer cancel()
	start := time.Now()
	result, err := s.stt.Transcribe(callCtx, stt.Request{
		Audio:       blob,
		ContentType: rec.ContentType,
		Language:    st.Language,
	})
	s.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.SpanError(span, err)
		return store.Recording{}, fmt.Errorf("recording: transcribe %q: %w", id, err)
	}

	processed, err := st.Pipeline.Process(ctx, result, summary(rec))
	if err != nil {
		observe.SpanError(span, err)
		return store.Recording{}, fmt.Errorf("recording: transcribe %q: %w", id, err)
	}

	updated, err := s.persist(ctx, rec, store.UpdateFromRecord(processed))
	if err != nil {
		observe.SpanError(span, err)
		return store.Recording{}, err
	}
	span.SetAttributes(
		attribute.String("stt.model", processed.Model),
		attribute.Float64("transcript.confidence", processed.Confidence),
		attribute.Int("transcript.flags", len(processed.Flags)),
	)
	observe.Logger(ctx).Info("recording transcribed",
		"id", id,
		"model", processed.Model,
		"confidence", processed.Confidence,
		"flags", len(processed.Flags),
		"corrections", len(processed.Corrections),
	)
	return updated, nil
}

// EditTranscript replaces the transcript of a recording with text typed by
// the user. The text is reformatted and rescored but not filtered. Language
// and model of the previous transcript are kept.
func (s *Service) EditTranscript(ctx context.Context, id, text string) (store.Recording, error) {
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return store.Recording{}, fmt.Errorf("recording: edit %q: %w", id, err)
	}
	edited := s.Settings().Pipeline.Edit(text, summary(rec))
	u := store.UpdateFromRecord(edited)
	u.Language = rec.Language
	u.Model = rec.Model
	return s.persist(ctx, rec, u)
}

// FormatText runs the transcript pipeline over arbitrary text without
// touching any stored recording.
func (s *Service) FormatText(ctx context.Context, text string, audio transcript.AudioSummary) (*transcript.Record, error) {
	return s.Settings().Pipeline.Process(ctx, stt.Result{Text: text}, audio)
}

func (s *Service) persist(ctx context.Context, rec store.Recording, u store.TranscriptUpdate) (store.Recording, error) {
	updated, err := s.records.SaveTranscript(ctx, rec.ID, u)
	if err != nil {
		return store.Recording{}, fmt.Errorf("recording: save transcript %q: %w", rec.ID, err)
	}
	s.lists.Forget(rec.StoryID)

	flags := make([]string, len(u.Flags))
	for i, f := range u.Flags {
		flags[i] = f.Name
	}
	s.metrics.RecordTranscript(ctx, u.Confidence, flags)
	return updated, nil
}

func summary(rec store.Recording) transcript.AudioSummary {
	return transcript.AudioSummary{DurationMs: rec.DurationMs, SilenceRatio: rec.SilenceRatio}
}

func validateStoryID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: story id is required", ErrInvalidRequest)
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("%w: story id %q contains path separators", ErrInvalidRequest, id)
	}
	return nil
}

// extension maps a MIME type to the file extension used in blob keys.
func extension(contentType string) string {
	ct, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(strings.ToLower(ct)) {
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return ".wav"
	case "audio/webm", "video/webm":
		return ".webm"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/flac":
		return ".flac"
	default:
		return ".bin"
	}
}
