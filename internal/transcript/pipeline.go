package transcript

import (
	"context"
	"fmt"
	"slices"

	"github.com/MrWong99/memoira/internal/transcript/phonetic"
	"github.com/MrWong99/memoira/pkg/provider/stt"
)

// Option is a functional option for configuring a [Pipeline].
type Option func(*Pipeline)

// WithFilter replaces the hallucination filter. Default: [NewFilter] with no
// extra phrases.
func WithFilter(f *Filter) Option {
	return func(p *Pipeline) {
		if f != nil {
			p.filter = f
		}
	}
}

// WithParagraphSize sets the number of sentences per paragraph. Values below
// 1 are ignored. Default: [DefaultParagraphSize].
func WithParagraphSize(n int) Option {
	return func(p *Pipeline) {
		if n >= 1 {
			p.paragraphSize = n
		}
	}
}

// WithNameMatcher attaches the matcher used to correct family names. When
// nil (the default), name correction is skipped.
func WithNameMatcher(m NameMatcher) Option {
	return func(p *Pipeline) {
		p.matcher = m
	}
}

// WithFamilyNames sets the canonical spellings of names that appear in the
// family's recordings.
func WithFamilyNames(names ...string) Option {
	return func(p *Pipeline) {
		p.names = slices.Clone(names)
	}
}

// Pipeline turns speech-to-text output into a [Record]. Stages are applied
// in order:
//
//  1. [Filter] removes hallucinated phrases.
//  2. [NameMatcher] corrects family names (optional).
//  3. [Format] builds the paragraphed plain-text and HTML forms.
//  4. [Score] assigns confidence and validation flags.
//
// Pipeline is immutable after construction and safe for concurrent use.
type Pipeline struct {
	filter        *Filter
	paragraphSize int
	matcher       NameMatcher
	names         []string
	prepared      *phonetic.Names
}

// NewPipeline constructs a [Pipeline] with the supplied options.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		filter:        NewFilter(),
		paragraphSize: DefaultParagraphSize,
	}
	for _, o := range opts {
		o(p)
	}
	if _, ok := p.matcher.(*phonetic.Matcher); ok && len(p.names) > 0 {
		p.prepared = phonetic.Prepare(p.names)
	}
	return p
}

// Filter returns the pipeline's hallucination filter.
func (p *Pipeline) Filter() *Filter { return p.filter }

// ParagraphSize returns the configured sentences per paragraph.
func (p *Pipeline) ParagraphSize() int { return p.paragraphSize }

// Process runs all stages over an STT result. Language and Model are copied
// unchanged. When audio carries no duration the STT-reported duration is used
// for rate checks.
//
// The only error is a cancelled ctx.
func (p *Pipeline) Process(ctx context.Context, res stt.Result, audio AudioSummary) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("transcript: process: %w", err)
	}
	if audio.DurationMs <= 0 && res.Duration > 0 {
		audio.DurationMs = float64(res.Duration.Milliseconds())
	}

	text := p.filter.Apply(res.Text)
	corrections := []Correction{}
	if text != NoSpeech {
		var cs []Correction
		text, cs = correctNames(text, p.matcher, p.names, p.prepared)
		corrections = append(corrections, cs...)
	}

	rec := p.build(res.Text, text, audio)
	rec.Corrections = corrections
	rec.Language = res.Language
	rec.Model = res.Model
	return rec, nil
}

// Edit builds the record for a transcript typed by the user. The text
// replaces the previous transcript wholesale; it is not filtered or
// name-corrected, but it is reformatted and rescored. An empty edit becomes
// [NoSpeech].
func (p *Pipeline) Edit(text string, audio AudioSummary) *Record {
	clean := normalizeSpace(text)
	if !hasWordRune(clean) {
		clean = NoSpeech
	}
	rec := p.build(text, clean, audio)
	rec.Corrections = []Correction{}
	rec.Edited = true
	return rec
}

func (p *Pipeline) build(raw, text string, audio AudioSummary) *Record {
	a := Score(text, audio)
	return &Record{
		Raw:        raw,
		Text:       text,
		Formatted:  Format(text, p.paragraphSize),
		Confidence: a.Confidence,
		Flags:      a.Flags,
	}
}
