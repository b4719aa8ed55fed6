package transcript_test

import (
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/MrWong99/memoira/internal/transcript"
)

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func flagNames(a transcript.Assessment) []string {
	var out []string
	for _, f := range a.Flags {
		out = append(out, f.Name)
	}
	return out
}

func TestScore_SparseTranscriptFlagsLowWordRate(t *testing.T) {
	t.Parallel()

	audio := transcript.AudioSummary{DurationMs: 60_000, SilenceRatio: 0.1}
	sparse := transcript.Score("I was born in Ohio. My father farmed corn.", audio)
	dense := transcript.Score(words(150), audio)

	if !sparse.Has(transcript.FlagLowWordRate) {
		t.Fatalf("sparse flags = %v, want %s", flagNames(sparse), transcript.FlagLowWordRate)
	}
	if dense.Has(transcript.FlagLowWordRate) {
		t.Errorf("dense flags = %v, want no %s", flagNames(dense), transcript.FlagLowWordRate)
	}
	if sparse.Confidence >= dense.Confidence {
		t.Errorf("sparse confidence %v should be below dense %v", sparse.Confidence, dense.Confidence)
	}
	if dense.Confidence != 1 {
		t.Errorf("dense confidence = %v, want 1", dense.Confidence)
	}
}

func TestScore_NoSpeech(t *testing.T) {
	t.Parallel()

	audio := transcript.AudioSummary{DurationMs: 10_000}
	for _, text := range []string{transcript.NoSpeech, "", "   ", "... !!"} {
		a := transcript.Score(text, audio)
		if a.Confidence != 0 {
			t.Errorf("Score(%q).Confidence = %v, want 0", text, a.Confidence)
		}
		if len(a.Flags) != 1 || a.Flags[0].Name != transcript.FlagNoSpeech || a.Flags[0].Severity != transcript.SeverityCritical {
			t.Errorf("Score(%q).Flags = %+v, want single critical no_speech", text, a.Flags)
		}
	}
}

func TestScore_Flags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		text      string
		audio     transcript.AudioSummary
		wantFlags []string
		wantConf  float64
	}{
		{
			name:      "clean",
			text:      words(50),
			audio:     transcript.AudioSummary{DurationMs: 20_000, SilenceRatio: 0.2},
			wantFlags: nil,
			wantConf:  1,
		},
		{
			name:      "unknown duration",
			text:      "hello there friend",
			audio:     transcript.AudioSummary{},
			wantFlags: []string{transcript.FlagUnknownDuration},
			wantConf:  1,
		},
		{
			name:      "too fast",
			text:      words(20),
			audio:     transcript.AudioSummary{DurationMs: 2000},
			wantFlags: []string{transcript.FlagHighWordRate},
			wantConf:  0.7,
		},
		{
			name:      "all silence",
			text:      words(50),
			audio:     transcript.AudioSummary{DurationMs: 20_000, SilenceRatio: 1},
			wantFlags: []string{transcript.FlagHighSilence},
			wantConf:  0.5,
		},
		{
			name:      "short",
			text:      "Yes.",
			audio:     transcript.AudioSummary{DurationMs: 1000},
			wantFlags: []string{transcript.FlagShortTranscript},
			wantConf:  0.85,
		},
		{
			name:      "repetitive",
			text:      "I remember the farm. I remember the farm. I remember the farm. I remember the farm.",
			audio:     transcript.AudioSummary{DurationMs: 10_000},
			wantFlags: []string{transcript.FlagRepetitive},
			wantConf:  0.7,
		},
		{
			name:      "sparse and short",
			text:      "Hello there.",
			audio:     transcript.AudioSummary{DurationMs: 60_000},
			wantFlags: []string{transcript.FlagLowWordRate, transcript.FlagShortTranscript, transcript.FlagLowConfidence},
			wantConf:  0.375,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := transcript.Score(tt.text, tt.audio)
			got := flagNames(a)
			if strings.Join(got, ",") != strings.Join(tt.wantFlags, ",") {
				t.Errorf("flags: got=%v, want %v", got, tt.wantFlags)
			}
			if math.Abs(a.Confidence-tt.wantConf) > 1e-9 {
				t.Errorf("confidence: got=%v, want %v", a.Confidence, tt.wantConf)
			}
		})
	}
}

func TestScore_BoundedAndDeterministic(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(7, 11))
	for i := range 200 {
		text := words(r.IntN(400))
		audio := transcript.AudioSummary{
			DurationMs:   r.Float64()*120_000 - 1000,
			SilenceRatio: r.Float64()*1.4 - 0.2,
		}
		a := transcript.Score(text, audio)
		if a.Confidence < 0 || a.Confidence > 1 {
			t.Fatalf("case %d: confidence %v out of [0,1]", i, a.Confidence)
		}
		if math.Round(a.Confidence*1000)/1000 != a.Confidence {
			t.Fatalf("case %d: confidence %v not rounded to 3 decimals", i, a.Confidence)
		}
		b := transcript.Score(text, audio)
		if a.Confidence != b.Confidence || len(a.Flags) != len(b.Flags) {
			t.Fatalf("case %d: non-deterministic score", i)
		}
	}

	nan := transcript.Score("some words here", transcript.AudioSummary{DurationMs: math.NaN(), SilenceRatio: math.NaN()})
	if math.IsNaN(nan.Confidence) || !nan.Has(transcript.FlagUnknownDuration) {
		t.Errorf("NaN inputs: got %+v", nan)
	}
}
