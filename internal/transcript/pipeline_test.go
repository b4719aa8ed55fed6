package transcript_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/memoira/internal/transcript"
	"github.com/MrWong99/memoira/internal/transcript/phonetic"
	"github.com/MrWong99/memoira/pkg/provider/stt"
)

func makeResult(text string) stt.Result {
	return stt.Result{
		Text:     text,
		Language: "en",
		Model:    "whisper-large-v3",
		Duration: 20 * time.Second,
	}
}

func TestPipeline_Process(t *testing.T) {
	t.Parallel()

	p := transcript.NewPipeline(
		transcript.WithNameMatcher(phonetic.New()),
		transcript.WithFamilyNames("Eleanor", "Aunt Marjorie"),
	)
	res := makeResult("Thanks for watching! My grandmother Elenor was born in 1931. She lived with Aunt Marjory, on the farm.")
	audio := transcript.AudioSummary{DurationMs: 20_000, SilenceRatio: 0.1}

	rec, err := p.Process(context.Background(), res, audio)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	want := "My grandmother Eleanor was born in 1931. She lived with Aunt Marjorie, on the farm."
	if rec.Text != want {
		t.Errorf("Text: got=%q, want %q", rec.Text, want)
	}
	if rec.Raw != res.Text {
		t.Errorf("Raw: got=%q, want %q", rec.Raw, res.Text)
	}
	if len(rec.Corrections) != 2 {
		t.Fatalf("Corrections: got %+v, want 2", rec.Corrections)
	}
	if c := rec.Corrections[1]; c.Original != "Aunt Marjory" || c.Corrected != "Aunt Marjorie" || c.Method != "phonetic" {
		t.Errorf("second correction: got %+v", c)
	}
	if rec.Formatted.Plain != want {
		t.Errorf("Plain: got=%q, want %q", rec.Formatted.Plain, want)
	}
	if rec.Language != "en" || rec.Model != "whisper-large-v3" {
		t.Errorf("language/model not passed through: %q / %q", rec.Language, rec.Model)
	}
	if rec.Edited {
		t.Error("Edited should be false for STT output")
	}
	if rec.Confidence <= 0.5 {
		t.Errorf("Confidence: got %v, want > 0.5", rec.Confidence)
	}
}

func TestPipeline_ProcessKeepsWordAfterName(t *testing.T) {
	t.Parallel()

	p := transcript.NewPipeline(
		transcript.WithNameMatcher(phonetic.New()),
		transcript.WithFamilyNames("Eleanor", "Aunt Marjorie"),
	)
	tests := []struct {
		in, want string
		fixes    int
	}{
		{"Eleanor was happy.", "Eleanor was happy.", 0},
		{"My grandmother Elenor was born in 1931.", "My grandmother Eleanor was born in 1931.", 1},
		{"Aunt Marjorie said Eleanor sang.", "Aunt Marjorie said Eleanor sang.", 0},
	}
	for _, tt := range tests {
		rec, err := p.Process(context.Background(), makeResult(tt.in), transcript.AudioSummary{DurationMs: 5000})
		if err != nil {
			t.Fatalf("Process(%q): %v", tt.in, err)
		}
		if rec.Text != tt.want {
			t.Errorf("Process(%q): Text=%q, want %q", tt.in, rec.Text, tt.want)
		}
		if len(rec.Corrections) != tt.fixes {
			t.Errorf("Process(%q): corrections=%+v, want %d", tt.in, rec.Corrections, tt.fixes)
		}
	}
}

func TestPipeline_ProcessHallucinationOnly(t *testing.T) {
	t.Parallel()

	p := transcript.NewPipeline()
	rec, err := p.Process(context.Background(), makeResult(" [BLANK_AUDIO] "), transcript.AudioSummary{DurationMs: 8000, SilenceRatio: 0.95})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if !rec.IsNoSpeech() {
		t.Fatalf("Text: got=%q, want sentinel", rec.Text)
	}
	if rec.Confidence != 0 {
		t.Errorf("Confidence: got %v, want 0", rec.Confidence)
	}
	if rec.Corrections == nil {
		t.Error("Corrections is nil, want non-nil (even if empty)")
	}
	if rec.Formatted.HTML != "<p>"+transcript.NoSpeech+"</p>" {
		t.Errorf("HTML: got=%q", rec.Formatted.HTML)
	}
}

func TestPipeline_ProcessUsesProviderDuration(t *testing.T) {
	t.Parallel()

	p := transcript.NewPipeline()
	res := makeResult("It was cold. We walked.")
	res.Duration = time.Minute
	rec, err := p.Process(context.Background(), res, transcript.AudioSummary{})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	var names []string
	for _, f := range rec.Flags {
		names = append(names, f.Name)
	}
	if !strings.Contains(strings.Join(names, ","), transcript.FlagLowWordRate) {
		t.Errorf("flags = %v, want %s from provider duration", names, transcript.FlagLowWordRate)
	}
}

func TestPipeline_ProcessCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := transcript.NewPipeline().Process(ctx, makeResult("Hello."), transcript.AudioSummary{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got err=%v, want context.Canceled", err)
	}
}

func TestPipeline_ParagraphSize(t *testing.T) {
	t.Parallel()

	p := transcript.NewPipeline(transcript.WithParagraphSize(2))
	rec, err := p.Process(context.Background(), makeResult("A one. B two. C three."), transcript.AudioSummary{DurationMs: 3000})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if want := "A one. B two.\n\nC three."; rec.Formatted.Plain != want {
		t.Errorf("Plain: got=%q, want %q", rec.Formatted.Plain, want)
	}
	if p.ParagraphSize() != 2 {
		t.Errorf("ParagraphSize: got %d, want 2", p.ParagraphSize())
	}
}

func TestPipeline_Edit(t *testing.T) {
	t.Parallel()

	p := transcript.NewPipeline(
		transcript.WithNameMatcher(phonetic.New()),
		transcript.WithFamilyNames("Eleanor"),
	)
	audio := transcript.AudioSummary{DurationMs: 4000}

	rec := p.Edit("  Thanks for watching!  Elenor  typed this. ", audio)
	if rec.Text != "Thanks for watching! Elenor typed this." {
		t.Errorf("edit must not be filtered or corrected: got=%q", rec.Text)
	}
	if !rec.Edited {
		t.Error("Edited: got false, want true")
	}

	empty := p.Edit("   ", audio)
	if !empty.IsNoSpeech() || empty.Confidence != 0 {
		t.Errorf("empty edit: got text=%q confidence=%v, want sentinel and 0", empty.Text, empty.Confidence)
	}
}
