package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/memoira/internal/transcript"
	"github.com/MrWong99/memoira/pkg/audio"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeWAV(t *testing.T, ms int) string {
	t.Helper()
	const rate = 16000
	n := rate * ms / 1000
	pcm := make([]byte, n*2)
	for i := range n {
		v := int16(0.3 * 32767 * math.Sin(2*math.Pi*220*float64(i)/rate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	path := filepath.Join(t.TempDir(), "take.wav")
	if err := os.WriteFile(path, audio.EncodeWAV(pcm, rate, 1), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, 3000)
	out, err := execute(t, "", "analyze", path)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var got analyzeOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if got.File != path {
		t.Errorf("File = %q, want %q", got.File, path)
	}
	if math.Abs(got.Metrics.DurationMs-3000) > 1 {
		t.Errorf("DurationMs = %v, want 3000", got.Metrics.DurationMs)
	}
	if !got.Decision.Accepted() {
		t.Errorf("Decision = %+v, want accept", got.Decision)
	}
}

func TestAnalyze_FailOnReview(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, 200)
	_, err := execute(t, "", "analyze", "--fail-on-review", path)
	if err == nil || !strings.Contains(err.Error(), "need review") {
		t.Fatalf("err = %v, want review failure", err)
	}
}

func TestAnalyze_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := execute(t, "", "analyze", filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{
			name: "argument",
			args: []string{"format", "she milked the cows every morning."},
			want: "milked the cows",
		},
		{
			name:  "stdin",
			stdin: "we moved to the city in the spring.",
			args:  []string{"format", "-"},
			want:  "moved to the city",
		},
		{
			name:  "edit",
			stdin: "thanks for watching",
			args:  []string{"format", "--edit"},
			want:  "thanks for watching",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, err := execute(t, tt.stdin, tt.args...)
			if err != nil {
				t.Fatalf("format: %v", err)
			}
			var rec transcript.Record
			if err := json.Unmarshal([]byte(out), &rec); err != nil {
				t.Fatalf("decode output: %v\n%s", err, out)
			}
			if !strings.Contains(rec.Text, tt.want) {
				t.Errorf("Text = %q, want it to contain %q", rec.Text, tt.want)
			}
		})
	}
}

func TestTranscribe_NoProvider(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, 1000)
	_, err := execute(t, "", "transcribe", path)
	if err == nil || !strings.Contains(err.Error(), "no speech-to-text provider") {
		t.Fatalf("err = %v, want missing provider error", err)
	}
}

func TestContentType(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"a.wav":  "audio/wav",
		"B.WAV":  "audio/wav",
		"c.webm": "audio/webm",
		"d.ogg":  "audio/ogg",
		"e.mp3":  "audio/mpeg",
		"f.bin":  "application/octet-stream",
	}
	for in, want := range tests {
		if got := contentType(in); got != want {
			t.Errorf("contentType(%q) = %q, want %q", in, got, want)
		}
	}
}
