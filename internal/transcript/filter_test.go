package transcript_test

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/memoira/internal/transcript"
)

func TestFilter_RemovesListedPhraseBetweenSentences(t *testing.T) {
	t.Parallel()

	f := transcript.NewFilterWithPhrases([]string{"[silencio]"})
	got := f.Apply("Gracias. [silencio] Gracias.")
	if got != "Gracias. Gracias." {
		t.Fatalf("got=%q, want %q", got, "Gracias. Gracias.")
	}
}

func TestFilter_OnlyHallucinationBecomesSentinel(t *testing.T) {
	t.Parallel()

	f := transcript.NewFilter()
	for _, in := range []string{
		"Thanks for watching!",
		"  [BLANK_AUDIO]  ",
		"[Música] [Música]",
		"Subtítulos realizados por la comunidad de Amara.org",
		"",
		"   ",
		"...",
		"♪ ♪ ♪",
	} {
		if got := f.Apply(in); got != transcript.NoSpeech {
			t.Errorf("Apply(%q) = %q, want %q", in, got, transcript.NoSpeech)
		}
	}
}

func TestFilter_CaseAndWhitespaceInsensitive(t *testing.T) {
	t.Parallel()

	f := transcript.NewFilter()
	got := f.Apply("We moved in 1952.   THANKS   for\nwatching!  Then the war ended.")
	want := "We moved in 1952. Then the war ended."
	if got != want {
		t.Fatalf("got=%q, want %q", got, want)
	}
}

func TestFilter_WholePhraseOnly(t *testing.T) {
	t.Parallel()

	f := transcript.NewFilterWithPhrases([]string{"Gracias", "music"})
	for _, in := range []string{
		"Graciasss for the visit.",
		"She loved musicals.",
		"Ams music2 band.",
	} {
		if got := f.Apply(in); got != in {
			t.Errorf("Apply(%q) = %q, want unchanged", in, got)
		}
	}
	if got := f.Apply("Music, music and dancing."); got != ", and dancing." {
		t.Errorf("bounded by punctuation: got %q", got)
	}
}

func TestFilter_UnicodeNormalisation(t *testing.T) {
	t.Parallel()

	f := transcript.NewFilter()
	// "Música" spelled with a combining acute accent.
	got := f.Apply("Hola. [Mu\u0301sica] Adiós.")
	if got != "Hola. Adiós." {
		t.Fatalf("got=%q, want %q", got, "Hola. Adiós.")
	}
}

func TestFilter_RemovalUntilFixpoint(t *testing.T) {
	t.Parallel()

	f := transcript.NewFilterWithPhrases([]string{"ab cd"})
	if got := f.Apply("ab ab cd cd"); got != transcript.NoSpeech {
		t.Fatalf("got=%q, want %q", got, transcript.NoSpeech)
	}
}

func TestFilter_Idempotent(t *testing.T) {
	t.Parallel()

	f := transcript.NewFilter("Like and subscribe.")
	inputs := []string{
		"My grandfather built this house. Thanks for watching!",
		"Thank you for watching. Thank you for watching.",
		"[silence] We sang in the choir [Music] every Sunday.",
		"Like and subscribe. Like and subscribe.",
		transcript.NoSpeech,
		"Nothing to strip here.",
		"e[Music]\u0301 accent",
	}
	for _, in := range inputs {
		once := f.Apply(in)
		if twice := f.Apply(once); twice != once {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestFilter_SentinelPassesThrough(t *testing.T) {
	t.Parallel()

	f := transcript.NewFilterWithPhrases([]string{"speech"})
	if got := f.Apply(transcript.NoSpeech); got != transcript.NoSpeech {
		t.Fatalf("got=%q, want sentinel unchanged", got)
	}
}

func TestFilter_Phrases(t *testing.T) {
	t.Parallel()

	f := transcript.NewFilterWithPhrases([]string{"  Thanks  for watching ", "thanks for watching", ""})
	got := f.Phrases()
	if len(got) != 1 || got[0] != "Thanks for watching" {
		t.Fatalf("Phrases() = %q, want one normalised phrase", got)
	}
}

func TestFilter_LargeRepetitiveInputIsLinear(t *testing.T) {
	t.Parallel()

	f := transcript.NewFilter()
	in := strings.Repeat("word [Music] ", 20_000)

	start := time.Now()
	got := f.Apply(in)
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Apply on %d bytes took %v", len(in), elapsed)
	}
	if want := strings.TrimSpace(strings.Repeat("word ", 20_000)); got != want {
		t.Errorf("got %d bytes, want %d bytes of plain words", len(got), len(want))
	}
}

func TestFilter_CutExposesNewOccurrence(t *testing.T) {
	t.Parallel()

	f := transcript.NewFilterWithPhrases([]string{"[Music]"})
	if got := f.Apply("We sang [Mu[Music]sic] together."); got != "We sang together." {
		t.Fatalf("got=%q, want %q", got, "We sang together.")
	}
}
