package transcript

import (
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultPhrases are stock phrases Whisper-family models emit on silence,
// music or noise. Matching is case-insensitive, so casing here is cosmetic.
var DefaultPhrases = []string{
	// English
	"Thanks for watching!",
	"Thanks for watching.",
	"Thank you for watching!",
	"Thank you for watching.",
	"Thank you for watching and see you next time.",
	"Please subscribe to my channel.",
	"Don't forget to like and subscribe!",
	"Subtitles by the Amara.org community",
	"[BLANK_AUDIO]",
	"[ Silence ]",
	"[silence]",
	"(silence)",
	"[Music]",
	"(music)",
	"[Applause]",
	"♪",

	// Spanish
	"Subtítulos realizados por la comunidad de Amara.org",
	"Subtítulos por la comunidad de Amara.org",
	"¡Gracias por ver el video!",
	"¡Gracias por ver!",
	"Suscríbete al canal.",
	"[silencio]",
	"[Música]",
	"(Música)",
}

// Filter removes known hallucinated phrases from transcripts. A Filter is
// immutable after construction.
type Filter struct {
	phrases [][]rune
	source  []string
}

// NewFilter returns a filter for [DefaultPhrases] plus extra. Blank and
// duplicate phrases are ignored.
func NewFilter(extra ...string) *Filter {
	return NewFilterWithPhrases(append(slices.Clone(DefaultPhrases), extra...))
}

// NewFilterWithPhrases returns a filter for exactly the given phrases.
func NewFilterWithPhrases(phrases []string) *Filter {
	f := &Filter{}
	fold := cases.Fold()
	seen := make(map[string]struct{}, len(phrases))
	for _, p := range phrases {
		n := normalizeSpace(norm.NFC.String(p))
		if n == "" {
			continue
		}
		key := fold.String(n)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		f.phrases = append(f.phrases, []rune(n))
		f.source = append(f.source, n)
	}
	// Longest first, so a phrase that contains a shorter one wins.
	slices.SortStableFunc(f.phrases, func(a, b []rune) int { return len(b) - len(a) })
	return f
}

// Phrases returns the normalised phrase list.
func (f *Filter) Phrases() []string { return slices.Clone(f.source) }

// Apply strips every whole occurrence of a known phrase from text, collapses
// whitespace, and returns [NoSpeech] if no letter or digit remains. Apply is
// idempotent.
func (f *Filter) Apply(text string) string {
	if text == NoSpeech {
		return NoSpeech
	}
	runes := []rune(normalizeSpace(norm.NFC.String(text)))
	for {
		out, removed := f.strip(runes)
		if !removed {
			break
		}
		// Re-normalise after cutting: a splice can join a base rune with a
		// combining mark.
		runes = []rune(normalizeSpace(norm.NFC.String(string(out))))
	}
	out := string(runes)
	if !hasWordRune(out) {
		return NoSpeech
	}
	return out
}

// strip removes every non-overlapping phrase occurrence in one left-to-right
// pass. Occurrences that only form once their neighbours are cut are left for
// the next pass.
func (f *Filter) strip(runes []rune) ([]rune, bool) {
	out := make([]rune, 0, len(runes))
	removed := false
	for i := 0; i < len(runes); {
		if n := f.matchAt(runes, i, out); n > 0 {
			i += n
			removed = true
			continue
		}
		out = append(out, runes[i])
		i++
	}
	return out, removed
}

// matchAt returns the length of the phrase occurring at runes[i], or 0. The
// left boundary is checked against kept, the text already emitted by this
// pass, so a cut is judged on what the reader will actually see.
func (f *Filter) matchAt(runes []rune, i int, kept []rune) int {
	for _, p := range f.phrases {
		end := i + len(p)
		if end > len(runes) || !foldEqual(runes[i:end], p) {
			continue
		}
		if isWordRune(p[0]) && len(kept) > 0 && isWordRune(kept[len(kept)-1]) {
			continue
		}
		if isWordRune(p[len(p)-1]) && end < len(runes) && isWordRune(runes[end]) {
			continue
		}
		return len(p)
	}
	return 0
}

func foldEqual(a, b []rune) bool {
	for i := range a {
		if a[i] == b[i] {
			continue
		}
		if unicode.ToLower(a[i]) != unicode.ToLower(b[i]) && unicode.ToUpper(a[i]) != unicode.ToUpper(b[i]) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }

func hasWordRune(s string) bool { return strings.IndexFunc(s, isWordRune) >= 0 }

// normalizeSpace drops control characters, collapses runs of whitespace to
// one space and trims the ends.
func normalizeSpace(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
