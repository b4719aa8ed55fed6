package phonetic_test

import (
	"testing"

	"github.com/MrWong99/memoira/internal/transcript/phonetic"
)

var family = []string{"Eleanor", "Joaquín", "Aunt Marjorie", "Grandpa Ignatius"}

func TestMatcher_SingleWordMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	corrected, conf, matched := m.Match("Elenor", family)
	if !matched {
		t.Fatalf("Match(%q, family): matched=false, want true", "Elenor")
	}
	if corrected != "Eleanor" {
		t.Errorf("Match(%q): corrected=%q, want %q", "Elenor", corrected, "Eleanor")
	}
	if conf < 0.9 {
		t.Errorf("Match(%q): confidence=%f, want >= 0.9", "Elenor", conf)
	}
}

func TestMatcher_MultiWordNameMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	corrected, conf, matched := m.Match("aunt marjory", family)
	if !matched {
		t.Fatalf("Match(%q, family): matched=false, want true", "aunt marjory")
	}
	if corrected != "Aunt Marjorie" {
		t.Errorf("Match(%q): corrected=%q, want %q", "aunt marjory", corrected, "Aunt Marjorie")
	}
	if conf < 0.8 {
		t.Errorf("Match(%q): confidence=%f, want >= 0.8", "aunt marjory", conf)
	}
}

func TestMatcher_PartialNameDoesNotExpand(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	if corrected, _, matched := m.Match("Grandpa", family); matched {
		t.Fatalf("Match(%q): matched %q, want no match", "Grandpa", corrected)
	}
}

func TestMatcher_AccentFolding(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	corrected, conf, matched := m.Match("Joaquin", family)
	if !matched || corrected != "Joaquín" {
		t.Fatalf("Match(%q): got %q matched=%v, want %q", "Joaquin", corrected, matched, "Joaquín")
	}
	if conf < 0.999 {
		t.Errorf("confidence=%f, want ~1", conf)
	}
}

func TestMatcher_NoMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	corrected, conf, matched := m.Match("tractor", family)
	if matched {
		t.Fatalf("Match(%q, family): matched=true, want false", "tractor")
	}
	if corrected != "tractor" {
		t.Errorf("Match(%q): corrected=%q, want original word", "tractor", corrected)
	}
	if conf != 0 {
		t.Errorf("Match(%q): confidence=%f, want 0", "tractor", conf)
	}
}

func TestMatcher_CaseInsensitivity(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	corrected, _, matched := m.Match("ELEANOR", family)
	if !matched {
		t.Fatalf("Match(%q, family): matched=false, want true", "ELEANOR")
	}
	if corrected != "Eleanor" {
		t.Errorf("Match(%q): corrected=%q, want %q", "ELEANOR", corrected, "Eleanor")
	}
}

func TestMatcher_ThresholdFiltering(t *testing.T) {
	t.Parallel()

	m := phonetic.New(
		phonetic.WithPhoneticThreshold(0.99),
		phonetic.WithFuzzyThreshold(0.99),
	)
	if _, _, matched := m.Match("Elenor", family); matched {
		t.Fatal("Match with threshold=0.99 should reject near-matches, got matched=true")
	}
}

func TestMatcher_Empty(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	if corrected, conf, matched := m.Match("Eleanor", nil); matched || corrected != "Eleanor" || conf != 0 {
		t.Errorf("nil names: got (%q, %f, %v), want unchanged no match", corrected, conf, matched)
	}
	if corrected, conf, matched := m.Match("  ", family); matched || corrected != "  " || conf != 0 {
		t.Errorf("blank word: got (%q, %f, %v), want unchanged no match", corrected, conf, matched)
	}
}

func TestPrepare(t *testing.T) {
	t.Parallel()

	ns := phonetic.Prepare(append([]string{"", "   "}, family...))
	if ns.Len() != len(family) {
		t.Errorf("Len: got %d, want %d", ns.Len(), len(family))
	}
	if ns.MaxWords() != 2 {
		t.Errorf("MaxWords: got %d, want 2", ns.MaxWords())
	}
	m := phonetic.New()
	if got, _, _ := m.MatchPrepared("Elenor", ns); got != "Eleanor" {
		t.Errorf("MatchPrepared: got %q, want %q", got, "Eleanor")
	}
}

func TestMatcher_LongerWindowDoesNotMatchShorterName(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	for _, in := range []string{"Eleanor was", "Elenor was", "Joaquin said"} {
		if corrected, _, matched := m.Match(in, family); matched {
			t.Errorf("Match(%q): matched %q, want no match", in, corrected)
		}
	}
}

func TestMatcher_ConcatenatedInputMatchesMultiWordName(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	corrected, _, matched := m.Match("Ann Marie", []string{"Annmarie"})
	if matched {
		t.Fatalf("Match(%q): matched %q, want no match for more words than the name", "Ann Marie", corrected)
	}
	corrected, _, matched = m.Match("Annmarie", []string{"Ann Marie"})
	if !matched || corrected != "Ann Marie" {
		t.Errorf("Match(%q): got %q matched=%v, want %q", "Annmarie", corrected, matched, "Ann Marie")
	}
}
