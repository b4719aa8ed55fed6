// Package phonetic implements [transcript.NameMatcher] using Double Metaphone
// phonetic encoding combined with Jaro-Winkler string similarity.
//
// Family names are the words speech-to-text gets wrong most often in oral
// history recordings ("Rosy" for "Rosie", "Elenor" for "Eleanor"). The
// matcher works in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     the (accent-folded) input and for each known name. When the input and
//     the name have the same number of words, every aligned word pair must
//     share a code. An input with fewer words than the name is compared by
//     its concatenated form; an input with more words never matches.
//
//  2. Jaro-Winkler ranking: among phonetic candidates the name with the
//     highest similarity wins, provided it reaches the phonetic threshold.
//     Without a phonetic candidate a stricter fuzzy threshold applies.
package phonetic

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.92

	// maxLengthSkew bounds how much the concatenated input and name may
	// differ in length, relative to the longer of the two, when the input has
	// fewer words than the name.
	maxLengthSkew = 0.3
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched name to be accepted. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found. Default: 0.92.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is a phonetic name matcher. It is read-only after construction and
// safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a new [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Names is a precomputed name list for repeated matching.
type Names struct {
	entries  []entry
	maxWords int
}

type entry struct {
	name string
	form
}

// form is the comparison form of a word or phrase.
type form struct {
	tokens      []string
	codes       []map[string]struct{}
	concat      string
	concatCodes map[string]struct{}
}

// Prepare precomputes phonetic data for names. Blank names are dropped.
func Prepare(names []string) *Names {
	ns := &Names{}
	for _, n := range names {
		f, ok := newForm(n)
		if !ok {
			continue
		}
		ns.entries = append(ns.entries, entry{name: strings.TrimSpace(n), form: f})
		ns.maxWords = max(ns.maxWords, len(f.tokens))
	}
	return ns
}

// MaxWords returns the word count of the longest name, or 0 for an empty list.
func (ns *Names) MaxWords() int { return ns.maxWords }

// Len returns the number of usable names.
func (ns *Names) Len() int { return len(ns.entries) }

// Match finds the name most phonetically similar to word. When matched is
// false, corrected equals word unchanged and confidence is 0.
func (m *Matcher) Match(word string, names []string) (corrected string, confidence float64, matched bool) {
	return m.MatchPrepared(word, Prepare(names))
}

// MatchPrepared is [Matcher.Match] against a precomputed name list.
func (m *Matcher) MatchPrepared(word string, names *Names) (corrected string, confidence float64, matched bool) {
	in, ok := newForm(word)
	if !ok || names == nil {
		return word, 0, false
	}

	type candidate struct {
		name     string
		score    float64
		phonetic bool
	}
	var best candidate

	for _, e := range names.entries {
		score, phon, ok := compare(in, e.form)
		if !ok {
			continue
		}
		if phon {
			if score >= m.phoneticThreshold && (!best.phonetic || score > best.score) {
				best = candidate{name: e.name, score: score, phonetic: true}
			}
		} else if !best.phonetic && score >= m.fuzzyThreshold && score > best.score {
			best = candidate{name: e.name, score: score}
		}
	}

	if best.name != "" {
		return best.name, best.score, true
	}
	return word, 0, false
}

// compare scores in against name. ok is false when the two are not
// comparable at all.
func compare(in, name form) (score float64, phonetic, ok bool) {
	if len(in.tokens) == len(name.tokens) {
		phonetic = true
		var sum float64
		for i := range in.tokens {
			if !codesOverlap(in.codes[i], name.codes[i]) {
				phonetic = false
			}
			sum += matchr.JaroWinkler(in.tokens[i], name.tokens[i], false)
		}
		return sum / float64(len(in.tokens)), phonetic, true
	}

	// A window with more words than the name would swallow the words after it.
	if len(in.tokens) > len(name.tokens) {
		return 0, false, false
	}
	a, b := utf8.RuneCountInString(in.concat), utf8.RuneCountInString(name.concat)
	longer := max(a, b)
	if float64(abs(a-b)) > maxLengthSkew*float64(longer) {
		return 0, false, false
	}
	return matchr.JaroWinkler(in.concat, name.concat, false), codesOverlap(in.concatCodes, name.concatCodes), true
}

func newForm(s string) (form, bool) {
	tokens := strings.Fields(fold(s))
	if len(tokens) == 0 {
		return form{}, false
	}
	f := form{
		tokens: tokens,
		codes:  make([]map[string]struct{}, len(tokens)),
		concat: strings.Join(tokens, ""),
	}
	for i, t := range tokens {
		f.codes[i] = codesFor(t)
	}
	f.concatCodes = codesFor(f.concat)
	return f, true
}

// fold lower-cases s and strips diacritics so "Joaquín" and "joaquin" share
// phonetic codes.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// codesFor returns the non-empty Double Metaphone codes of token.
func codesFor(token string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(token)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
