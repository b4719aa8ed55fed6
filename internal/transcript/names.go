package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/memoira/internal/transcript/phonetic"
)

// minNameLetters is the shortest span that is considered for correction.
const minNameLetters = 3

// correctNames runs the name matcher over text and returns the corrected text
// together with every substitution applied.
//
// The algorithm:
//  1. Tokenise the text on whitespace.
//  2. At each token position, try n-gram windows from the longest name's word
//     count down to 1 and accept the longest match, so "Aunt Marjory" is
//     rewritten as a whole rather than word by word.
//  3. Only spans that start with an upper-case letter are candidates. STT
//     engines capitalise proper nouns, and this keeps ordinary words such as
//     "rows" from being turned into "Rose".
//  4. Punctuation around the span is preserved; a window whose inner tokens
//     carry punctuation is skipped.
func correctNames(text string, m NameMatcher, names []string, prepared *phonetic.Names) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 || m == nil || len(names) == 0 {
		return text, nil
	}

	var matchFn func(string) (string, float64, bool)
	var maxWords int
	if pm, ok := m.(*phonetic.Matcher); ok && prepared != nil {
		maxWords = prepared.MaxWords()
		matchFn = func(s string) (string, float64, bool) { return pm.MatchPrepared(s, prepared) }
	} else {
		maxWords = maxWordCount(names)
		matchFn = func(s string) (string, float64, bool) { return m.Match(s, names) }
	}
	if maxWords == 0 {
		return text, nil
	}

	var output []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		maxN := min(maxWords, len(tokens)-i)

		matched := false
		for n := maxN; n >= 1; n-- {
			prefix, core, suffix, ok := span(tokens[i : i+n])
			if !ok {
				continue
			}
			name, conf, found := matchFn(core)
			if !found {
				continue
			}
			output = append(output, prefix+name+suffix)
			if name != core {
				corrections = append(corrections, Correction{
					Original:   core,
					Corrected:  name,
					Confidence: conf,
					Method:     "phonetic",
				})
			}
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

// span splits a token window into leading punctuation, the candidate text
// and trailing punctuation.
func span(window []string) (prefix, core, suffix string, ok bool) {
	first := window[0]
	start := strings.IndexFunc(first, isWordRune)
	if start < 0 {
		return "", "", "", false
	}
	last := window[len(window)-1]
	end := strings.LastIndexFunc(last, isWordRune)
	if end < 0 {
		return "", "", "", false
	}
	_, size := utf8.DecodeRuneInString(last[end:])
	end += size

	if len(window) == 1 {
		prefix, core, suffix = first[:start], first[start:end], first[end:]
	} else {
		for _, inner := range window[1 : len(window)-1] {
			if strings.IndexFunc(inner, isPunct) >= 0 {
				return "", "", "", false
			}
		}
		if strings.IndexFunc(first[start:], isPunct) >= 0 || strings.IndexFunc(last[:end], isPunct) >= 0 {
			return "", "", "", false
		}
		parts := append([]string{first[start:]}, window[1:len(window)-1]...)
		parts = append(parts, last[:end])
		prefix, core, suffix = first[:start], strings.Join(parts, " "), last[end:]
	}

	if r := []rune(core); len(r) == 0 || !unicode.IsUpper(r[0]) {
		return "", "", "", false
	}
	letters := 0
	for _, r := range core {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return prefix, core, suffix, letters >= minNameLetters
}

// isPunct reports punctuation that ends a word, leaving apostrophes and
// hyphens inside names like "O'Brien" or "Mary-Lou" alone.
func isPunct(r rune) bool {
	if r == '\'' || r == '’' || r == '-' {
		return false
	}
	return unicode.IsPunct(r)
}

// maxWordCount returns the maximum number of whitespace-separated words in
// any name. Returns 1 when names is empty.
func maxWordCount(names []string) int {
	n := 1
	for _, e := range names {
		n = max(n, len(strings.Fields(e)))
	}
	return n
}
