package transcript

import (
	"math/bits"
	"strings"

	"github.com/go-dedup/simhash"
)

// nearDuplicateBits is the largest Hamming distance between two sentence
// fingerprints that still counts as a repeat.
const nearDuplicateBits = 3

// sentenceFeatures extracts lower-cased word unigrams and bigrams.
type sentenceFeatures struct {
	words []string
}

func (s sentenceFeatures) GetFeatures() []simhash.Feature {
	features := make([]simhash.Feature, 0, len(s.words)*2)
	for i, w := range s.words {
		features = append(features, simhash.NewFeature([]byte(w)))
		if i > 0 {
			features = append(features, simhash.NewFeature([]byte(s.words[i-1]+" "+w)))
		}
	}
	return features
}

// tokenize returns the lower-cased words of s with punctuation removed.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !isWordRune(r) && r != '\'' && r != '’'
	})
}

// countWords counts whitespace-separated tokens that contain a letter or digit.
func countWords(s string) int {
	n := 0
	for _, f := range strings.Fields(s) {
		if hasWordRune(f) {
			n++
		}
	}
	return n
}

// repetitive reports whether at least half of the sentences (with a minimum
// of three) repeat an earlier sentence almost verbatim.
func repetitive(sentences []string) bool {
	if len(sentences) < 3 {
		return false
	}
	sh := simhash.NewSimhash()
	var seen []uint64
	dups := 0
	for _, s := range sentences {
		words := tokenize(s)
		if len(words) == 0 {
			continue
		}
		fp := sh.GetSimhash(sentenceFeatures{words: words})
		for _, prev := range seen {
			if bits.OnesCount64(fp^prev) <= nearDuplicateBits {
				dups++
				break
			}
		}
		seen = append(seen, fp)
	}
	return dups*2 >= len(sentences)
}
