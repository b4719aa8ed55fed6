package transcript

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// DefaultParagraphSize is the number of sentences per paragraph.
const DefaultParagraphSize = 4

const paragraphSep = "\n\n"

// Format splits text into sentences and groups them positionally into
// paragraphs of perParagraph sentences (values below 1 select
// [DefaultParagraphSize]). Empty or whitespace-only text yields an empty
// Formatted with the current version.
func Format(text string, perParagraph int) Formatted {
	if perParagraph < 1 {
		perParagraph = DefaultParagraphSize
	}
	paras := Paragraphs(SplitSentences(text), perParagraph)
	return Formatted{
		Plain:   strings.Join(paras, paragraphSep),
		HTML:    renderHTML(paras),
		Version: FormatVersion,
	}
}

// SplitSentences breaks text at runs of terminal punctuation (". ! ? …"),
// including any closing quotes or brackets, that are followed by whitespace
// or the end of the text. A decimal point such as "3.5" is never a boundary.
// Trailing text without terminal punctuation forms the last sentence.
func SplitSentences(text string) []string {
	runes := []rune(normalizeSpace(text))
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		j := i
		for j < len(runes) && isTerminal(runes[j]) {
			j++
		}
		for j < len(runes) && isCloser(runes[j]) {
			j++
		}
		if j == len(runes) || unicode.IsSpace(runes[j]) {
			if s := strings.TrimSpace(string(runes[start:j])); s != "" {
				out = append(out, s)
			}
			start = j
		}
		i = j - 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// Paragraphs joins consecutive groups of size sentences with single spaces.
func Paragraphs(sentences []string, size int) []string {
	if size < 1 {
		size = DefaultParagraphSize
	}
	var out []string
	for i := 0; i < len(sentences); i += size {
		end := min(i+size, len(sentences))
		out = append(out, strings.Join(sentences[i:end], " "))
	}
	return out
}

// HTMLFromPlain renders plain-text paragraphs (separated by blank lines) as
// HTML paragraphs.
func HTMLFromPlain(plain string) string {
	if plain == "" {
		return ""
	}
	return renderHTML(strings.Split(plain, paragraphSep))
}

// StripMarkup removes all tags from s and unescapes entities. For any HTML
// produced by [Format], StripMarkup(f.HTML) == f.Plain.
func StripMarkup(s string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}

func renderHTML(paras []string) string {
	if len(paras) == 0 {
		return ""
	}
	var b strings.Builder
	for i, p := range paras {
		if i > 0 {
			b.WriteString(paragraphSep)
		}
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(p))
		b.WriteString("</p>")
	}
	return b.String()
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', '”', '’', '»', ')', ']', '}':
		return true
	}
	return false
}
