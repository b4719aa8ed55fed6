// Package transcript turns raw speech-to-text output into the text stored with
// a recording.
//
// Raw transcripts go through four stages, all deterministic and free of I/O:
//
//  1. [Filter] strips stock phrases that transcription models hallucinate on
//     silent or music-only audio ("Thanks for watching!", "[BLANK_AUDIO]").
//     A transcript with nothing left becomes the [NoSpeech] sentinel.
//  2. An optional [NameMatcher] rewrites misheard family names to their
//     canonical spelling using pronunciation similarity.
//  3. [Format] splits the text into sentences and groups them into fixed-size
//     paragraphs, producing matching plain-text and HTML renderings.
//  4. [Score] derives a confidence value and advisory [Flag]s from the text
//     and the acoustic metrics of the source audio.
//
// [Pipeline] wires the stages together. All exported types are safe for
// concurrent use.
package transcript

// NoSpeech is the canonical transcript of a recording without usable speech.
// It is compared verbatim throughout the system.
const NoSpeech = "[No speech detected]"

// FormatVersion is the schema version of [Formatted].
const FormatVersion = 1

// Formatted is the display form of a transcript. Plain equals HTML with all
// markup removed and entities unescaped.
type Formatted struct {
	HTML    string `json:"html"`
	Plain   string `json:"plain"`
	Version int    `json:"version"`
}

// Severity ranks a validation flag.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Validation flag names.
const (
	FlagNoSpeech        = "no_speech"
	FlagLowWordRate     = "low_word_rate"
	FlagHighWordRate    = "high_word_rate"
	FlagHighSilence     = "high_silence"
	FlagShortTranscript = "short_transcript"
	FlagRepetitive      = "repetitive"
	FlagUnknownDuration = "unknown_duration"
	FlagLowConfidence   = "low_confidence"
)

// Flag is one advisory finding about a transcript. Flags never block saving.
type Flag struct {
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// AudioSummary is the subset of acoustic metrics the scorer needs.
type AudioSummary struct {
	DurationMs   float64 `json:"duration_ms"`
	SilenceRatio float64 `json:"silence_ratio"`
}

// Correction captures a single substitution made by the name matcher.
type Correction struct {
	// Original is the text as produced by the STT provider.
	Original string `json:"original"`

	// Corrected is the canonical name that replaced it.
	Corrected string `json:"corrected"`

	// Confidence is the matcher's similarity score (0.0–1.0).
	Confidence float64 `json:"confidence"`

	// Method names the stage that produced the substitution. Currently always
	// "phonetic".
	Method string `json:"method"`
}

// Record is the processed transcript of one recording.
type Record struct {
	// Raw is the text exactly as returned by speech-to-text, or as typed by
	// the user for an edit.
	Raw string `json:"raw"`

	// Text is Raw after filtering and name correction.
	Text string `json:"text"`

	Formatted   Formatted    `json:"formatted"`
	Confidence  float64      `json:"confidence"`
	Flags       []Flag       `json:"flags"`
	Corrections []Correction `json:"corrections"`

	// Language and Model are passed through from the STT result.
	Language string `json:"language,omitempty"`
	Model    string `json:"model,omitempty"`

	// Edited is true when the record came from a user edit.
	Edited bool `json:"edited"`
}

// IsNoSpeech reports whether the record holds the no-speech sentinel.
func (r *Record) IsNoSpeech() bool { return r.Text == NoSpeech }

// NameMatcher resolves a word or short phrase to a known name based on
// pronunciation similarity.
//
// When matched is false, corrected must equal word unchanged and confidence
// must be 0. Implementations must be safe for concurrent use.
type NameMatcher interface {
	Match(word string, names []string) (corrected string, confidence float64, matched bool)
}
