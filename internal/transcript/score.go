package transcript

import (
	"fmt"
	"math"
	"strings"
)

// Scoring constants.
const (
	minWordsPerMinute      = 40
	maxWordsPerMinute      = 300
	minRateAudioMs         = 5000
	highSilenceRatio       = 0.6
	shortTranscriptWords   = 3
	lowConfidenceCutoff    = 0.5
	lowRateMaxPenalty      = 0.5
	highRatePenalty        = 0.3
	silenceBasePenalty     = 0.1
	silenceExcessPenalty   = 0.4
	shortTranscriptPenalty = 0.15
	repetitivePenalty      = 0.3
)

// Assessment is the output of [Score].
type Assessment struct {
	// Confidence is in [0, 1], rounded to three decimals.
	Confidence float64 `json:"confidence"`
	Flags      []Flag  `json:"flags"`
}

// Has reports whether the assessment carries the named flag.
func (a Assessment) Has(name string) bool {
	for _, f := range a.Flags {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Score estimates how trustworthy a transcript is given the audio it came
// from. It starts at 1.0 and subtracts a penalty for every suspicious
// condition, recording each as a [Flag]. Score is a pure function of its
// inputs.
func Score(text string, audio AudioSummary) Assessment {
	text = strings.TrimSpace(text)
	words := countWords(text)
	if text == NoSpeech || words == 0 {
		return Assessment{
			Confidence: 0,
			Flags: []Flag{{
				Name:     FlagNoSpeech,
				Severity: SeverityCritical,
				Message:  "No speech was detected in this recording.",
			}},
		}
	}

	conf := 1.0
	flags := []Flag{}

	dur := audio.DurationMs
	if math.IsNaN(dur) || math.IsInf(dur, 0) || dur <= 0 {
		flags = append(flags, Flag{
			Name:     FlagUnknownDuration,
			Severity: SeverityInfo,
			Message:  "Recording length is unknown; speaking rate was not checked.",
		})
	} else {
		wpm := float64(words) / (dur / 60_000)
		if dur >= minRateAudioMs && wpm < minWordsPerMinute {
			shortfall := (minWordsPerMinute - wpm) / minWordsPerMinute
			conf -= lowRateMaxPenalty * shortfall
			flags = append(flags, Flag{
				Name:     FlagLowWordRate,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Only %.0f words per minute were transcribed; parts of the answer may be missing.", wpm),
			})
		}
		if wpm > maxWordsPerMinute {
			conf -= highRatePenalty
			flags = append(flags, Flag{
				Name:     FlagHighWordRate,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("%.0f words per minute is faster than natural speech; the transcript may contain invented text.", wpm),
			})
		}
	}

	silence := audio.SilenceRatio
	if math.IsNaN(silence) {
		silence = 0
	}
	silence = math.Min(math.Max(silence, 0), 1)
	if silence > highSilenceRatio {
		excess := (silence - highSilenceRatio) / (1 - highSilenceRatio)
		conf -= silenceBasePenalty + silenceExcessPenalty*excess
		flags = append(flags, Flag{
			Name:     FlagHighSilence,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("The recording is %.0f%% silence, which often produces unreliable transcripts.", silence*100),
		})
	}

	if words < shortTranscriptWords {
		conf -= shortTranscriptPenalty
		flags = append(flags, Flag{
			Name:     FlagShortTranscript,
			Severity: SeverityInfo,
			Message:  "The transcript is very short.",
		})
	}

	if repetitive(SplitSentences(text)) {
		conf -= repetitivePenalty
		flags = append(flags, Flag{
			Name:     FlagRepetitive,
			Severity: SeverityWarning,
			Message:  "The transcript repeats the same sentence several times, a common transcription failure.",
		})
	}

	conf = round3(math.Min(math.Max(conf, 0), 1))
	if conf < lowConfidenceCutoff {
		flags = append(flags, Flag{
			Name:     FlagLowConfidence,
			Severity: SeverityWarning,
			Message:  "This transcript may be inaccurate; please review it.",
		})
	}
	return Assessment{Confidence: conf, Flags: flags}
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
