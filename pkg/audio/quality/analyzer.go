package quality

import (
	"errors"
	"fmt"
	"math"

	"github.com/MrWong99/memoira/pkg/audio"
)

// IssueKind classifies a quality warning.
type IssueKind string

// Warning kinds in the order they are evaluated.
const (
	IssueTooShort   IssueKind = "too_short"
	IssueTooLong    IssueKind = "too_long"
	IssueSilence    IssueKind = "excessive_silence"
	IssueLowEnergy  IssueKind = "low_energy"
	IssueUnreadable IssueKind = "unreadable"
)

// Issue is a single warning with its machine-readable kind.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Message string    `json:"message"`
}

// Metrics is the result of analysing one recording.
type Metrics struct {
	DurationMs    float64  `json:"duration_ms"`
	SilenceRatio  float64  `json:"silence_ratio"`
	AverageEnergy float64  `json:"average_energy"`
	IsValid       bool     `json:"is_valid"`
	Warnings      []string `json:"warnings"`
	Issues        []Issue  `json:"issues"`
}

// Has reports whether the metrics carry an issue of the given kind.
func (m Metrics) Has(kind IssueKind) bool {
	for _, is := range m.Issues {
		if is.Kind == kind {
			return true
		}
	}
	return false
}

// Analyze decodes blob and measures it against th. A nil th selects
// [DefaultThresholds]. Analyze is pure: the same blob and thresholds always
// produce the same metrics.
func Analyze(blob []byte, th *Thresholds) Metrics {
	t := resolve(th)
	clip, err := audio.Decode(blob)
	if err != nil {
		return Unreadable(err)
	}
	return AnalyzeClip(clip, t)
}

// AnalyzeClip measures an already decoded clip.
func AnalyzeClip(clip audio.Clip, th Thresholds) Metrics {
	if clip.SampleRate <= 0 || len(clip.Samples) == 0 {
		return Unreadable(audio.ErrNoSamples)
	}
	m := NewMeter(clip.SampleRate, th)
	m.Write(clip.Samples)
	return m.Metrics()
}

// Unreadable returns the metrics reported for audio that could not be
// decoded: zero duration, invalid, and exactly one warning naming the problem.
func Unreadable(err error) Metrics {
	msg := fmt.Sprintf("Audio could not be read (%s). Please try recording again.", decodeReason(err))
	return Metrics{
		Warnings: []string{msg},
		Issues:   []Issue{{Kind: IssueUnreadable, Message: msg}},
	}
}

func decodeReason(err error) string {
	switch {
	case errors.Is(err, audio.ErrEmptyAudio):
		return "the recording is empty"
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return "unsupported audio format"
	case errors.Is(err, audio.ErrNoSamples):
		return "the recording contains no audio samples"
	case errors.Is(err, audio.ErrMalformed):
		return "the file is damaged"
	default:
		return "unknown decoding error"
	}
}

// evaluate applies the threshold checks in their fixed order.
func evaluate(durationMs, silenceRatio, energy float64, th Thresholds) Metrics {
	m := Metrics{
		DurationMs:    finite(math.Max(durationMs, 0)),
		SilenceRatio:  finite(math.Min(math.Max(silenceRatio, 0), 1)),
		AverageEnergy: finite(math.Max(energy, 0)),
		IsValid:       true,
	}

	add := func(kind IssueKind, msg string, invalidates bool) {
		m.Issues = append(m.Issues, Issue{Kind: kind, Message: msg})
		m.Warnings = append(m.Warnings, msg)
		if invalidates {
			m.IsValid = false
		}
	}

	if m.DurationMs < th.MinDurationMs {
		add(IssueTooShort, fmt.Sprintf("Recording is too short (%s); please record at least %s.",
			humanDuration(m.DurationMs), humanDuration(th.MinDurationMs)), true)
	}
	if m.DurationMs > th.MaxDurationMs {
		add(IssueTooLong, fmt.Sprintf("Recording is too long (%s); the maximum is %s.",
			humanDuration(m.DurationMs), humanDuration(th.MaxDurationMs)), true)
	}
	if m.SilenceRatio > th.SilenceRatioWarning {
		add(IssueSilence, fmt.Sprintf("Recording is mostly silence (%.0f%% silent); please check your microphone and speak throughout.",
			m.SilenceRatio*100), true)
	}
	if m.AverageEnergy < th.LowEnergyThreshold {
		add(IssueLowEnergy, "Recording volume is very low; please move closer to the microphone or speak louder.", false)
	}
	return m
}

func humanDuration(ms float64) string {
	if ms < 60_000 {
		return fmt.Sprintf("%.1fs", ms/1000)
	}
	return fmt.Sprintf("%.1f min", ms/60_000)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
