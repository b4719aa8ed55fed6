// Package quality computes acoustic quality metrics for a recorded answer and
// turns them into an accept-or-review decision.
//
// The analyser splits a decoded clip into fixed windows, measures the RMS
// amplitude of each, and derives the clip duration, the fraction of silent
// windows, and the mean window energy. [Analyze] never returns an error: an
// unreadable blob is reported as an invalid [Metrics] value carrying a single
// explanatory warning, so the save flow can always offer "save anyway".
package quality

import (
	"fmt"
	"math"
)

// Built-in threshold defaults.
const (
	DefaultMinDurationMs       = 1000
	DefaultMaxDurationMs       = 600_000
	DefaultSilenceThreshold    = 0.01
	DefaultLowEnergyThreshold  = 0.02
	DefaultSilenceRatioWarning = 0.6
	DefaultWindowMs            = 50
)

// Thresholds configures a single analysis. Amplitudes are on the normalised
// [0, 1] scale of [audio.Clip] samples.
type Thresholds struct {
	// MinDurationMs is the shortest acceptable recording.
	MinDurationMs float64 `json:"min_duration_ms"`
	// MaxDurationMs is the longest acceptable recording.
	MaxDurationMs float64 `json:"max_duration_ms"`
	// SilenceThreshold is the window RMS below which a window counts as silent.
	SilenceThreshold float64 `json:"silence_threshold"`
	// LowEnergyThreshold is the mean window RMS below which the whole clip is
	// considered too quiet.
	LowEnergyThreshold float64 `json:"low_energy_threshold"`
	// SilenceRatioWarning is the fraction of silent windows above which the
	// clip is rejected as mostly silence.
	SilenceRatioWarning float64 `json:"silence_ratio_warning"`
	// WindowMs is the analysis window length.
	WindowMs float64 `json:"window_ms"`
}

// DefaultThresholds returns the built-in thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinDurationMs:       DefaultMinDurationMs,
		MaxDurationMs:       DefaultMaxDurationMs,
		SilenceThreshold:    DefaultSilenceThreshold,
		LowEnergyThreshold:  DefaultLowEnergyThreshold,
		SilenceRatioWarning: DefaultSilenceRatioWarning,
		WindowMs:            DefaultWindowMs,
	}
}

// Normalize returns a copy of t that is safe to analyse with, together with a
// description of every correction applied. NaN, infinite and negative values
// fall back to the defaults, amplitude and ratio fields are clamped to [0, 1],
// and a maximum below the minimum is raised to the minimum.
func (t Thresholds) Normalize() (Thresholds, []string) {
	d := DefaultThresholds()
	var fixes []string

	fallback := func(name string, v *float64, def float64) {
		if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
			fixes = append(fixes, fmt.Sprintf("%s=%v replaced by default %v", name, *v, def))
			*v = def
		}
	}
	unit := func(name string, v *float64) {
		if *v > 1 {
			fixes = append(fixes, fmt.Sprintf("%s=%v clamped to 1", name, *v))
			*v = 1
		}
	}

	fallback("min_duration_ms", &t.MinDurationMs, d.MinDurationMs)
	fallback("max_duration_ms", &t.MaxDurationMs, d.MaxDurationMs)
	fallback("silence_threshold", &t.SilenceThreshold, d.SilenceThreshold)
	fallback("low_energy_threshold", &t.LowEnergyThreshold, d.LowEnergyThreshold)
	fallback("silence_ratio_warning", &t.SilenceRatioWarning, d.SilenceRatioWarning)
	fallback("window_ms", &t.WindowMs, d.WindowMs)

	unit("silence_threshold", &t.SilenceThreshold)
	unit("low_energy_threshold", &t.LowEnergyThreshold)
	unit("silence_ratio_warning", &t.SilenceRatioWarning)

	if t.WindowMs == 0 {
		fixes = append(fixes, fmt.Sprintf("window_ms=0 replaced by default %v", d.WindowMs))
		t.WindowMs = d.WindowMs
	}
	if t.MaxDurationMs < t.MinDurationMs {
		fixes = append(fixes, fmt.Sprintf("max_duration_ms=%v raised to min_duration_ms=%v", t.MaxDurationMs, t.MinDurationMs))
		t.MaxDurationMs = t.MinDurationMs
	}
	return t, fixes
}

// resolve turns the optional caller thresholds into a normalised value.
func resolve(t *Thresholds) Thresholds {
	if t == nil {
		return DefaultThresholds()
	}
	n, _ := t.Normalize()
	return n
}
