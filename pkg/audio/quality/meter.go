package quality

import (
	"math"
	"sync"
)

// Level is the measurement of one completed analysis window.
type Level struct {
	// Index is the zero-based window number.
	Index int `json:"index"`
	// RMS is the window's root-mean-square amplitude.
	RMS float64 `json:"rms"`
	// Silent reports whether RMS fell below the silence threshold.
	Silent bool `json:"silent"`
	// EndMs is the clip position at which the window ends.
	EndMs float64 `json:"end_ms"`
}

// Meter accumulates samples into fixed analysis windows. It backs both the
// batch analyser and the live level meter, so both report identical numbers
// for identical audio. A Meter is safe for concurrent use.
type Meter struct {
	mu sync.Mutex

	sampleRate int
	windowSize int
	th         Thresholds

	// current partial window
	sumSq float64
	n     int

	windows   int
	silent    int
	energySum float64
	samples   int64
}

// NewMeter returns a meter for mono audio at sampleRate. The thresholds are
// normalised before use.
func NewMeter(sampleRate int, th Thresholds) *Meter {
	th, _ = th.Normalize()
	size := int(math.Round(float64(sampleRate) * th.WindowMs / 1000))
	if size < 1 {
		size = 1
	}
	return &Meter{sampleRate: sampleRate, windowSize: size, th: th}
}

// WindowSize returns the number of samples per analysis window.
func (m *Meter) WindowSize() int { return m.windowSize }

// Write feeds normalised mono samples into the meter and returns a Level for
// every window completed by this call.
func (m *Meter) Write(samples []float64) []Level {
	m.mu.Lock()
	defer m.mu.Unlock()

	var levels []Level
	for _, s := range samples {
		m.sumSq += s * s
		m.n++
		m.samples++
		if m.n == m.windowSize {
			levels = append(levels, m.closeWindow())
		}
	}
	return levels
}

// closeWindow must be called with mu held and n > 0.
func (m *Meter) closeWindow() Level {
	rms := math.Sqrt(m.sumSq / float64(m.n))
	lvl := Level{
		Index:  m.windows,
		RMS:    rms,
		Silent: rms < m.th.SilenceThreshold,
		EndMs:  m.positionMs(),
	}
	m.windows++
	m.energySum += rms
	if lvl.Silent {
		m.silent++
	}
	m.sumSq, m.n = 0, 0
	return lvl
}

func (m *Meter) positionMs() float64 {
	if m.sampleRate <= 0 {
		return 0
	}
	return float64(m.samples) * 1000 / float64(m.sampleRate)
}

// Metrics summarises everything written so far. A trailing partial window is
// counted as a full window. Metrics does not consume the partial window, so
// it can be called repeatedly while audio keeps arriving.
func (m *Meter) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	windows, silent, energy := m.windows, m.silent, m.energySum
	if m.n > 0 {
		rms := math.Sqrt(m.sumSq / float64(m.n))
		windows++
		energy += rms
		if rms < m.th.SilenceThreshold {
			silent++
		}
	}

	var ratio, avg float64
	if windows > 0 {
		ratio = float64(silent) / float64(windows)
		avg = energy / float64(windows)
	}
	return evaluate(m.positionMs(), ratio, avg, m.th)
}
