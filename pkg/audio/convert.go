package audio

import (
	"encoding/binary"
	"math"
)

// PCM16ToMono converts interleaved 16-bit signed little-endian PCM to mono
// float64 samples normalised to [-1.0, 1.0], averaging all channels per frame.
// A trailing partial frame is ignored. channels <= 1 is treated as mono.
func PCM16ToMono(pcm []byte, channels int) []float64 {
	if channels <= 1 {
		n := len(pcm) / 2
		out := make([]float64, n)
		for i := range n {
			out[i] = float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
		}
		return out
	}
	frames := len(pcm) / (2 * channels)
	out := make([]float64, frames)
	for i := range frames {
		var sum float64
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sum += float64(int16(binary.LittleEndian.Uint16(pcm[idx:]))) / 32768.0
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// MonoToPCM16 converts normalised float samples back to 16-bit little-endian
// PCM, clamping out-of-range values.
func MonoToPCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toInt16(s)))
	}
	return out
}

// Float32 returns the samples as float32, the representation expected by
// whisper.cpp.
func Float32(samples []float64) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s)
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. If the rates match or either is invalid, the input is
// returned unchanged.
func Resample(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float64, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// RMS returns the root-mean-square amplitude of samples, in the same
// normalised units as the samples. Returns 0 for an empty slice.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func toInt16(s float64) int16 {
	v := math.Round(s * 32767)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
