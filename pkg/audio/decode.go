package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/youpy/go-riff"
	"github.com/youpy/go-wav"
)

// Sentinel errors returned by [Decode]. The quality analyser maps each to a
// user-facing warning.
var (
	// ErrEmptyAudio is returned for a zero-length blob.
	ErrEmptyAudio = errors.New("audio: empty input")

	// ErrUnsupportedFormat is returned when the container or sample encoding
	// is not one the decoder understands (e.g. WebM/Opus, IEEE float WAV).
	ErrUnsupportedFormat = errors.New("audio: unsupported format")

	// ErrNoSamples is returned when the container header is valid but carries
	// no sample data.
	ErrNoSamples = errors.New("audio: no samples")

	// ErrMalformed is returned when the container header cannot be parsed.
	ErrMalformed = errors.New("audio: malformed container")
)

const (
	wavFormatPCM   = 1
	maxWAVChannels = 2
)

// container identifies an encoded blob by its magic bytes.
type container string

const (
	containerWAV     container = "wav"
	containerOgg     container = "ogg"
	containerWebM    container = "webm"
	containerMP4     container = "mp4"
	containerMP3     container = "mp3"
	containerFLAC    container = "flac"
	containerUnknown container = "unknown"
)

func sniff(blob []byte) container {
	switch {
	case len(blob) >= 12 && string(blob[0:4]) == "RIFF" && string(blob[8:12]) == "WAVE":
		return containerWAV
	case len(blob) >= 4 && string(blob[0:4]) == "OggS":
		return containerOgg
	case len(blob) >= 4 && bytes.Equal(blob[0:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return containerWebM
	case len(blob) >= 8 && string(blob[4:8]) == "ftyp":
		return containerMP4
	case len(blob) >= 3 && (string(blob[0:3]) == "ID3" || (blob[0] == 0xFF && blob[1]&0xE0 == 0xE0)):
		return containerMP3
	case len(blob) >= 4 && string(blob[0:4]) == "fLaC":
		return containerFLAC
	default:
		return containerUnknown
	}
}

// Decode parses an encoded recording into a mono [Clip]. Only RIFF/WAVE with
// integer PCM samples (8, 16, 24 or 32 bit; mono or stereo) is decoded; other
// containers are recognised by magic bytes and rejected with
// [ErrUnsupportedFormat].
//
// Decode never panics on malformed input.
func Decode(blob []byte) (clip Clip, err error) {
	if len(blob) == 0 {
		return Clip{}, ErrEmptyAudio
	}
	switch c := sniff(blob); c {
	case containerWAV:
	case containerUnknown:
		return Clip{}, fmt.Errorf("%w: unrecognised container", ErrUnsupportedFormat)
	default:
		return Clip{}, fmt.Errorf("%w: %s container", ErrUnsupportedFormat, c)
	}

	defer func() {
		if r := recover(); r != nil {
			clip = Clip{}
			err = fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()
	return decodeWAV(blob)
}

func decodeWAV(blob []byte) (Clip, error) {
	r := wav.NewReader(bytes.NewReader(blob))
	f, err := r.Format()
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if f.AudioFormat != wavFormatPCM {
		return Clip{}, fmt.Errorf("%w: wav encoding %d", ErrUnsupportedFormat, f.AudioFormat)
	}
	if f.NumChannels == 0 || f.NumChannels > maxWAVChannels {
		return Clip{}, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, f.NumChannels)
	}
	if f.SampleRate == 0 {
		return Clip{}, fmt.Errorf("%w: zero sample rate", ErrMalformed)
	}
	var scale, offset float64
	switch f.BitsPerSample {
	case 8:
		// 8-bit WAV is unsigned with a midpoint of 128.
		scale, offset = 128, 128
	case 16, 24, 32:
		scale = float64(int64(1) << (f.BitsPerSample - 1))
	default:
		return Clip{}, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, f.BitsPerSample)
	}

	channels := int(f.NumChannels)
	width := int(f.BitsPerSample) / 8
	blockAlign := channels * width

	data, err := dataChunk(blob)
	if err != nil {
		return Clip{}, err
	}
	frames := len(data) / blockAlign
	if frames == 0 {
		return Clip{}, ErrNoSamples
	}

	out := make([]float64, frames)
	for i := range frames {
		frame := data[i*blockAlign : (i+1)*blockAlign]
		var sum float64
		for ch := range channels {
			v := sampleValue(frame[ch*width:(ch+1)*width], f.BitsPerSample)
			sum += (float64(v) - offset) / scale
		}
		out[i] = clamp(sum / float64(channels))
	}
	return Clip{Samples: out, SampleRate: int(f.SampleRate), SourceChannels: channels}, nil
}

// dataChunk returns the payload of the "data" chunk, limited to its declared
// size and to the bytes actually present. The RIFF pad byte after an
// odd-sized chunk is not part of the payload.
func dataChunk(blob []byte) ([]byte, error) {
	rc, err := riff.NewReader(bytes.NewReader(blob)).Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, ch := range rc.Chunks {
		if string(ch.ChunkID) != "data" {
			continue
		}
		sr, ok := ch.RIFFReader.(*io.SectionReader)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected chunk reader", ErrMalformed)
		}
		_, off, _ := sr.Outer()
		if off < 4 || off > int64(len(blob)) {
			return nil, fmt.Errorf("%w: data chunk out of range", ErrMalformed)
		}
		declared := int64(binary.LittleEndian.Uint32(blob[off-4 : off]))
		end := min(off+declared, int64(len(blob)))
		return blob[off:end], nil
	}
	return nil, fmt.Errorf("%w: data chunk not found", ErrMalformed)
}

// sampleValue decodes one little-endian PCM sample. 8-bit samples are
// unsigned; wider ones are two's complement.
func sampleValue(b []byte, bits uint16) int64 {
	var u uint64
	for i, c := range b {
		u |= uint64(c) << (8 * i)
	}
	if bits == 8 {
		return int64(u)
	}
	shift := 64 - uint(bits)
	return int64(u<<shift) >> shift
}

// DecodePCM16 wraps raw interleaved 16-bit little-endian PCM (as streamed by
// the live capture socket) in a [Clip].
func DecodePCM16(pcm []byte, sampleRate, channels int) (Clip, error) {
	if len(pcm) == 0 {
		return Clip{}, ErrEmptyAudio
	}
	if sampleRate <= 0 {
		return Clip{}, fmt.Errorf("%w: sample rate %d", ErrUnsupportedFormat, sampleRate)
	}
	if channels <= 0 {
		channels = 1
	}
	samples := PCM16ToMono(pcm, channels)
	if len(samples) == 0 {
		return Clip{}, ErrNoSamples
	}
	return Clip{Samples: samples, SampleRate: sampleRate, SourceChannels: channels}, nil
}

func clamp(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}
