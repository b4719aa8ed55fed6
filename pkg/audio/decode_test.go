package audio_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/memoira/pkg/audio"
)

// rawWAV builds a RIFF/WAVE file with an arbitrary fmt chunk so tests can
// exercise encodings EncodeWAV does not produce.
func rawWAV(format, channels, bits uint16, rate uint32, data []byte) []byte {
	blockAlign := channels * bits / 8
	buf := make([]byte, 44+len(data))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(data)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], format)
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], rate)
	binary.LittleEndian.PutUint32(buf[28:32], rate*uint32(blockAlign))
	binary.LittleEndian.PutUint16(buf[32:34], blockAlign)
	binary.LittleEndian.PutUint16(buf[34:36], bits)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(data)))
	copy(buf[44:], data)
	return buf
}

func TestDecode_RoundTrip16BitMono(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{0, 16384, -16384, 8192})
	clip, err := audio.Decode(audio.EncodeWAV(pcm, 16000, 1))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if clip.SampleRate != 16000 {
		t.Errorf("SampleRate: got %d, want 16000", clip.SampleRate)
	}
	want := []float64{0, 0.5, -0.5, 0.25}
	if len(clip.Samples) != len(want) {
		t.Fatalf("samples: got %d, want %d", len(clip.Samples), len(want))
	}
	for i := range want {
		if !approx(clip.Samples[i], want[i]) {
			t.Errorf("sample %d: got %f, want %f", i, clip.Samples[i], want[i])
		}
	}
}

func TestDecode_StereoAveraged(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{16384, 0, 0, -16384})
	clip, err := audio.Decode(audio.EncodeWAV(pcm, 8000, 2))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if clip.SourceChannels != 2 {
		t.Errorf("SourceChannels: got %d, want 2", clip.SourceChannels)
	}
	if len(clip.Samples) != 2 || !approx(clip.Samples[0], 0.25) || !approx(clip.Samples[1], -0.25) {
		t.Errorf("samples: got %v, want [0.25 -0.25]", clip.Samples)
	}
}

func TestDecode_8Bit(t *testing.T) {
	t.Parallel()
	clip, err := audio.Decode(rawWAV(1, 1, 8, 8000, []byte{128, 192, 64}))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []float64{0, 0.5, -0.5}
	for i := range want {
		if !approx(clip.Samples[i], want[i]) {
			t.Errorf("sample %d: got %f, want %f", i, clip.Samples[i], want[i])
		}
	}
}

func TestDecode_OddSizedDataChunk(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		bits   uint16
		frames int
	}{
		{name: "8-bit odd", bits: 8, frames: 8001},
		{name: "8-bit past read buffer", bits: 8, frames: 12289},
		{name: "24-bit odd", bits: 24, frames: 8001},
		{name: "8-bit three frames", bits: 8, frames: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data := make([]byte, tt.frames*int(tt.bits/8))
			if tt.bits == 8 {
				for i := range data {
					data[i] = 128
				}
			}
			clip, err := audio.Decode(rawWAV(1, 1, tt.bits, 8000, data))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if len(clip.Samples) != tt.frames {
				t.Errorf("samples: got %d, want %d", len(clip.Samples), tt.frames)
			}
			if want := float64(tt.frames) / 8000 * 1000; !approx(clip.DurationMs(), want) {
				t.Errorf("DurationMs: got %f, want %f", clip.DurationMs(), want)
			}
		})
	}
}

func TestDecode_PadByteIsNotASample(t *testing.T) {
	t.Parallel()
	blob := rawWAV(1, 1, 8, 8000, []byte{128, 192, 64})
	blob = append(blob, 0)
	binary.LittleEndian.PutUint32(blob[4:8], uint32(len(blob)-8))

	clip, err := audio.Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(clip.Samples) != 3 {
		t.Fatalf("samples: got %v, want 3 samples", clip.Samples)
	}
}

func TestDecode_24BitSigned(t *testing.T) {
	t.Parallel()
	// 0x400000 = +0.5, 0xC00000 = -0.5
	clip, err := audio.Decode(rawWAV(1, 1, 24, 8000, []byte{0, 0, 0x40, 0, 0, 0xC0, 0, 0, 0}))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []float64{0.5, -0.5, 0}
	if len(clip.Samples) != len(want) {
		t.Fatalf("samples: got %v, want %v", clip.Samples, want)
	}
	for i := range want {
		if !approx(clip.Samples[i], want[i]) {
			t.Errorf("sample %d: got %f, want %f", i, clip.Samples[i], want[i])
		}
	}
}

func TestDecode_Duration(t *testing.T) {
	t.Parallel()
	pcm := make([]byte, 16000*2) // 1 s at 16 kHz
	clip, err := audio.Decode(audio.EncodeWAV(pcm, 16000, 1))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := clip.DurationMs(); !approx(got, 1000) {
		t.Errorf("DurationMs: got %f, want 1000", got)
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		blob []byte
		want error
	}{
		{name: "empty", blob: nil, want: audio.ErrEmptyAudio},
		{name: "ogg", blob: []byte("OggS\x00\x02rest-of-page"), want: audio.ErrUnsupportedFormat},
		{name: "webm", blob: []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01, 0x02}, want: audio.ErrUnsupportedFormat},
		{name: "garbage", blob: []byte("definitely not audio"), want: audio.ErrUnsupportedFormat},
		{name: "float wav", blob: rawWAV(3, 1, 32, 16000, make([]byte, 8)), want: audio.ErrUnsupportedFormat},
		{name: "six channels", blob: rawWAV(1, 6, 16, 16000, make([]byte, 24)), want: audio.ErrUnsupportedFormat},
		{name: "truncated header", blob: []byte("RIFF\x04\x00\x00\x00WAVE"), want: audio.ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := audio.Decode(tt.blob)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got err=%v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecode_HeaderOnly(t *testing.T) {
	t.Parallel()
	_, err := audio.Decode(audio.EncodeWAV(nil, 16000, 1))
	if err == nil {
		t.Fatal("expected error for WAV without samples")
	}
	if !errors.Is(err, audio.ErrNoSamples) && !errors.Is(err, audio.ErrMalformed) {
		t.Fatalf("got err=%v, want ErrNoSamples or ErrMalformed", err)
	}
}

func TestDecodePCM16(t *testing.T) {
	t.Parallel()
	clip, err := audio.DecodePCM16(samplesToBytes([]int16{16384, 16384}), 48000, 2)
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	if len(clip.Samples) != 1 || !approx(clip.Samples[0], 0.5) {
		t.Errorf("samples: got %v, want [0.5]", clip.Samples)
	}
	if _, err := audio.DecodePCM16(nil, 48000, 1); !errors.Is(err, audio.ErrEmptyAudio) {
		t.Errorf("empty: got err=%v, want ErrEmptyAudio", err)
	}
	if _, err := audio.DecodePCM16([]byte{1, 2}, 0, 1); !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Errorf("zero rate: got err=%v, want ErrUnsupportedFormat", err)
	}
}
