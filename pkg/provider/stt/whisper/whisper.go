// Package whisper provides whisper.cpp-backed STT providers.
//
// [Provider] talks to a running whisper-server binary, which exposes a REST
// API at POST /inference. [NativeProvider] links whisper.cpp directly through
// its CGO bindings and runs inference in-process.
//
// Both providers convert decodable WAV input to 16 kHz mono before
// transcription, which is the format whisper.cpp models are trained on.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	)
//	res, err := p.Transcribe(ctx, stt.Request{Audio: wavBytes})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/MrWong99/memoira/pkg/audio"
	"github.com/MrWong99/memoira/pkg/provider/stt"
)

const (
	// targetSampleRate is the sample rate whisper.cpp expects.
	targetSampleRate = 16000

	defaultTimeout = 2 * time.Minute

	// maxResponseBytes caps the size of an /inference response body.
	maxResponseBytes = 4 << 20
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small") and reported in results. When empty the server
// uses whichever model it was started with. This is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default BCP-47 language code sent to the server when
// a request carries none. Empty (the default) lets whisper.cpp auto-detect.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the HTTP client timeout for one inference request.
// Defaults to 2 minutes, enough for a ten-minute answer on a modest CPU.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithHTTPClient replaces the HTTP client entirely.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe uploads req.Audio to the /inference endpoint as
// multipart/form-data. Decodable WAV input is re-encoded as 16 kHz mono;
// other containers are forwarded unchanged for servers started with
// --convert.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	if len(req.Audio) == 0 {
		return stt.Result{}, fmt.Errorf("whisper: %w", stt.ErrEmptyAudio)
	}
	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	payload, filename, dur := req.Audio, uploadName(req.ContentType), time.Duration(0)
	if clip, err := prepare(req.Audio); err == nil {
		payload, filename, dur = audio.EncodeClip(clip), "audio.wav", clip.Duration()
	} else if !errors.Is(err, audio.ErrUnsupportedFormat) {
		return stt.Result{}, fmt.Errorf("whisper: %w", err)
	}

	text, detected, err := p.infer(ctx, payload, filename, lang)
	if err != nil {
		return stt.Result{}, err
	}
	if detected != "" {
		lang = detected
	}
	return stt.Result{Text: text, Language: lang, Model: p.model, Duration: dur}, nil
}

// infer POSTs one file to the whisper.cpp /inference endpoint and returns the
// transcribed text plus the detected language, when the server reports one.
func (p *Provider) infer(ctx context.Context, data []byte, filename, lang string) (string, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", "", fmt.Errorf("whisper: write audio data: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", "", fmt.Errorf("whisper: write response_format field: %w", err)
	}
	if lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return "", "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return "", "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := p.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text     string `json:"text"`
		Language string `json:"language"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	if result.Error != "" {
		return "", "", fmt.Errorf("whisper: server error: %s", result.Error)
	}
	return result.Text, result.Language, nil
}

// prepare decodes WAV input and converts it to 16 kHz mono.
func prepare(blob []byte) (audio.Clip, error) {
	clip, err := audio.Decode(blob)
	if err != nil {
		return audio.Clip{}, err
	}
	if clip.SampleRate != targetSampleRate {
		clip.Samples = audio.Resample(clip.Samples, clip.SampleRate, targetSampleRate)
		clip.SampleRate = targetSampleRate
	}
	return clip, nil
}

// uploadName picks a file name whose extension lets the server's converter
// recognise the container.
func uploadName(contentType string) string {
	switch contentType {
	case "audio/webm":
		return "audio.webm"
	case "audio/ogg", "audio/opus":
		return "audio.ogg"
	case "audio/mpeg", "audio/mp3":
		return "audio.mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "audio.m4a"
	case "audio/flac":
		return "audio.flac"
	default:
		return "audio.wav"
	}
}
