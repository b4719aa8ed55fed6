package api_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/memoira/internal/api"
	"github.com/MrWong99/memoira/internal/health"
	"github.com/MrWong99/memoira/internal/observe"
	"github.com/MrWong99/memoira/internal/recording"
	"github.com/MrWong99/memoira/internal/resilience"
	"github.com/MrWong99/memoira/internal/store/memstore"
	"github.com/MrWong99/memoira/pkg/audio"
	"github.com/MrWong99/memoira/pkg/provider/stt"
	"github.com/MrWong99/memoira/pkg/provider/stt/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func pcm(ms, rate int, amp float64) []byte {
	n := rate * ms / 1000
	buf := make([]byte, n*2)
	for i := range n {
		v := int16(amp * 32767 * math.Sin(2*math.Pi*220*float64(i)/float64(rate)))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func speech(ms int) []byte  { return audio.EncodeWAV(pcm(ms, 16000, 0.3), 16000, 1) }
func silence(ms int) []byte { return audio.EncodeWAV(pcm(ms, 16000, 0), 16000, 1) }

type env struct {
	srv *httptest.Server
	stt *mock.Provider
}

func newEnv(t *testing.T, opts ...api.Option) *env {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	p := &mock.Provider{Result: stt.Result{Text: "My grandmother grew up on a farm. she milked the cows every morning.", Model: "mock-1"}}
	svc := recording.New(memstore.NewRecords(nil), memstore.NewBlobs(),
		recording.WithSTT(p),
		recording.WithMetrics(m),
		recording.WithListDebounce(0),
	)
	srv := httptest.NewServer(api.New(svc, append([]api.Option{api.WithMetrics(m)}, opts...)...))
	t.Cleanup(srv.Close)
	return &env{srv: srv, stt: p}
}

func (e *env) do(t *testing.T, method, path, contentType string, body io.Reader) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("%s %s: decode body: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func (e *env) save(t *testing.T, fields map[string]string, wav []byte) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if wav != nil {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="audio"; filename="take.wav"`)
		h.Set("Content-Type", "audio/wav")
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		part.Write(wav)
	}
	mw.Close()
	return e.do(t, http.MethodPost, "/v1/recordings", mw.FormDataContentType(), &buf)
}

func (e *env) mustSave(t *testing.T, storyID string) string {
	t.Helper()
	status, body := e.save(t, map[string]string{"story_id": storyID, "prompt_id": "p-1"}, speech(3000))
	if status != http.StatusCreated {
		t.Fatalf("save status = %d, body = %v", status, body)
	}
	rec := body["recording"].(map[string]any)
	return rec["id"].(string)
}

func jsonBody(v any) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

// ── analyze ──────────────────────────────────────────────────────────────────

func TestAnalyze(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	status, body := e.do(t, http.MethodPost, "/v1/recordings/analyze", "audio/wav", bytes.NewReader(speech(3000)))
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	d := body["decision"].(map[string]any)
	if d["kind"] != "accept" {
		t.Errorf("decision = %v, want accept", d["kind"])
	}
	m := body["metrics"].(map[string]any)
	if m["duration_ms"].(float64) != 3000 {
		t.Errorf("duration_ms = %v, want 3000", m["duration_ms"])
	}
}

func TestAnalyze_GarbageIsUnreadableNotError(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	status, body := e.do(t, http.MethodPost, "/v1/recordings/analyze", "", strings.NewReader("not audio"))
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if m := body["metrics"].(map[string]any); m["is_valid"] != false {
		t.Errorf("is_valid = %v, want false", m["is_valid"])
	}
}

func TestAnalyze_EmptyBody(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	status, body := e.do(t, http.MethodPost, "/v1/recordings/analyze", "", nil)
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
	if body["error"] == "" {
		t.Error("error message is empty")
	}
}

func TestAnalyze_TooLarge(t *testing.T) {
	t.Parallel()
	e := newEnv(t, api.WithMaxUploadBytes(1024))

	status, _ := e.do(t, http.MethodPost, "/v1/recordings/analyze", "audio/wav", bytes.NewReader(speech(3000)))
	if status != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", status)
	}
}

// ── save ─────────────────────────────────────────────────────────────────────

func TestSave_CreatedAndFetchable(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	id := e.mustSave(t, "story-1")

	status, rec := e.do(t, http.MethodGet, "/v1/recordings/"+id, "", nil)
	if status != http.StatusOK {
		t.Fatalf("get status = %d", status)
	}
	if rec["story_id"] != "story-1" || rec["content_type"] != "audio/wav" {
		t.Errorf("recording = %v", rec)
	}
	if !strings.HasSuffix(rec["audio_key"].(string), ".wav") {
		t.Errorf("audio_key = %v, want .wav suffix", rec["audio_key"])
	}
}

func TestSave_NeedsReviewThenSaveAnyway(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	status, body := e.save(t, map[string]string{"story_id": "s"}, silence(3000))
	if status != http.StatusOK || body["outcome"] != "needs_review" {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if ws, _ := body["warnings"].([]any); len(ws) == 0 {
		t.Error("needs_review response has no warnings")
	}

	status, body = e.do(t, http.MethodGet, "/v1/stories/s/recordings", "", nil)
	if status != http.StatusOK || len(body["recordings"].([]any)) != 0 {
		t.Fatalf("list after review = %d %v, want empty", status, body)
	}

	status, body = e.save(t, map[string]string{"story_id": "s", "save_anyway": "true"}, silence(3000))
	if status != http.StatusCreated || body["outcome"] != "saved" {
		t.Fatalf("save anyway = %d %v", status, body)
	}
	rec := body["recording"].(map[string]any)
	if ws, _ := rec["quality_warnings"].([]any); len(ws) == 0 {
		t.Error("saved-anyway recording has no stored warnings")
	}
}

func TestSave_Validation(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	tests := []struct {
		name   string
		fields map[string]string
		wav    []byte
	}{
		{"missing story", map[string]string{}, speech(2000)},
		{"slash in story", map[string]string{"story_id": "a/b"}, speech(2000)},
		{"missing audio", map[string]string{"story_id": "s"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := e.save(t, tt.fields, tt.wav)
			if status != http.StatusBadRequest {
				t.Errorf("status = %d, body = %v, want 400", status, body)
			}
		})
	}
}

func TestSave_NotMultipart(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	status, _ := e.do(t, http.MethodPost, "/v1/recordings", "application/json", strings.NewReader("{}"))
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}

// ── read ─────────────────────────────────────────────────────────────────────

func TestGet_Unknown(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	status, body := e.do(t, http.MethodGet, "/v1/recordings/nope", "", nil)
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
	if body["error"] == nil {
		t.Error("missing error field")
	}
}

func TestList_OrderedByCreation(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	first := e.mustSave(t, "story")
	second := e.mustSave(t, "story")
	e.mustSave(t, "other")

	status, body := e.do(t, http.MethodGet, "/v1/stories/story/recordings", "", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	recs := body["recordings"].([]any)
	if len(recs) != 2 {
		t.Fatalf("got %d recordings, want 2", len(recs))
	}
	if recs[0].(map[string]any)["id"] != first || recs[1].(map[string]any)["id"] != second {
		t.Errorf("order = %v, %v; want %s, %s", recs[0].(map[string]any)["id"], recs[1].(map[string]any)["id"], first, second)
	}
}

// ── transcripts ──────────────────────────────────────────────────────────────

func TestTranscribe(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	id := e.mustSave(t, "s")

	status, rec := e.do(t, http.MethodPost, "/v1/recordings/"+id+"/transcribe", "", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, rec)
	}
	tr, ok := rec["transcript"].(map[string]any)
	if !ok {
		t.Fatalf("transcript missing: %v", rec)
	}
	if !strings.Contains(tr["plain"].(string), "milked the cows") {
		t.Errorf("plain = %q, want the provider text", tr["plain"])
	}
	if rec["model"] != "mock-1" {
		t.Errorf("model = %v, want mock-1", rec["model"])
	}
	if e.stt.CallCount() != 1 {
		t.Errorf("stt calls = %d, want 1", e.stt.CallCount())
	}
}

func TestTranscribe_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"providers down", resilience.ErrAllFailed, http.StatusBadGateway},
		{"breaker open", resilience.ErrCircuitOpen, http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newEnv(t)
			id := e.mustSave(t, "s")
			e.stt.TranscribeFunc = func(context.Context, stt.Request) (stt.Result, error) { return stt.Result{}, tt.err }

			status, body := e.do(t, http.MethodPost, "/v1/recordings/"+id+"/transcribe", "", nil)
			if status != tt.want {
				t.Errorf("status = %d, want %d", status, tt.want)
			}
			if msg, _ := body["error"].(string); strings.Contains(msg, "boom") {
				t.Errorf("internal cause leaked: %q", msg)
			}
		})
	}
}

func TestTranscribe_NoProvider(t *testing.T) {
	t.Parallel()
	svc := recording.New(memstore.NewRecords(nil), memstore.NewBlobs())
	srv := httptest.NewServer(api.New(svc))
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/v1/recordings/x/transcribe", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestEditTranscript(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	id := e.mustSave(t, "s")

	status, rec := e.do(t, http.MethodPut, "/v1/recordings/"+id+"/transcript", "application/json",
		jsonBody(map[string]string{"text": "we lived by the river. it flooded often."}))
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, rec)
	}
	if rec["edited"] != true {
		t.Errorf("edited = %v, want true", rec["edited"])
	}
	if e.stt.CallCount() != 0 {
		t.Error("edit must not call speech-to-text")
	}
}

func TestEditTranscript_Errors(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	id := e.mustSave(t, "s")

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown recording", "/v1/recordings/missing/transcript", `{"text":"hi"}`, http.StatusNotFound},
		{"missing text", "/v1/recordings/" + id + "/transcript", `{}`, http.StatusBadRequest},
		{"unknown field", "/v1/recordings/" + id + "/transcript", `{"text":"hi","x":1}`, http.StatusBadRequest},
		{"bad json", "/v1/recordings/" + id + "/transcript", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := e.do(t, http.MethodPut, tt.path, "application/json", strings.NewReader(tt.body))
			if status != tt.want {
				t.Errorf("status = %d, want %d", status, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	status, rec := e.do(t, http.MethodPost, "/v1/transcripts/format", "application/json",
		jsonBody(map[string]any{"text": "um hello there. this is grandpa.", "duration_ms": 4000, "silence_ratio": 0.1}))
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, rec)
	}
	if _, ok := rec["confidence"].(float64); !ok {
		t.Errorf("confidence missing: %v", rec)
	}
	if f, ok := rec["formatted"].(map[string]any); !ok || f["html"] == "" {
		t.Errorf("formatted = %v", rec["formatted"])
	}
}

func TestFormat_SilenceRatioOutOfRange(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	status, body := e.do(t, http.MethodPost, "/v1/transcripts/format", "application/json",
		jsonBody(map[string]any{"text": "hi", "silence_ratio": 2}))
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	details, _ := body["details"].([]any)
	if len(details) != 1 || !strings.Contains(details[0].(string), "SilenceRatio") {
		t.Errorf("details = %v", details)
	}
}

// ── routing ──────────────────────────────────────────────────────────────────

func TestRouting_JSONErrors(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	status, body := e.do(t, http.MethodGet, "/v1/nothing-here", "", nil)
	if status != http.StatusNotFound || body["error"] == nil {
		t.Errorf("404 = %d %v", status, body)
	}
	for _, tc := range []struct{ method, path string }{
		{http.MethodDelete, "/v1/recordings/abc"},
		{http.MethodGet, "/v1/transcripts/format"},
		{http.MethodPost, "/v1/stories/s1/recordings"},
	} {
		status, body = e.do(t, tc.method, tc.path, "", nil)
		if status != http.StatusMethodNotAllowed || body["error"] != "method not allowed" {
			t.Errorf("%s %s = %d %v, want 405", tc.method, tc.path, status, body)
		}
	}
}

func TestRouting_HealthAndMetrics(t *testing.T) {
	t.Parallel()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "# metrics\n")
	})
	e := newEnv(t,
		api.WithHealth(health.New(health.PingChecker("records", memstore.NewRecords(nil)))),
		api.WithMetricsHandler(metrics),
	)

	status, body := e.do(t, http.MethodGet, "/readyz", "", nil)
	if status != http.StatusOK || body["status"] != "ok" {
		t.Errorf("readyz = %d %v", status, body)
	}

	resp, err := http.Get(e.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(b) != "# metrics\n" {
		t.Errorf("metrics = %d %q", resp.StatusCode, b)
	}
}
