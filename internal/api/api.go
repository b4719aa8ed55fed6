// Package api exposes the recording service over HTTP.
//
// Routes are served by a gorilla/mux router wrapped in the observe
// middleware, so every request gets a trace span, a duration sample keyed by
// route template, and a completion log line. Request bodies are JSON except
// for audio uploads; every error response is a JSON object of the form
// {"error": "..."}.
//
//	POST /v1/recordings/analyze              raw audio body → metrics + decision
//	POST /v1/recordings                      multipart upload → save outcome
//	GET  /v1/recordings/live                 WebSocket live level meter
//	GET  /v1/recordings/{id}                 one recording
//	POST /v1/recordings/{id}/transcribe      speech-to-text + transcript pipeline
//	PUT  /v1/recordings/{id}/transcript      user edit
//	GET  /v1/stories/{storyID}/recordings    story recordings, oldest first
//	POST /v1/transcripts/format              stateless formatting and scoring
//	GET  /healthz, /readyz, /metrics
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/MrWong99/memoira/internal/health"
	"github.com/MrWong99/memoira/internal/observe"
	"github.com/MrWong99/memoira/internal/recording"
	"github.com/MrWong99/memoira/internal/resilience"
	"github.com/MrWong99/memoira/internal/store"
)

// DefaultMaxUploadBytes caps uploaded audio when no limit is configured.
const DefaultMaxUploadBytes = 256 << 20

// Option is a functional option for [New].
type Option func(*Server)

// WithHealth mounts /healthz and /readyz from h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics sets the metrics used by the request middleware and the live
// meter. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithMetricsHandler mounts h at /metrics, typically promhttp.Handler().
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMaxUploadBytes caps request bodies that carry audio.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithOriginPatterns allows cross-origin WebSocket connections from hosts
// matching the given patterns (e.g., "app.example.com", "*.example.com").
// Without any, only same-origin browsers may connect to the live meter.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = append(s.originPatterns, patterns...) }
}

// Server is the HTTP front end. It is safe for concurrent use.
type Server struct {
	svc            *recording.Service
	health         *health.Handler
	metrics        *observe.Metrics
	metricsHandler http.Handler
	maxUpload      int64
	originPatterns []string
	validate       *validator.Validate
	router         *mux.Router
}

// New builds the router for svc.
func New(svc *recording.Service, opts ...Option) *Server {
	s := &Server{
		svc:       svc,
		maxUpload: DefaultMaxUploadBytes,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// apiPrefix is the version prefix of every domain route.
const apiPrefix = "/v1"

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(observe.Middleware(s.metrics))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	if s.health != nil {
		s.health.Register(r)
	}
	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler).Methods(http.MethodGet)
	}

	// The versioned routes live on the root router so method mismatches reach
	// MethodNotAllowedHandler; a PathPrefix subrouter reports them as 404.
	// Fixed paths go before /recordings/{id} so they are not taken as IDs.
	r.HandleFunc(apiPrefix+"/recordings/analyze", s.handleAnalyze).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/recordings/live", s.handleLive).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/recordings", s.handleSave).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/recordings/{id}", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/recordings/{id}/transcribe", s.handleTranscribe).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/recordings/{id}/transcript", s.handleEditTranscript).Methods(http.MethodPut)
	r.HandleFunc(apiPrefix+"/stories/{storyID}/recordings", s.handleList).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/transcripts/format", s.handleFormat).Methods(http.MethodPost)
	return r
}

// errorResponse is the body of every error reply.
type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, details ...string) {
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

// writeServiceError maps a service error onto a status code. Internal causes
// are logged, not returned.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		observe.Logger(ctx).Error("api: request failed", "status", status, "err", err)
	}
	writeError(w, status, msg)
}

func classify(err error) (int, string) {
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "recording not found"
	case errors.Is(err, recording.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge, "request body too large"
	case errors.Is(err, recording.ErrNoTranscriber):
		return http.StatusServiceUnavailable, "transcription is not configured"
	case errors.Is(err, resilience.ErrAllFailed), errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusBadGateway, "transcription service unavailable, please try again later"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "transcription timed out"
	case errors.Is(err, context.Canceled):
		// Client went away; the status is never seen.
		return 499, "request cancelled"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
