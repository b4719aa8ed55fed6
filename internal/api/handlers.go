package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/MrWong99/memoira/internal/observe"
	"github.com/MrWong99/memoira/internal/recording"
	"github.com/MrWong99/memoira/internal/transcript"
)

// multipartMemory is how much of a multipart upload is buffered in memory
// before spilling to temporary files.
const multipartMemory = 32 << 20

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUpload))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "request body must contain audio")
		return
	}
	m, d := s.svc.Analyze(r.Context(), body)
	writeJSON(w, http.StatusOK, analyzeResponse{Metrics: m, Decision: d})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeServiceError(r.Context(), w, err)
			return
		}
		writeError(w, http.StatusBadRequest, "expected a multipart/form-data upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	form := saveForm{
		StoryID:    r.FormValue("story_id"),
		PromptID:   r.FormValue("prompt_id"),
		SaveAnyway: parseBool(r.FormValue("save_anyway")),
	}
	if err := s.validate.Struct(form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form", formatValidationErrors(err)...)
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing audio file")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}

	out := s.svc.Save(r.Context(), recording.SaveRequest{
		StoryID:     form.StoryID,
		PromptID:    form.PromptID,
		Audio:       data,
		ContentType: contentType,
		SaveAnyway:  form.SaveAnyway,
	})
	switch o := out.(type) {
	case recording.Saved:
		rec := o.Recording
		writeJSON(w, http.StatusCreated, saveResponse{Outcome: o.Kind(), Recording: &rec})
	case recording.NeedsReview:
		m := o.Metrics
		writeJSON(w, http.StatusOK, saveResponse{Outcome: o.Kind(), Warnings: o.Warnings, Metrics: &m})
	case recording.Failed:
		status := http.StatusInternalServerError
		if errors.Is(o.Err, recording.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		writeError(w, status, o.Message)
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	recs, err := s.svc.List(r.Context(), mux.Vars(r)["storyID"])
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Recordings: recs})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.svc.Transcribe(r.Context(), id)
	if err != nil {
		observe.Logger(r.Context()).Warn("api: transcribe failed", "id", id, "err", err)
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleEditTranscript(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.svc.EditTranscript(r.Context(), mux.Vars(r)["id"], *req.Text)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleFormat(w http.ResponseWriter, r *http.Request) {
	var req formatRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.svc.FormatText(r.Context(), req.Text, transcript.AudioSummary{
		DurationMs:   req.DurationMs,
		SilenceRatio: req.SilenceRatio,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// decode reads a JSON body into v and validates it. On failure it writes the
// error response and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxUpload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeServiceError(r.Context(), w, err)
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", formatValidationErrors(err)...)
		return false
	}
	return true
}
