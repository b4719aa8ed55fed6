package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/MrWong99/memoira/internal/store"
	"github.com/MrWong99/memoira/pkg/audio/quality"
)

// saveForm holds the non-file fields of a multipart save request.
type saveForm struct {
	StoryID    string `validate:"required,max=128,excludesall=/\\"`
	PromptID   string `validate:"max=128"`
	SaveAnyway bool
}

// editRequest is the body of PUT /v1/recordings/{id}/transcript.
type editRequest struct {
	Text *string `json:"text" validate:"required"`
}

// formatRequest is the body of POST /v1/transcripts/format.
type formatRequest struct {
	Text         string  `json:"text"`
	DurationMs   float64 `json:"duration_ms" validate:"gte=0"`
	SilenceRatio float64 `json:"silence_ratio" validate:"gte=0,lte=1"`
}

type analyzeResponse struct {
	Metrics  quality.Metrics  `json:"metrics"`
	Decision quality.Decision `json:"decision"`
}

type saveResponse struct {
	Outcome   string           `json:"outcome"`
	Recording *store.Recording `json:"recording,omitempty"`
	Warnings  []string         `json:"warnings,omitempty"`
	Metrics   *quality.Metrics `json:"metrics,omitempty"`
}

type listResponse struct {
	Recordings []store.Recording `json:"recordings"`
}

// levelEvent reports one completed analysis window to a live meter client.
type levelEvent struct {
	Type     string  `json:"type"`
	Index    int     `json:"index"`
	RMS      float64 `json:"rms"`
	Silent   bool    `json:"silent"`
	EndMs    float64 `json:"end_ms"`
	WindowMs float64 `json:"window_ms"`
}

// summaryEvent closes a live session.
type summaryEvent struct {
	Type     string           `json:"type"`
	Metrics  quality.Metrics  `json:"metrics"`
	Decision quality.Decision `json:"decision"`
}

type errorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// liveCommand is a text frame sent by a live meter client.
type liveCommand struct {
	Type string `json:"type"`
}

// formatValidationErrors turns validator errors into one message per field.
func formatValidationErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("Field '%s' failed on the '%s' tag", fe.Field(), fe.Tag())
		if p := fe.Param(); p != "" {
			msg = fmt.Sprintf("%s (value: %s)", msg, p)
		}
		out = append(out, msg)
	}
	return out
}

// parseBool accepts the usual form spellings of a checkbox.
func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
