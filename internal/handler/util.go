package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/followchat/followchat/internal/llm"
	"github.com/followchat/followchat/internal/middleware"
	"github.com/followchat/followchat/internal/model"
	"github.com/followchat/followchat/pkg/logger"
)

const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	var upstream *llm.UpstreamError
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, model.ErrConfigMissing):
		return http.StatusBadRequest
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with the status of its kind. Server-side failures
// are logged and hidden from the client.
func respondError(w http.ResponseWriter, r *http.Request, log *logger.Logger, action string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("failed to "+action,
			zap.String("correlation_id", logger.CorrelationID(r.Context())),
			zap.Error(err),
		)
		writeError(w, status, "failed to "+action)
		return
	}
	writeError(w, status, err.Error())
}

// decodeJSON reads a required JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return decode(w, r, v, false)
}

// decodeOptionalJSON is decodeJSON for endpoints that accept an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return decode(w, r, v, true)
}

func decode(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		if optional {
			return nil
		}
		return fmt.Errorf("request body is required: %w", model.ErrInvalidInput)
	default:
		return fmt.Errorf("invalid request body: %w", model.ErrInvalidInput)
	}
}

// idParam parses a numeric chi URL parameter.
func idParam(r *http.Request, name string) (int64, error) {
	return middleware.ParseID(chi.URLParam(r, name))
}
