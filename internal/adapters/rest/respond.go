package rest

import (
	"errors"
	"mime"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/persona/internal/core/domain"
	"github.com/ewilliams-labs/persona/internal/core/services"
	"github.com/ewilliams-labs/persona/internal/logging"
)

const (
	errCodeBadRequest        = "BAD_REQUEST"
	errCodeEmptyUserID       = "EMPTY_USER_ID"
	errCodeEmptyTrackID      = "EMPTY_TRACK_ID"
	errCodeInvalidLabel      = "INVALID_LABEL"
	errCodeNotFound          = "NOT_FOUND"
	errCodeNoCandidates      = "NO_CANDIDATES"
	errCodeDuplicateFeedback = "DUPLICATE_FEEDBACK"
	errCodeDimensionMismatch = "DIMENSION_MISMATCH"
	errCodeInvalidFeature    = "INVALID_FEATURE"
	errCodeIntentUnavailable = "INTENT_UNAVAILABLE"
	errCodeInternal          = "INTERNAL"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeErrorWithCode(w, status, message, errCodeBadRequest)
}

func writeErrorWithCode(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeServiceError maps a service error onto a status and error code.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logging.Ctx(r.Context()).Error().Err(err).Str("code", code).Msg("request failed")
	}
	writeErrorWithCode(w, status, err.Error(), code)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrEmptyUserID):
		return http.StatusBadRequest, errCodeEmptyUserID
	case errors.Is(err, domain.ErrEmptyTrackID):
		return http.StatusBadRequest, errCodeEmptyTrackID
	case errors.Is(err, domain.ErrInvalidLabel):
		return http.StatusBadRequest, errCodeInvalidLabel
	case errors.Is(err, domain.ErrDuplicateFeedback):
		return http.StatusConflict, errCodeDuplicateFeedback
	case errors.Is(err, domain.ErrNoCandidates):
		return http.StatusNotFound, errCodeNoCandidates
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errCodeNotFound
	case errors.Is(err, services.ErrIntentUnavailable):
		return http.StatusServiceUnavailable, errCodeIntentUnavailable
	case errors.Is(err, domain.ErrDimensionMismatch):
		return http.StatusInternalServerError, errCodeDimensionMismatch
	case errors.Is(err, domain.ErrInvalidFeature):
		return http.StatusInternalServerError, errCodeInvalidFeature
	default:
		return http.StatusInternalServerError, errCodeInternal
	}
}

func isJSONContentType(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
