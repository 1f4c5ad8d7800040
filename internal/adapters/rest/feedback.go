package rest

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/persona/internal/core/domain"
)

// feedbackRequest accepts the label as "like"/"dislike" or 1/0.
type feedbackRequest struct {
	TrackID string          `json:"track_id"`
	Label   json.RawMessage `json:"label"`
}

type skipRequest struct {
	TrackID string `json:"track_id"`
}

// Feedback handles POST /users/{userID}/feedback
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	if !isJSONContentType(r) {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TrackID == "" {
		writeErrorWithCode(w, http.StatusBadRequest, "track_id is required", errCodeEmptyTrackID)
		return
	}
	label, err := domain.ParseLabel(strings.Trim(string(req.Label), `"`))
	if err != nil {
		writeErrorWithCode(w, http.StatusBadRequest, "label must be like, dislike, 1 or 0", errCodeInvalidLabel)
		return
	}

	ev, err := h.svc.Feedback(r.Context(), chi.URLParam(r, "userID"), req.TrackID, label)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// Skip handles POST /users/{userID}/skip
func (h *Handler) Skip(w http.ResponseWriter, r *http.Request) {
	if !isJSONContentType(r) {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	var req skipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.svc.Skip(r.Context(), chi.URLParam(r, "userID"), req.TrackID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /users/{userID}/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// History handles GET /users/{userID}/history?limit=
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit")
	if !ok {
		return
	}
	events, err := h.svc.History(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if events == nil {
		events = []domain.FeedbackEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
