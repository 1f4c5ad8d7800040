package rest

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
)

type intentRequest struct {
	Message string `json:"message"`
}

// Next handles GET /users/{userID}/next?q=
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Next(r.Context(), chi.URLParam(r, "userID"), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Recommendations handles GET /users/{userID}/recommendations?q=&k=
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	k, ok := intParam(w, r, "k")
	if !ok {
		return
	}
	recs, err := h.svc.Recommendations(r.Context(), chi.URLParam(r, "userID"), r.URL.Query().Get("q"), k)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// Explain handles GET /users/{userID}/tracks/{trackID}/score
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Explain(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "trackID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Intent handles POST /users/{userID}/intent
func (h *Handler) Intent(w http.ResponseWriter, r *http.Request) {
	if !isJSONContentType(r) {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	res, err := h.svc.IntentNext(r.Context(), chi.URLParam(r, "userID"), req.Message)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// intParam reads an optional non-negative integer query parameter. It writes
// the 400 itself when the value is malformed.
func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
