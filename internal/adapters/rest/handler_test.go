package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/persona/internal/adapters/sqlite"
	"github.com/ewilliams-labs/persona/internal/core/domain"
	"github.com/ewilliams-labs/persona/internal/core/engine"
	"github.com/ewilliams-labs/persona/internal/core/ports"
	"github.com/ewilliams-labs/persona/internal/core/services"
)

// --- Mocks ---

// The handler depends on the concrete *services.Recommender, so the tests
// build a real one over an in-memory SQLite store and stub the catalog and
// intent compiler.

type mockCatalog struct {
	mu     sync.Mutex
	tracks []domain.Track
	err    error
	calls  []ports.CandidateQuery
}

func (m *mockCatalog) Candidates(ctx context.Context, q ports.CandidateQuery) ([]domain.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, q)
	if m.err != nil {
		return nil, m.err
	}
	if q.Offset > 0 {
		return nil, nil
	}
	return m.tracks, nil
}

type mockIntentCompiler struct {
	intent domain.Intent
	err    error
}

func (m *mockIntentCompiler) AnalyzeIntent(ctx context.Context, message string) (domain.Intent, error) {
	if m.err != nil {
		return domain.Intent{}, m.err
	}
	return m.intent, nil
}

func mkTrack(id string, dance, energy, valence, tempo float64) domain.Track {
	return domain.Track{
		ID:     id,
		Title:  "Song " + id,
		Artist: "Artist",
		Features: domain.AudioFeatures{
			Danceability:     dance,
			Energy:           energy,
			Key:              5,
			Loudness:         -8,
			Mode:             1,
			Speechiness:      0.04,
			Acousticness:     0.25,
			Instrumentalness: 0.05,
			Liveness:         0.1,
			Valence:          valence,
			Tempo:            tempo,
		},
		FeatureSource: domain.SourceCatalog,
	}
}

func defaultCatalog() *mockCatalog {
	return &mockCatalog{tracks: []domain.Track{
		mkTrack("a", 0.7, 0.6, 0.8, 120),
		mkTrack("b", 0.3, 0.4, 0.2, 90),
		mkTrack("c", 0.5, 0.9, 0.5, 140),
	}}
}

func newTestHandler(t *testing.T, catalog *mockCatalog, intents ports.IntentCompiler) *Handler {
	t.Helper()
	store, err := sqlite.NewAdapter(":memory:")
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	eng, err := engine.New(engine.DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	svc := services.NewRecommender(eng, services.Deps{
		Catalog:  catalog,
		States:   store,
		Feedback: store,
		Tracks:   store,
		Intents:  intents,
	}, services.Options{DefaultQuery: "popular", BatchSize: 3, CacheTTL: time.Hour, MaxRanked: 10}, zerolog.Nop())

	return NewHandler(svc, zerolog.Nop())
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func expect(t *testing.T, rec *httptest.ResponseRecorder, status int, bodySubstr string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("Status Code: got %d, want %d, body: %s", rec.Code, status, strings.TrimSpace(rec.Body.String()))
	}
	if bodySubstr != "" && !strings.Contains(rec.Body.String(), bodySubstr) {
		t.Fatalf("Response Body: got %q, want substring %q", rec.Body.String(), bodySubstr)
	}
}

// --- Tests ---

func TestHandler_HealthCheck(t *testing.T) {
	h := newTestHandler(t, defaultCatalog(), nil)
	rec := do(h, http.MethodGet, "/health", "")
	expect(t, rec, http.StatusOK, `"status":"ok"`)
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
}

func TestHandler_Next(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		catalogErr     error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "Success: returns a scored track",
			path:           "/users/u1/next",
			expectedStatus: http.StatusOK,
			expectedBody:   `"score":`,
		},
		{
			name:           "Server Error: catalog fails",
			path:           "/users/u1/next?q=jazz",
			catalogErr:     errors.New("catalog down"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"code":"INTERNAL"`,
		},
		{
			name:           "Bad Request: blank user id",
			path:           "/users/%20/next",
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"code":"EMPTY_USER_ID"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := defaultCatalog()
			catalog.err = tt.catalogErr
			h := newTestHandler(t, catalog, nil)

			expect(t, do(h, http.MethodGet, tt.path, ""), tt.expectedStatus, tt.expectedBody)
		})
	}
}

func TestHandler_FeedbackFlow(t *testing.T) {
	h := newTestHandler(t, defaultCatalog(), nil)

	// Serving a batch caches the tracks feedback refers to.
	expect(t, do(h, http.MethodGet, "/users/u1/next", ""), http.StatusOK, `"track":`)

	steps := []struct {
		name           string
		method         string
		path           string
		body           string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "like is accepted",
			method:         http.MethodPost,
			path:           "/users/u1/feedback",
			body:           `{"track_id":"a","label":"like"}`,
			expectedStatus: http.StatusCreated,
			expectedBody:   `"track_id":"a"`,
		},
		{
			name:           "second rating of the same track conflicts",
			method:         http.MethodPost,
			path:           "/users/u1/feedback",
			body:           `{"track_id":"a","label":"dislike"}`,
			expectedStatus: http.StatusConflict,
			expectedBody:   `"code":"DUPLICATE_FEEDBACK"`,
		},
		{
			name:           "unknown track",
			method:         http.MethodPost,
			path:           "/users/u1/feedback",
			body:           `{"track_id":"nope","label":"like"}`,
			expectedStatus: http.StatusNotFound,
			expectedBody:   `"code":"NOT_FOUND"`,
		},
		{
			name:           "invalid label",
			method:         http.MethodPost,
			path:           "/users/u1/feedback",
			body:           `{"track_id":"b","label":"meh"}`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"code":"INVALID_LABEL"`,
		},
		{
			name:           "missing track id",
			method:         http.MethodPost,
			path:           "/users/u1/feedback",
			body:           `{"label":"like"}`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"code":"EMPTY_TRACK_ID"`,
		},
		{
			name:           "malformed body",
			method:         http.MethodPost,
			path:           "/users/u1/feedback",
			body:           `{invalid-json`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Invalid request body",
		},
		{
			name:           "numeric dislike is accepted",
			method:         http.MethodPost,
			path:           "/users/u1/feedback",
			body:           `{"track_id":"b","label":0}`,
			expectedStatus: http.StatusCreated,
			expectedBody:   `"label":0`,
		},
		{
			name:           "skip",
			method:         http.MethodPost,
			path:           "/users/u1/skip",
			body:           `{"track_id":"c"}`,
			expectedStatus: http.StatusNoContent,
		},
		{
			name:           "skip without track id",
			method:         http.MethodPost,
			path:           "/users/u1/skip",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"code":"EMPTY_TRACK_ID"`,
		},
		{
			name:           "stats reflect every decision",
			method:         http.MethodGet,
			path:           "/users/u1/stats",
			expectedStatus: http.StatusOK,
			expectedBody:   `"likes":1,"dislikes":1,"skips":1,"total_feedback":2,"rated":3`,
		},
		{
			name:           "exhausted catalog",
			method:         http.MethodGet,
			path:           "/users/u1/next",
			expectedStatus: http.StatusNotFound,
			expectedBody:   `"code":"NO_CANDIDATES"`,
		},
		{
			name:           "history rejects a bad limit",
			method:         http.MethodGet,
			path:           "/users/u1/history?limit=ten",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, st := range steps {
		rec := do(h, st.method, st.path, st.body)
		if rec.Code != st.expectedStatus {
			t.Fatalf("%s: status got %d, want %d, body: %s", st.name, rec.Code, st.expectedStatus, rec.Body.String())
		}
		if st.expectedBody != "" && !strings.Contains(rec.Body.String(), st.expectedBody) {
			t.Fatalf("%s: body %q missing %q", st.name, rec.Body.String(), st.expectedBody)
		}
	}

	rec := do(h, http.MethodGet, "/users/u1/history?limit=10", "")
	expect(t, rec, http.StatusOK, "")
	var events []domain.FeedbackEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("history: got %d events, want 2", len(events))
	}
	got := map[string]domain.Label{}
	for _, ev := range events {
		got[ev.TrackID] = ev.Label
		if len(ev.Features) != domain.Dimensions {
			t.Errorf("event %s: features not recorded", ev.TrackID)
		}
	}
	if got["a"] != domain.Like || got["b"] != domain.Dislike {
		t.Fatalf("history labels: %+v", got)
	}
}

func TestHandler_ContentType(t *testing.T) {
	h := newTestHandler(t, defaultCatalog(), nil)
	for _, path := range []string{"/users/u1/feedback", "/users/u1/skip", "/users/u1/intent"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "text/plain")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnsupportedMediaType {
			t.Errorf("%s: status got %d, want 415", path, rec.Code)
		}
	}
}

func TestHandler_Recommendations(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		expectedStatus int
		expectedLen    int
	}{
		{name: "limited to k", query: "?k=2", expectedStatus: http.StatusOK, expectedLen: 2},
		{name: "default returns every candidate", query: "", expectedStatus: http.StatusOK, expectedLen: 3},
		{name: "non numeric k", query: "?k=abc", expectedStatus: http.StatusBadRequest},
		{name: "negative k", query: "?k=-1", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, defaultCatalog(), nil)
			rec := do(h, http.MethodGet, "/users/u1/recommendations"+tt.query, "")
			expect(t, rec, tt.expectedStatus, "")
			if tt.expectedStatus != http.StatusOK {
				return
			}

			var recs []services.Recommendation
			if err := json.Unmarshal(rec.Body.Bytes(), &recs); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(recs) != tt.expectedLen {
				t.Fatalf("recommendations: got %d, want %d", len(recs), tt.expectedLen)
			}
			for i := 1; i < len(recs); i++ {
				if recs[i].Score > recs[i-1].Score {
					t.Fatalf("not sorted by score: %v", recs)
				}
			}
		})
	}
}

func TestHandler_Explain(t *testing.T) {
	h := newTestHandler(t, defaultCatalog(), nil)
	expect(t, do(h, http.MethodGet, "/users/u1/next", ""), http.StatusOK, "")

	expect(t, do(h, http.MethodGet, "/users/u1/tracks/b/score", ""), http.StatusOK, `"id":"b"`)
	expect(t, do(h, http.MethodGet, "/users/u1/tracks/missing/score", ""), http.StatusNotFound, `"code":"NOT_FOUND"`)
}

func TestHandler_Intent(t *testing.T) {
	tests := []struct {
		name           string
		compiler       ports.IntentCompiler
		body           string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "Unavailable: no compiler configured",
			compiler:       nil,
			body:           `{"message":"rainy day folk"}`,
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   `"code":"INTENT_UNAVAILABLE"`,
		},
		{
			name:           "Unavailable: compiler fails",
			compiler:       &mockIntentCompiler{err: errors.New("connection refused")},
			body:           `{"message":"rainy day folk"}`,
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "connection refused",
		},
		{
			name:           "Bad Request: empty message",
			compiler:       &mockIntentCompiler{},
			body:           `{"message":"  "}`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "message is required",
		},
		{
			name: "Success: returns intent and recommendation",
			compiler: &mockIntentCompiler{intent: domain.Intent{
				Artists:     []string{"Bon Iver"},
				Genres:      []string{"folk"},
				Mood:        "rainy",
				Explanation: "quiet folk",
			}},
			body:           `{"message":"rainy day folk like Bon Iver"}`,
			expectedStatus: http.StatusOK,
			expectedBody:   `"query":"genre:folk rainy"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := defaultCatalog()
			h := newTestHandler(t, catalog, tt.compiler)
			expect(t, do(h, http.MethodPost, "/users/u1/intent", tt.body), tt.expectedStatus, tt.expectedBody)

			if tt.expectedStatus == http.StatusOK {
				if len(catalog.calls) == 0 || catalog.calls[0].Artist != "Bon Iver" {
					t.Fatalf("catalog should be queried with the seed artist: %+v", catalog.calls)
				}
			}
		})
	}
}

func TestHandler_RequestIDAndMetrics(t *testing.T) {
	h := newTestHandler(t, defaultCatalog(), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "req-123" {
		t.Fatalf("request id: got %q, want req-123", got)
	}

	rec = do(h, http.MethodGet, "/health", "")
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}

	rec = do(h, http.MethodGet, "/metrics", "")
	expect(t, rec, http.StatusOK, `persona_http_request_duration_seconds_count{method="GET",route="/health",status="200"}`)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"empty user", domain.ErrEmptyUserID, http.StatusBadRequest, errCodeEmptyUserID},
		{"invalid label", domain.ErrInvalidLabel, http.StatusBadRequest, errCodeInvalidLabel},
		{"duplicate", fmt.Errorf("wrapped: %w", &domain.DuplicateFeedbackError{TrackID: "x"}), http.StatusConflict, errCodeDuplicateFeedback},
		{"no candidates", domain.ErrNoCandidates, http.StatusNotFound, errCodeNoCandidates},
		{"not found", fmt.Errorf("service: failed to load track x: %w", domain.ErrNotFound), http.StatusNotFound, errCodeNotFound},
		{"intent", services.ErrIntentUnavailable, http.StatusServiceUnavailable, errCodeIntentUnavailable},
		{"dimension", &domain.DimensionMismatchError{Want: 11, Got: 3}, http.StatusInternalServerError, errCodeDimensionMismatch},
		{"invalid feature", domain.ErrInvalidFeature, http.StatusInternalServerError, errCodeInvalidFeature},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, errCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := classify(tt.err)
			if status != tt.wantStatus || code != tt.wantCode {
				t.Fatalf("classify: got (%d, %s), want (%d, %s)", status, code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}
