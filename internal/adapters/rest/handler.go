package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/persona/internal/core/services"
)

// Handler manages the HTTP interface for our application.
type Handler struct {
	svc    *services.Recommender // Dependency on the Core Service
	router chi.Router
	logger zerolog.Logger
}

// NewHandler initializes the HTTP adapter and sets up routes.
func NewHandler(svc *services.Recommender, logger zerolog.Logger) *Handler {
	h := &Handler{
		svc:    svc,
		router: chi.NewRouter(),
		logger: logger.With().Str("component", "rest").Logger(),
	}

	// Register Routes
	h.routes()

	return h
}

// ServeHTTP satisfies the http.Handler interface.
// It acts as a proxy, passing the request to our internal router.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// routes defines the mapping between URLs and methods.
func (h *Handler) routes() {
	r := h.router
	r.Use(requestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(h.observe)

	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/users/{userID}", func(r chi.Router) {
		// Recommendations
		r.Get("/next", h.Next)
		r.Get("/recommendations", h.Recommendations)
		r.Post("/intent", h.Intent)
		r.Get("/tracks/{trackID}/score", h.Explain)

		// Feedback
		r.Post("/feedback", h.Feedback)
		r.Post("/skip", h.Skip)
		r.Get("/stats", h.Stats)
		r.Get("/history", h.History)
	})
}

// HealthCheck is a simple endpoint to verify the API is running.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Persona is listening 🎶"})
}
