// Package main provides the BFF (Backend-for-Frontend) service for Persona.
// The BFF fronts the API for browser clients: it answers its own health and
// readiness checks and proxies everything else to the backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/persona/internal/config"
	"github.com/ewilliams-labs/persona/internal/logging"
)

func main() {
	cfg, err := config.LoadGateway()
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Init(cfg.Logging)
	logger := logging.Component("bff")

	backend, err := url.Parse(cfg.BFF.BackendURL)
	if err != nil {
		logger.Fatal().Err(err).Str("backend_url", cfg.BFF.BackendURL).Msg("invalid backend url")
	}

	logger.Info().Str("backend_url", backend.String()).Int("port", cfg.BFF.Port).Msg("🎭 Persona BFF starting")

	// Verify backend connectivity on startup
	if err := waitForBackend(backend, 30*time.Second); err != nil {
		logger.Warn().Err(err).Msg("backend not reachable, continuing anyway")
	} else {
		logger.Info().Msg("backend health check passed")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.BFF.Port),
		Handler:      newGateway(backend, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Msg("shutting down BFF")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}

// newGateway serves health and readiness locally and proxies the rest to backend.
func newGateway(backend *url.URL, logger zerolog.Logger) http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(backend)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn().Err(err).Str("path", r.URL.Path).Msg("backend request failed")
		writeStatus(w, http.StatusBadGateway, map[string]string{"status": "error", "error": "backend unavailable"})
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(forwardRequestID)

	r.Get("/health", healthHandler)
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		readyHandler(w, r, backend)
	})
	r.Get("/", rootHandler)
	r.Handle("/*", proxy)
	return r
}

// forwardRequestID passes chi's request id to the backend so both sides log
// the same id.
func forwardRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimiddleware.GetReqID(r.Context()); id != "" && r.Header.Get("X-Request-ID") == "" {
			r.Header.Set("X-Request-ID", id)
		}
		next.ServeHTTP(w, r)
	})
}

// healthHandler returns the BFF's own health status
func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, map[string]string{"status": "healthy", "service": "bff"})
}

// readyHandler checks if the BFF can reach the backend
func readyHandler(w http.ResponseWriter, r *http.Request, backend *url.URL) {
	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, backend.JoinPath("/health").String(), nil)
	if err != nil {
		writeStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "error": err.Error()})
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		writeStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "error": err.Error()})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		writeStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "backend_status": resp.StatusCode})
		return
	}

	writeStatus(w, http.StatusOK, map[string]string{"status": "ready", "backend": "connected"})
}

// rootHandler provides basic service info
func rootHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, map[string]string{
		"service":     "persona-bff",
		"version":     "0.1.0",
		"description": "Backend-for-Frontend API Gateway",
	})
}

func writeStatus(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// waitForBackend polls the backend health endpoint until it responds or times out
func waitForBackend(backend *url.URL, timeout time.Duration) error {
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(backend.JoinPath("/health").String())
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}

	return fmt.Errorf("backend not available after %v", timeout)
}
