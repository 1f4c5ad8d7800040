package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ewilliams-labs/persona/internal/adapters/ollama"
	"github.com/ewilliams-labs/persona/internal/adapters/rest"
	"github.com/ewilliams-labs/persona/internal/adapters/spotify"
	"github.com/ewilliams-labs/persona/internal/adapters/sqlite"
	"github.com/ewilliams-labs/persona/internal/config"
	"github.com/ewilliams-labs/persona/internal/core/engine"
	"github.com/ewilliams-labs/persona/internal/core/ports"
	"github.com/ewilliams-labs/persona/internal/core/services"
	"github.com/ewilliams-labs/persona/internal/logging"
	"github.com/ewilliams-labs/persona/internal/worker"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("persona api stopped")
	}
}

func run() error {
	// 1. Configuration: defaults -> persona.yaml -> environment.
	// Missing catalog credentials fail validation here.
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(cfg.Logging)
	logger := logging.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Driven adapters
	store, err := sqlite.NewAdapter(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	httpClient := spotify.NewAuthenticatedClient(ctx, spotify.Credentials{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		TokenURL:     cfg.Spotify.TokenURL,
		Timeout:      cfg.Spotify.Timeout,
	})
	catalog := spotify.NewClient(httpClient, spotify.Options{
		BaseURL:         cfg.Spotify.BaseURL,
		Market:          cfg.Spotify.Market,
		MaxRetries:      cfg.Spotify.MaxRetries,
		BaseBackoff:     cfg.Spotify.BaseBackoff,
		BreakerFailures: cfg.Spotify.BreakerFailures,
		BreakerTimeout:  cfg.Spotify.BreakerTimeout,
	}, logger)

	var intents ports.IntentCompiler
	if cfg.Ollama.Host != "" {
		intents = ollama.NewClient(ollama.Options{
			BaseURL: cfg.Ollama.Host,
			Model:   cfg.Ollama.Model,
			Timeout: cfg.Ollama.Timeout,
		}, logger)
	}

	pool := worker.NewPool(store, cfg.Worker.QueueSize, logger)
	pool.Start(cfg.Worker.Workers)
	defer pool.Stop()

	// 3. Core
	eng, err := engine.New(cfg.Engine, logger)
	if err != nil {
		return err
	}
	svc := services.NewRecommender(eng, services.Deps{
		Catalog:  catalog,
		States:   store,
		Feedback: store,
		Tracks:   store,
		Intents:  intents,
		Analysis: pool,
	}, services.Options{
		DiscoveryGenres: cfg.Catalog.DiscoveryGenres,
		DefaultQuery:    cfg.Catalog.DefaultQuery,
		BatchSize:       cfg.Catalog.BatchSize,
		CacheTTL:        cfg.Catalog.CacheTTL,
		MaxPageScan:     cfg.Catalog.MaxPageScan,
		MaxRanked:       cfg.Catalog.MaxRanked,
	}, logger)

	// 4. Driving adapter
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           rest.NewHandler(svc, logger),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("db", cfg.Storage.Path).Msg("🎶 Persona API is running")
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}
