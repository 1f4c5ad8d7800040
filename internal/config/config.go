// Package config loads process configuration in three layers: struct
// defaults, an optional YAML file, then environment variables.
package config

import (
	"time"

	"github.com/ewilliams-labs/persona/internal/core/engine"
	"github.com/ewilliams-labs/persona/internal/logging"
)

// Config is the full process configuration.
type Config struct {
	Server  ServerConfig   `koanf:"server"`
	Spotify SpotifyConfig  `koanf:"spotify"`
	Storage StorageConfig  `koanf:"storage"`
	Catalog CatalogConfig  `koanf:"catalog"`
	Engine  engine.Config  `koanf:"engine"`
	Worker  WorkerConfig   `koanf:"worker"`
	Ollama  OllamaConfig   `koanf:"ollama"`
	Logging logging.Config `koanf:"logging"`
	BFF     BFFConfig      `koanf:"bff"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// SpotifyConfig holds catalog API credentials and resilience settings.
type SpotifyConfig struct {
	ClientID     string        `koanf:"client_id" validate:"required"`
	ClientSecret string        `koanf:"client_secret" validate:"required"`
	BaseURL      string        `koanf:"base_url" validate:"required,url"`
	TokenURL     string        `koanf:"token_url" validate:"required,url"`
	Market       string        `koanf:"market" validate:"omitempty,len=2"`
	Timeout      time.Duration `koanf:"timeout" validate:"gt=0"`
	// MaxRetries is the number of attempts per request, the first included.
	MaxRetries  int           `koanf:"max_retries" validate:"min=1,max=10"`
	BaseBackoff time.Duration `koanf:"base_backoff" validate:"gt=0"`
	// BreakerFailures is the consecutive failure count that opens the breaker.
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"gt=0"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

type StorageConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// CatalogConfig controls candidate batches.
type CatalogConfig struct {
	// DiscoveryGenres are swept across release eras when a request carries
	// no query. Empty falls back to searching DefaultQuery.
	DiscoveryGenres []string      `koanf:"discovery_genres" validate:"dive,required"`
	DefaultQuery    string        `koanf:"default_query" validate:"required"`
	BatchSize       int           `koanf:"batch_size" validate:"min=1,max=50"`
	CacheTTL        time.Duration `koanf:"cache_ttl" validate:"gte=0"`
	MaxPageScan     int           `koanf:"max_page_scan" validate:"min=1,max=100"`
	// MaxRanked caps the recommendations endpoint.
	MaxRanked int `koanf:"max_ranked" validate:"min=1,max=50"`
}

type WorkerConfig struct {
	Workers   int `koanf:"workers" validate:"min=1,max=32"`
	QueueSize int `koanf:"queue_size" validate:"min=1"`
}

type OllamaConfig struct {
	Host    string        `koanf:"host" validate:"omitempty,url"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// BFFConfig configures the gateway process.
type BFFConfig struct {
	Port       int    `koanf:"port" validate:"min=1,max=65535"`
	BackendURL string `koanf:"backend_url" validate:"required,url"`
}

// Defaults returns the baseline configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Spotify: SpotifyConfig{
			BaseURL:         "https://api.spotify.com/v1",
			TokenURL:        "https://accounts.spotify.com/api/token",
			Market:          "US",
			Timeout:         10 * time.Second,
			MaxRetries:      3,
			BaseBackoff:     500 * time.Millisecond,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Storage: StorageConfig{Path: "persona.db"},
		Catalog: CatalogConfig{
			DiscoveryGenres: []string{"pop", "rock", "hip-hop", "electronic", "indie", "jazz", "classical", "country"},
			DefaultQuery:    "popular",
			BatchSize:       50,
			CacheTTL:        24 * time.Hour,
			MaxPageScan:     10,
			MaxRanked:       10,
		},
		Engine: engine.DefaultConfig(),
		Worker: WorkerConfig{Workers: 2, QueueSize: 100},
		Ollama: OllamaConfig{
			Host:    "http://localhost:11434",
			Model:   "deepseek-r1:8b",
			Timeout: 30 * time.Second,
		},
		Logging: logging.DefaultConfig(),
		BFF: BFFConfig{
			Port:       3000,
			BackendURL: "http://localhost:8080",
		},
	}
}
