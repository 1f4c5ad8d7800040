package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar overrides the config file location.
const PathEnvVar = "CONFIG_PATH"

// DefaultPaths are searched in order when PathEnvVar is unset.
var DefaultPaths = []string{"persona.yaml", "persona.yml", "/etc/persona/config.yaml"}

// envPrefix marks generic section keys: PERSONA_CATALOG_CACHE_TTL -> catalog.cache_ttl.
const envPrefix = "PERSONA_"

// legacyEnv keeps the variable names the deployment already uses.
var legacyEnv = map[string]string{
	"SPOTIFY_CLIENT_ID":     "spotify.client_id",
	"SPOTIFY_CLIENT_SECRET": "spotify.client_secret",
	"SPOTIFY_BASE_URL":      "spotify.base_url",
	"HTTP_PORT":             "server.port",
	"PERSONA_DB_PATH":       "storage.path",
	"OLLAMA_HOST":           "ollama.host",
	"OLLAMA_MODEL":          "ollama.model",
	"LOG_LEVEL":             "logging.level",
	"LOG_FORMAT":            "logging.format",
	"LOG_CALLER":            "logging.caller",
	"BACKEND_URL":           "bff.backend_url",
	"BFF_PORT":              "bff.port",
}

// Load builds the configuration from defaults, the config file and the
// environment, in increasing priority, and validates the result.
func Load() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile is Load with an explicit YAML path ("" skips the file layer).
func LoadFile(path string) (*Config, error) {
	return load(path)
}

// LoadGateway loads the same layers but only validates the sections the
// gateway process reads, so it starts without catalog credentials.
func LoadGateway() (*Config, error) {
	cfg, err := read(findConfigFile())
	if err != nil {
		return nil, err
	}
	if err := cfg.validateSections(cfg.BFF, cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := Defaults()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.Logging.Output = os.Stderr
	return cfg, nil
}

// envKey maps an environment variable to a koanf path, or "" to ignore it.
func envKey(name string) string {
	if mapped, ok := legacyEnv[name]; ok {
		return mapped
	}
	if !strings.HasPrefix(name, envPrefix) {
		return ""
	}
	rest := strings.ToLower(strings.TrimPrefix(name, envPrefix))
	section, key, ok := strings.Cut(rest, "_")
	if !ok || key == "" {
		return ""
	}
	return section + "." + key
}

func findConfigFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
