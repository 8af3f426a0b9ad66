// ABOUTME: Configuration loading for the conhub-engine binary.
// ABOUTME: Loads TOML config with env expansion over service env-var fallbacks.

package main

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Services ServicesConfig `toml:"services"`
	Search   SearchConfig   `toml:"search"`
	Logging  LoggingConfig  `toml:"logging"`
}

type ServicesConfig struct {
	SearchURL     string `toml:"search_url"`
	EmbeddingsURL string `toml:"embeddings_url"`
	ToggleURL     string `toml:"toggle_url"`
}

type SearchConfig struct {
	TimeoutSecs int `toml:"timeout_secs"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// defaultConfig returns the built-in defaults with the service env vars
// applied over them.
func defaultConfig() *Config {
	cfg := &Config{
		Services: ServicesConfig{
			SearchURL:     "http://localhost:3004",
			EmbeddingsURL: "http://localhost:3001",
			ToggleURL:     "http://localhost:3002",
		},
		Search:  SearchConfig{TimeoutSecs: 30},
		Logging: LoggingConfig{Level: "info"},
	}
	applyEnv(cfg)
	return cfg
}

// applyEnv overlays the environment variables the original deployment
// configured the engine with.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MCP_SERVER_URL"); v != "" {
		cfg.Services.SearchURL = v
	}
	if v := os.Getenv("EMBEDDINGS_SERVICE_URL"); v != "" {
		cfg.Services.EmbeddingsURL = v
	}
	if v := os.Getenv("FEATURE_TOGGLE_URL"); v != "" {
		cfg.Services.ToggleURL = v
	}
	if v := os.Getenv("SEARCH_TIMEOUT_SECS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Search.TimeoutSecs = secs
		}
	}
}

// Load reads config from the given path over the defaults. An empty
// path keeps defaults plus environment overrides; file values win.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		// Expand environment variables (${VAR} syntax)
		expanded := expandEnvVars(string(data))

		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Validate checks that required config fields are present and valid.
func (c *Config) Validate() error {
	if err := validateServiceURL("services.search_url", c.Services.SearchURL); err != nil {
		return err
	}
	if err := validateServiceURL("services.embeddings_url", c.Services.EmbeddingsURL); err != nil {
		return err
	}
	if err := validateServiceURL("services.toggle_url", c.Services.ToggleURL); err != nil {
		return err
	}
	if c.Search.TimeoutSecs <= 0 {
		return fmt.Errorf("search.timeout_secs must be positive")
	}
	return nil
}

func validateServiceURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme", name)
	}
	return nil
}

// SearchTimeout returns the semantic search bound as a duration.
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.TimeoutSecs) * time.Second
}
