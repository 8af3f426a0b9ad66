// ABOUTME: Configuration loading and parsing for conhub-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine transport modes.
const (
	EngineModeSubprocess = "subprocess"
	EngineModeHTTP       = "http"
)

// Config represents the complete conhub-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Engine   EngineConfig   `yaml:"engine"`
	Auth     AuthConfig     `yaml:"auth"`
	Limits   LimitsConfig   `yaml:"limits"`
	Sessions SessionsConfig `yaml:"sessions"`
	Store    StoreConfig    `yaml:"store"`
	Logging  LoggingConfig  `yaml:"logging"`
	CORS     CORSConfig     `yaml:"cors"`
}

// ServerConfig holds the listen address and debug switch
type ServerConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// EngineConfig holds the backend MCP engine configuration
type EngineConfig struct {
	// Mode selects the transport: "subprocess" or "http"
	Mode    string   `yaml:"mode"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	URL     string   `yaml:"url"`

	RequestTimeout time.Duration `yaml:"-"`
	StopGrace      time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	RequestTimeoutRaw string `yaml:"request_timeout"`
	StopGraceRaw      string `yaml:"stop_grace"`
}

// AuthConfig holds identity verification configuration
type AuthConfig struct {
	ServiceURL   string `yaml:"service_url"`
	JWTSecret    string `yaml:"jwt_secret"`
	JWTAlgorithm string `yaml:"jwt_algorithm"`

	KeyCacheTTL time.Duration `yaml:"-"`

	KeyCacheTTLRaw string `yaml:"key_cache_ttl"`
}

// LimitsConfig holds rate limiting configuration
type LimitsConfig struct {
	RatePerMinute int `yaml:"rate_per_minute"`
	Burst         int `yaml:"burst"`
}

// SessionsConfig holds session registry configuration
type SessionsConfig struct {
	MaxClients int `yaml:"max_clients"`

	IdleTimeout   time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`

	IdleTimeoutRaw   string `yaml:"idle_timeout"`
	SweepIntervalRaw string `yaml:"sweep_interval"`
}

// StoreConfig holds audit store configuration. An empty path disables
// the audit store entirely.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CORSConfig holds allowed origins for WebSocket upgrades
type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

// Default returns the built-in configuration. Load starts from these
// values, so keys absent from the config file keep them.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8095,
		},
		Engine: EngineConfig{
			Mode:           EngineModeSubprocess,
			Command:        "./conhub-engine",
			URL:            "http://localhost:3004",
			RequestTimeout: 30 * time.Second,
			StopGrace:      5 * time.Second,
		},
		Auth: AuthConfig{
			ServiceURL:   "http://localhost:3001",
			JWTAlgorithm: "HS256",
			KeyCacheTTL:  30 * time.Second,
		},
		Limits: LimitsConfig{
			RatePerMinute: 60,
			Burst:         10,
		},
		Sessions: SessionsConfig{
			MaxClients:    100,
			IdleTimeout:   60 * time.Minute,
			SweepInterval: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			Origins: []string{"http://localhost:3000", "http://localhost:8080"},
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
// Keys absent from the file keep their Default() values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}

	switch c.Engine.Mode {
	case EngineModeSubprocess:
		if c.Engine.Command == "" {
			return fmt.Errorf("engine.command is required in subprocess mode")
		}
	case EngineModeHTTP:
		if c.Engine.URL == "" {
			return fmt.Errorf("engine.url is required in http mode")
		}
	default:
		return fmt.Errorf("engine.mode must be %q or %q, got %q",
			EngineModeSubprocess, EngineModeHTTP, c.Engine.Mode)
	}

	if c.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("engine.request_timeout must be positive")
	}
	if c.Engine.StopGrace <= 0 {
		return fmt.Errorf("engine.stop_grace must be positive")
	}

	// Debug mode allows anonymous connections, so the JWT secret may be
	// omitted there and only there.
	if c.Auth.JWTSecret == "" && !c.Server.Debug {
		return fmt.Errorf("auth.jwt_secret is required (or enable server.debug)")
	}
	if c.Auth.JWTAlgorithm != "HS256" {
		return fmt.Errorf("auth.jwt_algorithm %q is not supported (only HS256)", c.Auth.JWTAlgorithm)
	}
	if c.Auth.KeyCacheTTL <= 0 {
		return fmt.Errorf("auth.key_cache_ttl must be positive")
	}

	if c.Limits.RatePerMinute < 1 {
		return fmt.Errorf("limits.rate_per_minute must be at least 1")
	}
	if c.Limits.Burst < 1 {
		return fmt.Errorf("limits.burst must be at least 1")
	}

	if c.Sessions.MaxClients < 1 {
		return fmt.Errorf("sessions.max_clients must be at least 1")
	}
	if c.Sessions.IdleTimeout <= 0 {
		return fmt.Errorf("sessions.idle_timeout must be positive")
	}
	if c.Sessions.SweepInterval <= 0 {
		return fmt.Errorf("sessions.sweep_interval must be positive")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Engine.RequestTimeoutRaw != "" {
		cfg.Engine.RequestTimeout, err = time.ParseDuration(cfg.Engine.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing engine.request_timeout %q: %w", cfg.Engine.RequestTimeoutRaw, err)
		}
	}

	if cfg.Engine.StopGraceRaw != "" {
		cfg.Engine.StopGrace, err = time.ParseDuration(cfg.Engine.StopGraceRaw)
		if err != nil {
			return fmt.Errorf("parsing engine.stop_grace %q: %w", cfg.Engine.StopGraceRaw, err)
		}
	}

	if cfg.Auth.KeyCacheTTLRaw != "" {
		cfg.Auth.KeyCacheTTL, err = time.ParseDuration(cfg.Auth.KeyCacheTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing auth.key_cache_ttl %q: %w", cfg.Auth.KeyCacheTTLRaw, err)
		}
	}

	if cfg.Sessions.IdleTimeoutRaw != "" {
		cfg.Sessions.IdleTimeout, err = time.ParseDuration(cfg.Sessions.IdleTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing sessions.idle_timeout %q: %w", cfg.Sessions.IdleTimeoutRaw, err)
		}
	}

	if cfg.Sessions.SweepIntervalRaw != "" {
		cfg.Sessions.SweepInterval, err = time.ParseDuration(cfg.Sessions.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sessions.sweep_interval %q: %w", cfg.Sessions.SweepIntervalRaw, err)
		}
	}

	return nil
}
