// Package config handles configuration loading for conhub-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults; keys absent from the
// file keep their default values.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CONHUB_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/conhub/gateway.yaml
//  3. ~/.config/conhub/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${CONHUB_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	engine:
//	  request_timeout: "30s"
//	  stop_grace: "5s"
//	sessions:
//	  idle_timeout: "60m"
//	  sweep_interval: "60s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  host: "0.0.0.0"
//	  port: 8095
//	  debug: false     # debug admits anonymous connections
//
// Engine (the backend MCP process or peer):
//
//	engine:
//	  mode: "subprocess"            # subprocess or http
//	  command: "./conhub-engine"
//	  url: "http://localhost:3004"  # used in http mode
//	  request_timeout: "30s"
//	  stop_grace: "5s"
//
// Authentication:
//
//	auth:
//	  service_url: "http://localhost:3001"
//	  jwt_secret: "${CONHUB_JWT_SECRET}"
//	  jwt_algorithm: "HS256"
//	  key_cache_ttl: "30s"
//
// Limits and sessions:
//
//	limits:
//	  rate_per_minute: 60
//	  burst: 10
//	sessions:
//	  max_clients: 100
//	  idle_timeout: "60m"
//	  sweep_interval: "60s"
//
// Audit store (optional; empty path disables it):
//
//	store:
//	  path: "/var/lib/conhub/gateway.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "json"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Engine mode and its mode-specific required fields
//   - JWT secret presence outside debug mode
//   - Positive timeouts, limits, and capacity values
//   - Duration format validity
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/conhub/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Or start from the built-in defaults:
//
//	cfg := config.Default()
package config
