// Package config handles configuration loading for the ksasa client.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. Every field has a default, so a missing file is not an error for
// LoadOrDefault.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from KSASA_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/ksasa/config.yaml
//  3. ~/.config/ksasa/config.yaml
//
// Files with a .toml extension are decoded as TOML; anything else is YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	storage:
//	  redis_url: "${KSASA_REDIS_URL}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Configuration Sections
//
// Agent Service:
//
//	agent:
//	  base_url: "http://localhost:8000"
//	  timeout: "60s"        # per request, Go duration syntax
//
// Storage:
//
//	storage:
//	  backend: "sqlite"     # sqlite, redis, memory
//	  path: "~/.local/share/ksasa/ksasa.db"
//	  redis_url: "redis://localhost:6379/0"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Metrics:
//
//	metrics:
//	  enabled: true
//	  listen: "127.0.0.1:9464"   # optional Prometheus endpoint during chat
//
// The same file in TOML:
//
//	[agent]
//	base_url = "http://localhost:8000"
//	timeout = "30s"
//
//	[storage]
//	backend = "redis"
//	redis_url = "${KSASA_REDIS_URL}"
//
// # Validation
//
// Load() validates:
//
//   - agent.base_url is an http or https URL
//   - agent.timeout parses and is not negative
//   - storage.backend is known and has its path or redis_url
//   - logging.format is text or json
package config
