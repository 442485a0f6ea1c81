// Package config handles configuration loading for chorus-hub.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CHORUS_CONFIG environment variable
//  2. ./chorus.yaml (current directory)
//  3. ~/.config/chorus/hub.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${CHORUS_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	dedupe:
//	  ttl: "5m"
//	session:
//	  completion_window: "2s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8420"   # ingest API, state API, SSE stream
//
// Database:
//
//	database:
//	  path: "/var/lib/chorus/hub.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${CHORUS_JWT_SECRET}"   # empty disables bearer auth
//
// Engine wiring. history_url points at the engine's session backend and is
// required for history restores; alias accepts an alternate wire name on
// the ingest route:
//
//	engines:
//	  codex:
//	    history_url: "http://localhost:9400"
//	    history_token: "${CODEX_HISTORY_TOKEN}"
//	    alias: "cursor"
//	  claude:
//	    history_url: "http://localhost:9401"
//	  gemini: {}
//
// Event dedup:
//
//	dedupe:
//	  ttl: "5m"
//	  max_size: 100000
//
// Session behavior:
//
//	session:
//	  completion_window: "2s"   # race window for correlating completions
//
// Parity checking after a history restore:
//
//	parity:
//	  disabled: false
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration from a specific path:
//
//	cfg, err := config.Load("/etc/chorus/hub.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
