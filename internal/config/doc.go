// Package config handles configuration loading for treesync.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Keys a file leaves out keep the values from Default.
//
// # Configuration File
//
// The format follows the file extension: .toml is TOML, anything else is
// YAML. The CLI reads the path given with --config, falling back to the
// TREESYNC_CONFIG environment variable.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  api_key: "${TREESYNC_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	pending:
//	  ttl: "5m"
//	  sweep_interval: "1m"
//
// # Configuration Sections
//
// Connection settings, compared by deep equality to decide on reconnects:
//
//	database:
//	  name: "local"
//	  project_id: "demo"
//	  database_url: "memory://"
//	  options:
//	    region: "us"
//
// Cached subtrees:
//
//	cache:
//	  default_offset: "all"
//	  subtrees:
//	    - name: "products"
//	    - name: "me"
//	      shape: "record"
//
// Lifecycle switches:
//
//	lifecycle:
//	  route_change: true
//
// Unconfirmed local changes:
//
//	pending:
//	  ttl: "5m"
//	  max_size: 1000
//
// Journal (omit the path to run without one):
//
//	journal:
//	  path: "./treesync.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
