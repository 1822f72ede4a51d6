// Package config loads runtime configuration for the teamsync CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the HTTP API (e.g., "http://127.0.0.1:8080")
//	-g string   address:port of the gRPC health endpoint
//	-i int      online status check interval (seconds)
//	-db string  path of the local SQLite database
//	-t int      request timeout (seconds)
//	-lf string  log format, "text", "json" or "console"
//
// # JSON schema
//
// Intervals use timex.Duration, so values can be either strings like "3s"
// or integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "health_addr": "127.0.0.1:50051",
//	  "online_check_interval": "3s",
//	  "database_path": "teamsync.db",
//	  "request_timeout": "10s",
//	  "log_format": "text"
//	}
package config
