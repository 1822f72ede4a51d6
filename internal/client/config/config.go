package config

import (
	"os"
	"time"
)

// Config holds runtime settings for the teamsync CLI.
//
// Fields:
//   - ServerURL: base URL of the HTTP API; the event websocket lives under it.
//   - HealthAddr: host:port of the gRPC health endpoint used for online checks.
//   - OnlineCheckInterval: how often the client probes server reachability.
//   - DatabasePath: SQLite file holding drafts and preferences.
//   - RequestTimeout: per-request HTTP timeout.
//   - LogFormat: "text", "json" or "console".
type Config struct {
	ServerURL           string
	HealthAddr          string
	OnlineCheckInterval time.Duration
	DatabasePath        string
	RequestTimeout      time.Duration
	LogFormat           string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.HealthAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.DatabasePath = "teamsync.db"
	c.RequestTimeout = 10 * time.Second
	c.LogFormat = "text"
}

// LoadConfig builds a Config from the process arguments.
func LoadConfig() *Config {
	return Load(os.Args[1:])
}

// Load applies defaults, then the JSON file (if any) and finally flags.
// Later sources take precedence over earlier ones.
func Load(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseFlags(cfg, args)
	return cfg
}
