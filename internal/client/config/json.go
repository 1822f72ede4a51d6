package config

import (
	"github.com/dmitrijs2005/teamsync/internal/flagx"
	"github.com/dmitrijs2005/teamsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "3s" or as integer nanoseconds.
type JsonConfig struct {
	ServerURL           string         `json:"server_url"`
	HealthAddr          string         `json:"health_addr"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	DatabasePath        string         `json:"database_path"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
	LogFormat           string         `json:"log_format"`
}

// parseJson overlays Config with values from the file named by -c or
// -config. Missing keys keep their current value; read or unmarshal errors
// panic.
func parseJson(cfg *Config, args []string) {
	path := flagx.ConfigPath(args)
	if path == "" {
		return
	}

	var jc JsonConfig
	if err := flagx.LoadJSON(path, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.HealthAddr != "" {
		cfg.HealthAddr = jc.HealthAddr
	}
	cfg.OnlineCheckInterval = jc.OnlineCheckInterval.OrDefault(cfg.OnlineCheckInterval)
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	cfg.RequestTimeout = jc.RequestTimeout.OrDefault(cfg.RequestTimeout)
	if jc.LogFormat != "" {
		cfg.LogFormat = jc.LogFormat
	}
}
