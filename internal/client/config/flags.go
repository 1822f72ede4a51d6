package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the HTTP API
//	-g string   gRPC health endpoint address
//	-i int      online check interval in seconds
//	-db string  local database path
//	-t int      request timeout in seconds
//	-lf string  log format
//
// Parse errors panic.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-g", "-i", "-db", "-t", "-lf"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.ServerURL, "a", config.ServerURL, "base URL of the HTTP API")
	fs.StringVar(&config.HealthAddr, "g", config.HealthAddr, "address and port of the gRPC health endpoint")
	interval := fs.Int("i", int(config.OnlineCheckInterval/time.Second), "online status check interval (seconds)")
	fs.StringVar(&config.DatabasePath, "db", config.DatabasePath, "local database path")
	timeout := fs.Int("t", int(config.RequestTimeout/time.Second), "request timeout (seconds)")
	fs.StringVar(&config.LogFormat, "lf", config.LogFormat, "log format (text|json|console)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.OnlineCheckInterval = time.Duration(*interval) * time.Second
	config.RequestTimeout = time.Duration(*timeout) * time.Second
}
