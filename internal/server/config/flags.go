package config

import (
	"flag"

	"github.com/dmitrijs2005/teamsync/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     HTTP bind address (e.g., ":8080")
//	-ga string    gRPC health bind address (e.g., ":50051")
//	-d string     PostgreSQL DSN
//	-s string     JWT HMAC secret key
//	-r string     Redis address
//	-ct duration  cache entry TTL
//	-ls string    lease store, "redis" or "memory"
//	-lt duration  lease TTL
//	-w int        background task workers
//	-u string     S3 root user
//	-p string     S3 root password
//	-b string     S3 bucket name
//	-g string     S3 region
//	-e string     S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-lf string    log format, "json" or "console"
//
// The arguments are first filtered with flagx.FilterArgs so flags meant for
// other loaders (-c/-config) do not trip the parser.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-ga", "-d", "-s", "-r", "-ct", "-ls", "-lt", "-w", "-u", "-p", "-b", "-g", "-e", "-lf"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run the HTTP server")
	fs.StringVar(&config.EndpointAddrGRPC, "ga", config.EndpointAddrGRPC, "address and port to run the gRPC health server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.DurationVar(&config.CacheTTL, "ct", config.CacheTTL, "cache entry TTL")
	fs.StringVar(&config.LeaseStore, "ls", config.LeaseStore, "lease store (redis|memory)")
	fs.DurationVar(&config.LeaseTTL, "lt", config.LeaseTTL, "lease TTL")
	fs.IntVar(&config.TaskWorkers, "w", config.TaskWorkers, "background task workers")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LogFormat, "lf", config.LogFormat, "log format (json|console)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
