package config

import (
	"github.com/dmitrijs2005/teamsync/internal/flagx"
	"github.com/dmitrijs2005/teamsync/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. Fields left out of the file keep their current value.
type JsonConfig struct {
	EndpointAddrHTTP      string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC      string         `json:"endpoint_addr_grpc"`
	DatabaseDSN           string         `json:"database_dsn"`
	SecretKey             string         `json:"secret_key"`
	RedisAddr             string         `json:"redis_addr"`
	CacheTTL              timex.Duration `json:"cache_ttl"`
	CacheMaxValueBytes    int            `json:"cache_max_value_bytes"`
	CacheReconnectBase    timex.Duration `json:"cache_reconnect_base"`
	CacheReconnectMax     timex.Duration `json:"cache_reconnect_max"`
	CacheReconnectRetries uint           `json:"cache_reconnect_retries"`
	LeaseStore            string         `json:"lease_store"`
	LeaseTTL              timex.Duration `json:"lease_ttl"`
	LeaseSweepInterval    timex.Duration `json:"lease_sweep_interval"`
	TaskWorkers           int            `json:"task_workers"`
	S3RootUser            string         `json:"s3_root_user"`
	S3RootPassword        string         `json:"s3_root_password"`
	S3Bucket              string         `json:"s3_bucket"`
	S3Region              string         `json:"s3_region"`
	S3BaseEndpoint        string         `json:"s3_base_endpoint"`
	LogFormat             string         `json:"log_format"`
}

// parseJson loads configuration values from the JSON file named by -c or
// -config. Without either flag nothing is loaded. An unreadable or invalid
// file panics.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigPath(args)
	if path == "" {
		return
	}

	c := &JsonConfig{}
	if err := flagx.LoadJSON(path, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.RedisAddr, c.RedisAddr)
	config.CacheTTL = c.CacheTTL.OrDefault(config.CacheTTL)
	if c.CacheMaxValueBytes > 0 {
		config.CacheMaxValueBytes = c.CacheMaxValueBytes
	}
	config.CacheReconnectBase = c.CacheReconnectBase.OrDefault(config.CacheReconnectBase)
	config.CacheReconnectMax = c.CacheReconnectMax.OrDefault(config.CacheReconnectMax)
	if c.CacheReconnectRetries > 0 {
		config.CacheReconnectRetries = c.CacheReconnectRetries
	}
	setString(&config.LeaseStore, c.LeaseStore)
	config.LeaseTTL = c.LeaseTTL.OrDefault(config.LeaseTTL)
	config.LeaseSweepInterval = c.LeaseSweepInterval.OrDefault(config.LeaseSweepInterval)
	if c.TaskWorkers > 0 {
		config.TaskWorkers = c.TaskWorkers
	}
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogFormat, c.LogFormat)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
