package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerURL)
	assert.Equal(t, "127.0.0.1:50051", c.HealthAddr)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, "teamsync.db", c.DatabasePath)
	assert.Equal(t, 10*time.Second, c.RequestTimeout)
	assert.Equal(t, "text", c.LogFormat)
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		expected    *Config
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"-a", "http://api:9090", "-g", "api:6000", "-i", "10", "-db", "/tmp/x.db", "-t", "2", "-lf", "console"},
			expected: &Config{
				ServerURL: "http://api:9090", HealthAddr: "api:6000", OnlineCheckInterval: 10 * time.Second,
				DatabasePath: "/tmp/x.db", RequestTimeout: 2 * time.Second, LogFormat: "console",
			},
		},
		{name: "incorrect check interval", args: []string{"-i", "abc"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}
			config.LoadDefaults()

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config, tt.args) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config, tt.args) })
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}

func TestLoad_JSONThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server_url": "http://json:8080",
		"online_check_interval": "7s",
		"request_timeout": 4000000000
	}`), 0o600))

	c := Load([]string{"-c", path, "-db", "local.db"})

	assert.Equal(t, "http://json:8080", c.ServerURL)
	assert.Equal(t, "127.0.0.1:50051", c.HealthAddr, "absent key keeps default")
	assert.Equal(t, 7*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, 4*time.Second, c.RequestTimeout)
	assert.Equal(t, "local.db", c.DatabasePath)
}

func TestLoad_FlagOverridesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server_url": "http://json:8080"}`), 0o600))

	c := Load([]string{"-config=" + path, "-a", "http://flag:8080"})
	assert.Equal(t, "http://flag:8080", c.ServerURL)
}

func TestLoad_MissingJSONPanics(t *testing.T) {
	assert.Panics(t, func() { Load([]string{"-c", filepath.Join(t.TempDir(), "nope.json")}) })
}
