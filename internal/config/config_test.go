package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: https://api.example.com
  timeout: 5s
realtime:
  min_backoff: 500ms
  max_backoff: 10s
  ping_interval: 0s
  reload_on_reconnect: false
log:
  level: debug
  format: json
archive:
  bucket: ledger-snapshots
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Realtime.MinBackoff)
	assert.Equal(t, 10*time.Second, cfg.Realtime.MaxBackoff)
	assert.Equal(t, time.Duration(0), cfg.Realtime.PingInterval)
	assert.False(t, cfg.Realtime.ReloadOnReconnect)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "ledger-snapshots", cfg.Archive.Bucket)
	assert.Equal(t, "snapshots", cfg.Archive.Prefix)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "log:\n  level: warn\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, time.Second, cfg.Realtime.MinBackoff)
	assert.Equal(t, 30*time.Second, cfg.Realtime.MaxBackoff)
	assert.True(t, cfg.Realtime.ReloadOnReconnect)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "api:\n  base_url: http://file.example.com\n")
	t.Setenv("LEDGER_API_BASE_URL", "https://env.example.com")
	t.Setenv("LEDGER_CREDENTIAL_TOKEN", "secret-token")
	t.Setenv("LEDGER_REALTIME_MAX_BACKOFF", "1m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.API.BaseURL)
	assert.Equal(t, "secret-token", cfg.Credential.Token)
	assert.Equal(t, time.Minute, cfg.Realtime.MaxBackoff)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			API:      APIConfig{BaseURL: "http://localhost:8000", Timeout: time.Second},
			Realtime: RealtimeConfig{MinBackoff: time.Second, MaxBackoff: 2 * time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"websocket scheme", func(c *Config) { c.API.BaseURL = "ws://localhost:8000" }, true},
		{"no host", func(c *Config) { c.API.BaseURL = "localhost" }, true},
		{"zero timeout", func(c *Config) { c.API.Timeout = 0 }, true},
		{"inverted backoff", func(c *Config) { c.Realtime.MaxBackoff = time.Millisecond }, true},
		{"negative ping", func(c *Config) { c.Realtime.PingInterval = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
