package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RealtimeConfig struct {
	MinBackoff        time.Duration `mapstructure:"min_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	ReloadOnReconnect bool          `mapstructure:"reload_on_reconnect"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CredentialConfig struct {
	Token string `mapstructure:"token"`
}

type ArchiveConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Realtime   RealtimeConfig   `mapstructure:"realtime"`
	Log        LogConfig        `mapstructure:"log"`
	Credential CredentialConfig `mapstructure:"credential"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
}

// defaults doubles as the list of keys viper binds to LEDGER_* variables.
var defaults = map[string]any{
	"api.base_url":                 "http://localhost:8000",
	"api.timeout":                  "15s",
	"realtime.min_backoff":         "1s",
	"realtime.max_backoff":         "30s",
	"realtime.ping_interval":       "30s",
	"realtime.handshake_timeout":   "10s",
	"realtime.reload_on_reconnect": true,
	"log.level":                    "info",
	"log.format":                   "console",
	"credential.token":             "",
	"archive.bucket":               "",
	"archive.prefix":               "snapshots",
	"archive.endpoint":             "",
	"archive.credentials_file":     "",
}

// Load reads configuration from path (YAML) and LEDGER_* environment variables,
// e.g. LEDGER_API_BASE_URL or LEDGER_CREDENTIAL_TOKEN.
// An empty path looks for ledger.yaml in the working directory and tolerates its absence.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if path == "" {
		v.SetConfigName("ledger")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the values the rest of the program relies on.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid api.base_url %q", c.API.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url must be http or https, got %q", u.Scheme)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.Realtime.MinBackoff <= 0 || c.Realtime.MaxBackoff < c.Realtime.MinBackoff {
		return fmt.Errorf("realtime backoff must satisfy 0 < min_backoff <= max_backoff")
	}
	if c.Realtime.PingInterval < 0 {
		return fmt.Errorf("realtime.ping_interval must not be negative")
	}
	return nil
}
