package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "outbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, BackendSQLite, cfg.Backend)
	require.Equal(t, 15*time.Second, cfg.Delivery.RequestTimeout)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
backend: mysql
mysql:
  dsn: "root:secret@tcp(db:3306)/shop"
  table: pos_outbox
  binary: true
api:
  base_url: https://shop.example.com
  username: kasir
delivery:
  request_timeout: 5s
backoff:
  max: 1m
  max_retries: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, BackendMySQL, cfg.Backend)
	require.Equal(t, "pos_outbox", cfg.MySQL.Table)
	require.True(t, cfg.MySQL.Binary)
	require.Equal(t, "kasir", cfg.API.Username)
	require.Equal(t, 5*time.Second, cfg.Delivery.RequestTimeout)
	require.Equal(t, time.Second, cfg.Delivery.StartupDelay, "unset keys keep defaults")
	require.Equal(t, time.Minute, cfg.Backoff.Max)
	require.Equal(t, 3, cfg.Backoff.MaxRetries)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, "backend: sqlite\nsqlite:\n  file: x.db\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "backend: sqlite\napi:\n  base_url: http://file.example\n")
	t.Setenv("OUTBOX_BACKEND", "redis")
	t.Setenv("OUTBOX_REDIS_URL", "redis://cache:6379/2")
	t.Setenv("OUTBOX_API_URL", "http://env.example")
	t.Setenv("OUTBOX_PROBE_INTERVAL", "30s")
	t.Setenv("OUTBOX_BACKOFF_RETRIES", "0")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, BackendRedis, cfg.Backend)
	require.Equal(t, "redis://cache:6379/2", cfg.Redis.URL)
	require.Equal(t, "http://env.example", cfg.API.BaseURL)
	require.Equal(t, 30*time.Second, cfg.Delivery.ProbeInterval)
	require.Zero(t, cfg.Backoff.MaxRetries)
}

func TestEnvInvalidValues(t *testing.T) {
	t.Setenv("OUTBOX_REQUEST_TIMEOUT", "soon")
	_, err := Load("")
	require.ErrorIs(t, err, ErrInvalidSetting)

	t.Setenv("OUTBOX_REQUEST_TIMEOUT", "")
	t.Setenv("OUTBOX_BACKOFF_RETRIES", "many")
	_, err = Load("")
	require.ErrorIs(t, err, ErrInvalidSetting)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"unknown backend", func(c *Config) { c.Backend = "postgres" }, ErrUnknownBackend},
		{"sqlite without path", func(c *Config) { c.SQLite.Path = "" }, ErrMissingSetting},
		{"mysql without dsn", func(c *Config) { c.Backend = BackendMySQL }, ErrMissingSetting},
		{"redis without url", func(c *Config) { c.Backend = BackendRedis }, ErrMissingSetting},
		{"no api", func(c *Config) { c.API.BaseURL = "" }, ErrMissingSetting},
		{"negative timeout", func(c *Config) { c.Delivery.RequestTimeout = -time.Second }, ErrInvalidSetting},
		{"negative retries", func(c *Config) { c.Backoff.MaxRetries = -1 }, ErrInvalidSetting},
		{"memory", func(c *Config) { c.Backend = BackendMemory }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}
