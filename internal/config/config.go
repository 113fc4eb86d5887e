// Package config loads outboxctl settings from an optional YAML file and
// OUTBOX_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Backends accepted in Config.Backend.
const (
	BackendSQLite = "sqlite"
	BackendMySQL  = "mysql"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

var (
	// ErrUnknownBackend is returned for a Backend outside the supported set.
	ErrUnknownBackend = errors.New("config: unknown backend")
	// ErrMissingSetting is returned when the chosen backend lacks its location.
	ErrMissingSetting = errors.New("config: missing setting")
	// ErrInvalidSetting is returned for negative or unparsable values.
	ErrInvalidSetting = errors.New("config: invalid setting")
)

// Config holds everything outboxctl needs.
type Config struct {
	Backend  string         `yaml:"backend"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Redis    RedisConfig    `yaml:"redis"`
	API      APIConfig      `yaml:"api"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Backoff  BackoffConfig  `yaml:"backoff"`
	Admin    AdminConfig    `yaml:"admin"`
	Log      LogConfig      `yaml:"log"`
}

// SQLiteConfig locates the local database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// MySQLConfig locates a shared MySQL outbox.
type MySQLConfig struct {
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
	Binary bool   `yaml:"binary"`
}

// RedisConfig locates a shared Redis outbox.
type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// APIConfig points at the back-office server.
type APIConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// DeliveryConfig tunes flushing.
type DeliveryConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
	StartupDelay   time.Duration `yaml:"startup_delay"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
}

// BackoffConfig bounds retries after transport failures.
type BackoffConfig struct {
	Base       time.Duration `yaml:"base"`
	Max        time.Duration `yaml:"max"`
	MaxRetries int           `yaml:"max_retries"`
}

// AdminConfig controls the debug panel; an empty Addr disables it.
type AdminConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Backend: BackendSQLite,
		SQLite:  SQLiteConfig{Path: "outbox.db"},
		MySQL:   MySQLConfig{Table: "outbox"},
		Redis:   RedisConfig{Prefix: "outbox"},
		API:     APIConfig{BaseURL: "http://127.0.0.1:5000"},
		Delivery: DeliveryConfig{
			RequestTimeout: 15 * time.Second,
			StartupDelay:   time.Second,
			ProbeInterval:  10 * time.Second,
			ProbeTimeout:   3 * time.Second,
		},
		Backoff: BackoffConfig{Base: time.Second, Max: 5 * time.Minute, MaxRetries: 8},
		Admin:   AdminConfig{Addr: "127.0.0.1:8787"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (when non-empty) over the defaults, applies the environment and validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}

		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks that the chosen backend is fully described and durations are sane.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("%w: sqlite.path", ErrMissingSetting)
		}
	case BackendMySQL:
		if c.MySQL.DSN == "" {
			return fmt.Errorf("%w: mysql.dsn", ErrMissingSetting)
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("%w: redis.url", ErrMissingSetting)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}

	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: api.base_url", ErrMissingSetting)
	}
	for name, d := range map[string]time.Duration{
		"delivery.request_timeout": c.Delivery.RequestTimeout,
		"delivery.startup_delay":   c.Delivery.StartupDelay,
		"delivery.probe_interval":  c.Delivery.ProbeInterval,
		"delivery.probe_timeout":   c.Delivery.ProbeTimeout,
		"backoff.base":             c.Backoff.Base,
		"backoff.max":              c.Backoff.Max,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s must be non-negative", ErrInvalidSetting, name)
		}
	}
	if c.Backoff.MaxRetries < 0 {
		return fmt.Errorf("%w: backoff.max_retries must be non-negative", ErrInvalidSetting)
	}

	return nil
}

func applyEnv(c *Config) error {
	c.Backend = getEnv("OUTBOX_BACKEND", c.Backend)
	c.SQLite.Path = getEnv("OUTBOX_SQLITE_PATH", c.SQLite.Path)
	c.MySQL.DSN = getEnv("OUTBOX_MYSQL_DSN", c.MySQL.DSN)
	c.MySQL.Table = getEnv("OUTBOX_MYSQL_TABLE", c.MySQL.Table)
	c.Redis.URL = getEnv("OUTBOX_REDIS_URL", c.Redis.URL)
	c.Redis.Prefix = getEnv("OUTBOX_REDIS_PREFIX", c.Redis.Prefix)
	c.API.BaseURL = getEnv("OUTBOX_API_URL", c.API.BaseURL)
	c.API.Username = getEnv("OUTBOX_API_USER", c.API.Username)
	c.API.Password = getEnv("OUTBOX_API_PASSWORD", c.API.Password)
	c.API.Role = getEnv("OUTBOX_API_ROLE", c.API.Role)
	c.Admin.Addr = getEnv("OUTBOX_ADMIN_ADDR", c.Admin.Addr)
	c.Log.Level = getEnv("OUTBOX_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("OUTBOX_LOG_FORMAT", c.Log.Format)

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"OUTBOX_REQUEST_TIMEOUT", &c.Delivery.RequestTimeout},
		{"OUTBOX_STARTUP_DELAY", &c.Delivery.StartupDelay},
		{"OUTBOX_PROBE_INTERVAL", &c.Delivery.ProbeInterval},
		{"OUTBOX_PROBE_TIMEOUT", &c.Delivery.ProbeTimeout},
		{"OUTBOX_BACKOFF_BASE", &c.Backoff.Base},
		{"OUTBOX_BACKOFF_MAX", &c.Backoff.Max},
	}
	for _, d := range durations {
		if *d.dst, err = getEnvDuration(d.key, *d.dst); err != nil {
			return err
		}
	}
	if c.Backoff.MaxRetries, err = getEnvInt("OUTBOX_BACKOFF_RETRIES", c.Backoff.MaxRetries); err != nil {
		return err
	}

	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidSetting, key, v)
	}
	return n, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidSetting, key, v)
	}
	return d, nil
}
