// Package config loads server settings. Sources are applied in order, later
// ones winning: built-in defaults, a .env file, a TOML file, then the process
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Defaults.
const (
	DefaultPort               = "3000"
	DefaultDBDriver           = "sqlite3"
	DefaultDBPath             = "./data/todolist.db"
	DefaultCacheTTL           = 30 * time.Second
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultReorderConcurrency = 8
	DefaultShutdownTimeout    = 10 * time.Second

	// DefaultConfigFile is read when present; a missing default file is not an error.
	DefaultConfigFile = "todolist.toml"
	// DefaultEnvFile is loaded into the environment when present.
	DefaultEnvFile = ".env"
)

// Config holds all server settings.
type Config struct {
	Port               string   `toml:"port"`
	DBDriver           string   `toml:"db_driver"`
	DBPath             string   `toml:"db_path"`
	StaticDir          string   `toml:"static_dir"`
	RedisURL           string   `toml:"redis_url"`
	CacheTTL           Duration `toml:"cache_ttl"`
	LogLevel           string   `toml:"log_level"`
	LogFormat          string   `toml:"log_format"`
	CORSOrigins        []string `toml:"cors_origins"`
	ReorderConcurrency int      `toml:"reorder_concurrency"`
	ShutdownTimeout    Duration `toml:"shutdown_timeout"`
}

// Duration is a time.Duration that decodes from TOML strings like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns a Config with built-in defaults.
func Default() *Config {
	return &Config{
		Port:               DefaultPort,
		DBDriver:           DefaultDBDriver,
		DBPath:             DefaultDBPath,
		CacheTTL:           Duration{DefaultCacheTTL},
		LogLevel:           DefaultLogLevel,
		LogFormat:          DefaultLogFormat,
		CORSOrigins:        []string{"*"},
		ReorderConcurrency: DefaultReorderConcurrency,
		ShutdownTimeout:    Duration{DefaultShutdownTimeout},
	}
}

// Load builds a Config. envFile and configFile may be empty to use the
// defaults; an explicitly named file that does not exist is an error.
func Load(envFile, configFile string) (*Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	if configFile == "" {
		configFile = os.Getenv("TODOLIST_CONFIG")
	}

	cfg := Default()
	if err := loadConfigFile(cfg, configFile); err != nil {
		return nil, err
	}
	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	// godotenv.Load does not override variables already set.
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func loadConfigFile(cfg *Config, path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config file %s: %w", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.WithField("keys", undecoded).Warn("ignoring unknown config keys")
	}
	return nil
}

// loadFromEnv overrides config from environment variables.
func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.DBDriver = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("STATIC_DIR"); v != "" {
		cfg.StaticDir = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CACHE_TTL: %w", err)
		}
		cfg.CacheTTL = Duration{d}
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.ShutdownTimeout = Duration{d}
	}
	if v := os.Getenv("REORDER_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REORDER_CONCURRENCY: %w", err)
		}
		cfg.ReorderConcurrency = n
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks that settings are usable.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	switch c.DBDriver {
	case "sqlite3", "sqlite":
	default:
		return fmt.Errorf("db_driver must be 'sqlite3' or 'sqlite', got %q", c.DBDriver)
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be 'text' or 'json', got %q", c.LogFormat)
	}
	if c.ReorderConcurrency < 1 {
		return fmt.Errorf("reorder_concurrency must be at least 1, got %d", c.ReorderConcurrency)
	}
	if c.CacheTTL.Duration < 0 {
		return errors.New("cache_ttl must not be negative")
	}
	if c.ShutdownTimeout.Duration <= 0 {
		return errors.New("shutdown_timeout must be positive")
	}
	return nil
}

// Addr returns the listen address for the configured port.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// CacheEnabled reports whether a Redis list cache should be used.
func (c *Config) CacheEnabled() bool {
	return c.RedisURL != "" && c.CacheTTL.Duration > 0
}
