// Package config loads application configuration from the environment,
// after merging a .env file when one is present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage and session backends.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	SessionsMemory = "memory"
	SessionsRedis  = "redis"
)

// minRememberSecret matches what auth.NewRememberSigner accepts.
const (
	minRememberSecret           = 16
	minProductionRememberSecret = 32
)

// Config holds every setting the server reads at startup.
type Config struct {
	Port      string `mapstructure:"PORT"`
	Env       string `mapstructure:"APP_ENV"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	DBDriver    string `mapstructure:"DB_DRIVER"`
	DBPath      string `mapstructure:"DB_PATH"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	SessionBackend     string        `mapstructure:"SESSION_BACKEND"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	SessionTTL         time.Duration `mapstructure:"SESSION_TTL"`
	SessionIdleTimeout time.Duration `mapstructure:"SESSION_IDLE_TIMEOUT"`
	SessionCookieName  string        `mapstructure:"SESSION_COOKIE_NAME"`
	CookieSecure       bool          `mapstructure:"COOKIE_SECURE"`
	RememberSecret     string        `mapstructure:"REMEMBER_SECRET"`

	LoginMaxFailures   int           `mapstructure:"LOGIN_MAX_FAILURES"`
	LoginFailureWindow time.Duration `mapstructure:"LOGIN_FAILURE_WINDOW"`

	GitHubClientID     string `mapstructure:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `mapstructure:"GITHUB_CLIENT_SECRET"`
	GitHubCallbackURL  string `mapstructure:"GITHUB_CALLBACK_URL"`
}

var defaults = map[string]any{
	"PORT":                 "8080",
	"APP_ENV":              "development",
	"LOG_LEVEL":            "info",
	"LOG_FORMAT":           "text",
	"DB_DRIVER":            DriverSQLite,
	"DB_PATH":              "data/closet.db",
	"DATABASE_URL":         "",
	"SESSION_BACKEND":      SessionsMemory,
	"REDIS_URL":            "localhost:6379",
	"SESSION_TTL":          "24h",
	"SESSION_IDLE_TIMEOUT": "2h",
	"SESSION_COOKIE_NAME":  "closet_session",
	"COOKIE_SECURE":        false,
	"REMEMBER_SECRET":      "",
	"LOGIN_MAX_FAILURES":   5,
	"LOGIN_FAILURE_WINDOW": "15m",
	"GITHUB_CLIENT_ID":     "",
	"GITHUB_CLIENT_SECRET": "",
	"GITHUB_CALLBACK_URL":  "",
}

// Load reads .env (if present) into the process environment without
// overriding variables that are already set, then decodes the environment
// into a Config and validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.SessionBackend = strings.ToLower(strings.TrimSpace(c.SessionBackend))
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}

	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return errors.New("DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("DB_DRIVER %q is not one of sqlite, postgres", c.DBDriver)
	}

	switch c.SessionBackend {
	case SessionsMemory:
	case SessionsRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis session backend")
		}
	default:
		return fmt.Errorf("SESSION_BACKEND %q is not one of memory, redis", c.SessionBackend)
	}

	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.SessionIdleTimeout <= 0 {
		return errors.New("SESSION_IDLE_TIMEOUT must be positive")
	}
	if c.SessionCookieName == "" {
		return errors.New("SESSION_COOKIE_NAME is required")
	}
	if c.LoginMaxFailures > 0 && c.LoginFailureWindow <= 0 {
		return errors.New("LOGIN_FAILURE_WINDOW must be positive when LOGIN_MAX_FAILURES is set")
	}

	if c.RememberSecret != "" {
		minLen := minRememberSecret
		if c.IsProduction() {
			minLen = minProductionRememberSecret
		}
		if len(c.RememberSecret) < minLen {
			return fmt.Errorf("REMEMBER_SECRET must be at least %d characters", minLen)
		}
	}

	if c.GitHubClientID != "" && (c.GitHubClientSecret == "" || c.GitHubCallbackURL == "") {
		return errors.New("GITHUB_CLIENT_SECRET and GITHUB_CALLBACK_URL are required with GITHUB_CLIENT_ID")
	}

	if _, ok := logLevels[c.LogLevel]; !ok {
		return fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != ""
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// SlogLevel converts LOG_LEVEL; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	if l, ok := logLevels[c.LogLevel]; ok {
		return l
	}
	return slog.LevelInfo
}

// JSONLogs reports whether LOG_FORMAT asks for the JSON handler.
func (c *Config) JSONLogs() bool {
	return c.LogFormat == "json"
}
