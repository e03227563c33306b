// Package config loads admin console configuration from the environment,
// an optional .env file and an optional YAML defaults file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config holds all configuration for adminctl and the web console.
type Config struct {
	API     APIConfig
	Session SessionConfig
	Log     LogConfig
	Console ConsoleConfig
}

// APIConfig describes the backend REST API.
type APIConfig struct {
	BaseURL string `env:"ADMIN_API_URL,default=http://localhost:3002"`
	APIKey  string `env:"ADMIN_API_KEY"`
	// Timeout of zero leaves requests to the transport's defaults.
	Timeout        time.Duration `env:"ADMIN_HTTP_TIMEOUT,default=0s"`
	RateLimitRPS   float64       `env:"ADMIN_RATE_LIMIT_RPS,default=0"`
	RateLimitBurst int           `env:"ADMIN_RATE_LIMIT_BURST,default=1"`
}

// SessionConfig describes where adminctl persists its session.
type SessionConfig struct {
	File string `env:"ADMIN_SESSION_FILE"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `env:"ADMIN_LOG_LEVEL,default=info"`
	Format string `env:"ADMIN_LOG_FORMAT,default=text"`
}

// ConsoleConfig configures the web console server.
type ConsoleConfig struct {
	Addr           string        `env:"CONSOLE_ADDR,default=:8090"`
	SessionBackend string        `env:"CONSOLE_SESSION_BACKEND,default=memory"`
	RedisURL       string        `env:"CONSOLE_REDIS_URL,default=redis://localhost:6379/0"`
	SessionTTL     time.Duration `env:"CONSOLE_SESSION_TTL,default=24h"`
	LoginRPS       float64       `env:"CONSOLE_LOGIN_RPS,default=1"`
	LoginBurst     int           `env:"CONSOLE_LOGIN_BURST,default=5"`
	SecureCookie   bool          `env:"CONSOLE_SECURE_COOKIE,default=false"`
}

const (
	// BackendMemory keeps console sessions in process memory.
	BackendMemory = "memory"
	// BackendRedis keeps console sessions in Redis.
	BackendRedis = "redis"
)

// ConfigFileEnv names the variable pointing at the optional YAML defaults file.
const ConfigFileEnv = "ADMIN_CONFIG_FILE"

// Load reads .env (if present), applies the YAML defaults file named by
// ADMIN_CONFIG_FILE (if set), decodes the environment and validates the result.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	if path := strings.TrimSpace(os.Getenv(ConfigFileEnv)); path != "" {
		if err := ApplyFile(path); err != nil {
			return nil, err
		}
	}

	return FromEnv()
}

// FromEnv decodes and validates configuration from the current environment.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalizes and checks the configuration.
func (c *Config) Validate() error {
	baseURL := strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if baseURL == "" {
		return fmt.Errorf("ADMIN_API_URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("ADMIN_API_URL must be a valid URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("ADMIN_API_URL scheme must be http or https")
	}
	if parsed.User != nil {
		return fmt.Errorf("ADMIN_API_URL must not include user info")
	}
	c.API.BaseURL = baseURL
	c.API.APIKey = strings.TrimSpace(c.API.APIKey)

	if c.API.Timeout < 0 {
		return fmt.Errorf("ADMIN_HTTP_TIMEOUT must not be negative")
	}
	if c.API.RateLimitRPS < 0 {
		return fmt.Errorf("ADMIN_RATE_LIMIT_RPS must not be negative")
	}
	if c.API.RateLimitBurst <= 0 {
		c.API.RateLimitBurst = 1
	}

	if c.Session.File == "" {
		c.Session.File = DefaultSessionFile()
	}

	switch strings.ToLower(strings.TrimSpace(c.Console.SessionBackend)) {
	case "", BackendMemory:
		c.Console.SessionBackend = BackendMemory
	case BackendRedis:
		c.Console.SessionBackend = BackendRedis
		if strings.TrimSpace(c.Console.RedisURL) == "" {
			return fmt.Errorf("CONSOLE_REDIS_URL is required for the redis session backend")
		}
	default:
		return fmt.Errorf("CONSOLE_SESSION_BACKEND must be %q or %q", BackendMemory, BackendRedis)
	}
	if c.Console.SessionTTL <= 0 {
		c.Console.SessionTTL = 24 * time.Hour
	}
	if c.Console.LoginBurst <= 0 {
		c.Console.LoginBurst = 1
	}

	return nil
}

// DefaultSessionFile returns the per-user session file used by adminctl.
func DefaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "admin-console", "session.json")
}
