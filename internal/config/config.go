package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the PulseBoard server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Backend  BackendConfig
	Search   SearchConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port          int
	Env           string
	MigrationsDir string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// BackendConfig points at the analytics backend. A zero Timeout leaves
// backend requests unbounded.
type BackendConfig struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
}

type SearchConfig struct {
	MaxItems        int
	PollInterval    time.Duration
	MaxPollAttempts int
	RunStateTTL     time.Duration
}

type AuthConfig struct {
	DailySearchQuota  int
	RequestsPerMinute int
	OTPTTL            time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:          envInt("PULSEBOARD_PORT", 8080),
			Env:           envString("PULSEBOARD_ENV", "development"),
			MigrationsDir: envString("PULSEBOARD_MIGRATIONS_DIR", "migrations"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Backend: BackendConfig{
			BaseURL:  os.Getenv("BACKEND_BASE_URL"),
			APIToken: os.Getenv("BACKEND_API_TOKEN"),
			Timeout:  envDuration("BACKEND_REQUEST_TIMEOUT", 0),
		},
		Search: SearchConfig{
			MaxItems:        envInt("SEARCH_MAX_ITEMS", 100),
			PollInterval:    envDuration("SEARCH_POLL_INTERVAL", time.Second),
			MaxPollAttempts: envInt("SEARCH_MAX_POLL_ATTEMPTS", 30),
			RunStateTTL:     envDuration("RUN_STATE_TTL", time.Hour),
		},
		Auth: AuthConfig{
			DailySearchQuota:  envInt("DAILY_SEARCH_QUOTA", 20),
			RequestsPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
			OTPTTL:            envDurationSecs("OTP_TTL_SECS", 5*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("BACKEND_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return fmt.Errorf("BACKEND_BASE_URL must start with http:// or https://, got %q", c.Backend.BaseURL)
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("BACKEND_REQUEST_TIMEOUT must not be negative, got %s", c.Backend.Timeout)
	}

	if c.Search.MaxItems <= 0 {
		return fmt.Errorf("SEARCH_MAX_ITEMS must be positive, got %d", c.Search.MaxItems)
	}
	if c.Search.PollInterval <= 0 {
		return fmt.Errorf("SEARCH_POLL_INTERVAL must be positive, got %s", c.Search.PollInterval)
	}
	if c.Search.MaxPollAttempts <= 0 {
		return fmt.Errorf("SEARCH_MAX_POLL_ATTEMPTS must be positive, got %d", c.Search.MaxPollAttempts)
	}
	if c.Search.RunStateTTL <= 0 {
		return fmt.Errorf("RUN_STATE_TTL must be positive, got %s", c.Search.RunStateTTL)
	}

	if c.Auth.DailySearchQuota <= 0 {
		return fmt.Errorf("DAILY_SEARCH_QUOTA must be positive, got %d", c.Auth.DailySearchQuota)
	}
	if c.Auth.OTPTTL <= 0 {
		return fmt.Errorf("OTP_TTL_SECS must be positive, got %s", c.Auth.OTPTTL)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
