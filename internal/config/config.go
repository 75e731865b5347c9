package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`

	// Storage
	MongoURI      string `yaml:"mongodb_uri"`
	MongoDatabase string `yaml:"mongodb_database"`
	RedisURL      string `yaml:"redis_url"` // optional, enables point events

	// HTTP facade
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	DefaultPageSize int64         `yaml:"default_page_size"`
	MaxPageSize     int64         `yaml:"max_page_size"`
	RateLimitMax    int           `yaml:"rate_limit_max"` // requests per minute per IP
	AllowedOrigins  string        `yaml:"allowed_origins"`

	// Background jobs
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Port:                "3001",
		Environment:         "development",
		MongoURI:            "mongodb://localhost:27017/fiap",
		MongoDatabase:       "",
		RedisURL:            "",
		RequestTimeout:      30 * time.Second,
		DefaultPageSize:     100,
		MaxPageSize:         1000,
		RateLimitMax:        300,
		AllowedOrigins:      "*",
		HealthCheckInterval: time.Minute,
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// FIAP_CONFIG, and environment variables, in that order of precedence.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("FIAP_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the keys present in a YAML file onto cfg
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)

	c.MongoURI = getEnv("MONGODB_URI", c.MongoURI)
	c.MongoDatabase = getEnv("MONGODB_DATABASE", c.MongoDatabase)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)

	c.RequestTimeout = getDurationEnv("REQUEST_TIMEOUT", c.RequestTimeout)
	c.DefaultPageSize = int64(getIntEnv("DEFAULT_PAGE_SIZE", int(c.DefaultPageSize)))
	c.MaxPageSize = int64(getIntEnv("MAX_PAGE_SIZE", int(c.MaxPageSize)))
	c.RateLimitMax = getIntEnv("RATE_LIMIT_MAX", c.RateLimitMax)
	c.AllowedOrigins = getEnv("ALLOWED_ORIGINS", c.AllowedOrigins)

	c.HealthCheckInterval = getDurationEnv("HEALTH_CHECK_INTERVAL", c.HealthCheckInterval)
}

// Validate reports settings the server cannot start with
func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("MONGODB_URI is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.DefaultPageSize < 0 || c.MaxPageSize < 0 {
		return fmt.Errorf("page sizes must not be negative")
	}
	if c.MaxPageSize > 0 && c.DefaultPageSize > c.MaxPageSize {
		return fmt.Errorf("default page size %d exceeds max page size %d", c.DefaultPageSize, c.MaxPageSize)
	}
	if c.HealthCheckInterval <= 0 {
		return fmt.Errorf("health check interval must be positive, got %s", c.HealthCheckInterval)
	}
	return nil
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go durations ("30s") or plain seconds ("30")
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
