// Package config loads application configuration from environment variables.
// All variables use the ATENA_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	SQLite     SQLiteConfig
	Cache      CacheConfig
	Log        LogConfig
	Extraction ExtractionConfig
	Topic      TopicConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig holds PostgreSQL connection settings. An empty URL keeps
// exercises in memory.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
	Migrate  bool // apply the schema at startup
}

// SQLiteConfig holds the local database used by the batch CLI.
type SQLiteConfig struct {
	Path string
}

// CacheConfig holds Dragonfly/Redis connection settings. An empty URL
// disables the result cache.
type CacheConfig struct {
	URL string
	TTL time.Duration
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// ExtractionConfig tunes the batch runner.
type ExtractionConfig struct {
	Workers int // 0 means GOMAXPROCS
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// TopicConfig holds classifier settings.
type TopicConfig struct {
	RulesPath string // YAML keyword tables, empty for the built-in ones
	HintFrom  int    // question range mapped to Mathematics; 0 disables the hint
	HintTo    int
}

// Load reads configuration from environment variables with ATENA_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("ATENA_SERVER_PORT", 8080),
			Host: envStr("ATENA_SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			URL:      envStr("ATENA_DATABASE_URL", ""),
			MaxConns: envInt("ATENA_DATABASE_MAX_CONNS", 10),
			MinConns: envInt("ATENA_DATABASE_MIN_CONNS", 2),
			Migrate:  envBool("ATENA_DATABASE_MIGRATE", true),
		},
		SQLite: SQLiteConfig{
			Path: envStr("ATENA_SQLITE_PATH", "./data/atena.db"),
		},
		Cache: CacheConfig{
			URL: envStr("ATENA_CACHE_URL", ""),
			TTL: envDuration("ATENA_CACHE_TTL", 24*time.Hour),
		},
		Log: LogConfig{
			Level:  envStr("ATENA_LOG_LEVEL", "info"),
			Format: envStr("ATENA_LOG_FORMAT", "json"),
		},
		Extraction: ExtractionConfig{
			Workers: envInt("ATENA_EXTRACT_WORKERS", 0),
			Timeout: envDuration("ATENA_EXTRACT_TIMEOUT", 2*time.Minute),
			Retries: envInt("ATENA_EXTRACT_RETRIES", 3),
			Backoff: envDuration("ATENA_EXTRACT_BACKOFF", 500*time.Millisecond),
		},
		Topic: TopicConfig{
			RulesPath: envStr("ATENA_TOPIC_RULES_PATH", ""),
			HintFrom:  envInt("ATENA_HINT_FROM", 136),
			HintTo:    envInt("ATENA_HINT_TO", 180),
		},
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("ATENA_SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Extraction.Workers < 0 {
		return fmt.Errorf("ATENA_EXTRACT_WORKERS must not be negative, got %d", c.Extraction.Workers)
	}

	if c.Extraction.Retries < 0 {
		return fmt.Errorf("ATENA_EXTRACT_RETRIES must not be negative, got %d", c.Extraction.Retries)
	}

	if c.Extraction.Timeout <= 0 {
		return fmt.Errorf("ATENA_EXTRACT_TIMEOUT must be positive, got %s", c.Extraction.Timeout)
	}

	if c.Topic.HintFrom != 0 || c.Topic.HintTo != 0 {
		if c.Topic.HintFrom < 1 || c.Topic.HintTo > 180 || c.Topic.HintFrom > c.Topic.HintTo {
			return fmt.Errorf("hint range %d-%d must lie within 1-180", c.Topic.HintFrom, c.Topic.HintTo)
		}
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("ATENA_LOG_FORMAT must be 'json' or 'text', got %q", c.Log.Format)
	}

	return nil
}

// HasDatabase returns true if a PostgreSQL URL is configured.
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// HasCache returns true if a Redis URL is configured.
func (c *Config) HasCache() bool {
	return c.Cache.URL != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
