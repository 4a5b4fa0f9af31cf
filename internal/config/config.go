package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Security   SecurityConfig   `yaml:"security" envconfig:"SECURITY"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Session    SessionConfig    `yaml:"session" envconfig:"SESSION"`
	Enrichment EnrichmentConfig `yaml:"enrichment" envconfig:"ENRICHMENT"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Output      string `yaml:"output" envconfig:"OUTPUT"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// SessionConfig controls lifecycle of uploaded library sessions
type SessionConfig struct {
	IdleTTL       time.Duration `yaml:"idle_ttl" envconfig:"IDLE_TTL"`
	SweepInterval time.Duration `yaml:"sweep_interval" envconfig:"SWEEP_INTERVAL"`
	MaxSessions   int           `yaml:"max_sessions" envconfig:"MAX_SESSIONS"`
	DefaultTopN   int           `yaml:"default_top_n" envconfig:"DEFAULT_TOP_N"`
	MaxTopN       int           `yaml:"max_top_n" envconfig:"MAX_TOP_N"`
}

// EnrichmentConfig controls the genre lookup fetcher
type EnrichmentConfig struct {
	BaseURL           string        `yaml:"base_url" envconfig:"BASE_URL"`
	Workers           int           `yaml:"workers" envconfig:"WORKERS"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout" envconfig:"FETCH_TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" envconfig:"REQUESTS_PER_SECOND"`
	Burst             int           `yaml:"burst" envconfig:"BURST"`
	UserAgent         string        `yaml:"user_agent" envconfig:"USER_AGENT"`
}

// Load loads configuration from environment variables and an optional
// config.yaml next to the binary. Environment variables win.
func Load() (*Config, error) {
	return LoadFromFile(configFilePath())
}

// LoadFromFile layers configuration lowest to highest precedence: built-in
// defaults, then the YAML file at path when it exists, then SHELFSTATS_*
// environment variables. envconfig carries no struct defaults, so an unset
// variable never clobbers a file-provided value.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := envconfig.Process("SHELFSTATS", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with no file or environment
// overrides. Used as the base layer by LoadFromFile and directly by tests
// and the CLI.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			MaxUploadBytes:  32 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:       "info",
			Output:      "stdout",
			FilePath:    "logs/shelfstats.log",
			Development: true,
		},
		Session: SessionConfig{
			IdleTTL:       2 * time.Hour,
			SweepInterval: 10 * time.Minute,
			MaxSessions:   256,
			DefaultTopN:   10,
			MaxTopN:       100,
		},
		Enrichment: EnrichmentConfig{
			BaseURL:           "https://www.goodreads.com/book/show/",
			Workers:           8,
			FetchTimeout:      15 * time.Second,
			RequestsPerSecond: 0.5,
			Burst:             1,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		},
	}
}

func configFilePath() string {
	if p := os.Getenv("SHELFSTATS_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch strings.ToLower(c.Logging.Output) {
	case "stdout", "file", "both":
	default:
		return fmt.Errorf("invalid log output: %s", c.Logging.Output)
	}

	if c.Enrichment.Workers < 1 {
		return fmt.Errorf("enrichment workers must be >= 1, got %d", c.Enrichment.Workers)
	}
	if c.Enrichment.RequestsPerSecond <= 0 {
		return fmt.Errorf("enrichment requests_per_second must be > 0, got %f", c.Enrichment.RequestsPerSecond)
	}
	if !strings.HasPrefix(c.Enrichment.BaseURL, "http://") && !strings.HasPrefix(c.Enrichment.BaseURL, "https://") {
		return fmt.Errorf("enrichment base_url must be an http(s) URL: %s", c.Enrichment.BaseURL)
	}

	if c.Session.DefaultTopN > c.Session.MaxTopN {
		return fmt.Errorf("session default_top_n (%d) exceeds max_top_n (%d)", c.Session.DefaultTopN, c.Session.MaxTopN)
	}

	return nil
}
