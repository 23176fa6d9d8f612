package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/robfig/cron/v3"
)

// DefaultAPIURL is the Honolulu open-data 311 resource.
const DefaultAPIURL = "https://data.honolulu.gov/resource/6hui-dvrh.json"

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL environment variable is required")
	ErrInvalidPageLimit   = errors.New("ingest page limit must be between 1 and 50000")
	ErrInvalidMaxPages    = errors.New("ingest max pages must be at least 1")
)

// Config holds settings shared by the API server and the ingestion tools.
type Config struct {
	DatabaseURL    string   `yaml:"database_url"`
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	LogLevel       string   `yaml:"log_level"`
	LogFormat      string   `yaml:"log_format"`

	Ingest IngestConfig `yaml:"ingest"`
}

// IngestConfig controls how records are pulled from the open-data API.
type IngestConfig struct {
	APIURL    string        `yaml:"api_url"`
	AppToken  string        `yaml:"app_token"`  // optional Socrata X-App-Token
	PageLimit int           `yaml:"page_limit"` // $limit per request
	MaxPages  int           `yaml:"max_pages"`
	Timeout   time.Duration `yaml:"timeout"`

	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	MaxRetries    int           `yaml:"max_retries"`
	Backoff       time.Duration `yaml:"backoff"`
	MaxBackoff    time.Duration `yaml:"max_backoff"`

	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`

	// Schedule is a cron expression; empty means run once.
	Schedule string `yaml:"schedule"`
}

func Defaults() Config {
	return Config{
		Port: "5050",
		AllowedOrigins: []string{
			"http://localhost:5050",
			"http://localhost:5173",
		},
		LogLevel:  "info",
		LogFormat: "json",
		Ingest: IngestConfig{
			APIURL:          DefaultAPIURL,
			PageLimit:       1000,
			MaxPages:        1,
			Timeout:         30 * time.Second,
			RatePerSecond:   1,
			Burst:           1,
			MaxRetries:      3,
			Backoff:         500 * time.Millisecond,
			MaxBackoff:      5 * time.Second,
			BreakerFailures: 5,
			BreakerTimeout:  time.Minute,
		},
	}
}

// LoadFromEnv builds a Config from defaults overridden by environment variables.
//
// Environment variables:
//   - DATABASE_URL: Postgres DSN (required)
//   - PORT: API listen port (default: 5050)
//   - CORS_ALLOWED_ORIGINS: comma-separated origin allow-list
//   - LOG_LEVEL, LOG_FORMAT: logger settings (info, json)
//   - SR311_API_URL, SR311_APP_TOKEN, SR311_PAGE_LIMIT, SR311_MAX_PAGES, SR311_HTTP_TIMEOUT,
//     SR311_RATE_PER_SECOND, SR311_MAX_RETRIES, SR311_SCHEDULE
func LoadFromEnv() (Config, error) {
	cfg := Defaults()
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads the YAML file at path (if non-empty) over the defaults, then
// applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")
	setString(&cfg.Ingest.APIURL, "SR311_API_URL")
	setString(&cfg.Ingest.AppToken, "SR311_APP_TOKEN")
	setString(&cfg.Ingest.Schedule, "SR311_SCHEDULE")

	if v := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	if err := setInt(&cfg.Ingest.PageLimit, "SR311_PAGE_LIMIT"); err != nil {
		return err
	}
	if err := setInt(&cfg.Ingest.MaxPages, "SR311_MAX_PAGES"); err != nil {
		return err
	}
	if err := setInt(&cfg.Ingest.MaxRetries, "SR311_MAX_RETRIES"); err != nil {
		return err
	}
	if v := strings.TrimSpace(os.Getenv("SR311_HTTP_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SR311_HTTP_TIMEOUT: %w", err)
		}
		cfg.Ingest.Timeout = d
	}
	if v := strings.TrimSpace(os.Getenv("SR311_RATE_PER_SECOND")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SR311_RATE_PER_SECOND: %w", err)
		}
		cfg.Ingest.RatePerSecond = f
	}
	return nil
}

// Validate checks the fields every binary depends on.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return ErrMissingDatabaseURL
	}
	return c.Ingest.Validate()
}

func (c IngestConfig) Validate() error {
	if c.PageLimit < 1 || c.PageLimit > 50000 {
		return ErrInvalidPageLimit
	}
	if c.MaxPages < 1 {
		return ErrInvalidMaxPages
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("invalid ingest schedule %q: %w", c.Schedule, err)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
