// Package models defines the configuration and job records shared by the
// commands.
package models

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration. Values come from defaults, an
// optional YAML file, .env and the environment, then CLI flags, in that
// order of increasing precedence.
type Config struct {
	DatabaseDSN string         `yaml:"database_dsn"`
	Feed        FeedConfig     `yaml:"feed"`
	Daily       DailyConfig    `yaml:"daily"`
	Backfill    BackfillConfig `yaml:"backfill"`
	CacheDir    string         `yaml:"cache_dir"`
	CacheTTL    time.Duration  `yaml:"cache_ttl"`
	LockDir     string         `yaml:"lock_dir"`
	MetricsAddr string         `yaml:"metrics_addr"`
}

type FeedConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Version        string        `yaml:"version"`
	UserAgent      string        `yaml:"user_agent"`
	Timeout        time.Duration `yaml:"timeout"`
	Retries        int           `yaml:"retries"`
	ProbeRetries   int           `yaml:"probe_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

type DailyConfig struct {
	JobName    string        `yaml:"job_name"`
	RunTimeout time.Duration `yaml:"run_timeout"`
	DaysBack   int           `yaml:"days_back"`
	LookBack   int           `yaml:"look_back"`
}

type BackfillConfig struct {
	JobName string `yaml:"job_name"`
	Threads int    `yaml:"threads"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		DatabaseDSN: "fpds.db",
		Feed: FeedConfig{
			BaseURL:        "https://www.fpds.gov/ezsearch/FEEDS/ATOM",
			Version:        "1.5.3",
			UserAgent:      "FPDS.me Client/2.0",
			Timeout:        6 * time.Minute,
			Retries:        5,
			ProbeRetries:   3,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     32 * time.Second,
		},
		Daily: DailyConfig{
			JobName:    "fpds_daily_ingestion",
			RunTimeout: 4 * time.Hour,
			DaysBack:   2,
			LookBack:   30,
		},
		Backfill: BackfillConfig{
			JobName: "fpds_backfill",
			Threads: 4,
		},
		CacheTTL: 12 * time.Hour,
	}
}

// LoadConfig builds the configuration. path may be empty; a .env file in the
// working directory is loaded when present and never overrides variables
// already set.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if dsn := postgresDSN(); dsn != "" {
		c.DatabaseDSN = dsn
	}
	c.DatabaseDSN = envString("FPDS_DB_DSN", c.DatabaseDSN)
	c.Feed.BaseURL = envString("FPDS_FEED_BASE_URL", c.Feed.BaseURL)
	c.Feed.Retries = envInt("FPDS_FETCH_RETRIES", c.Feed.Retries)
	c.Backfill.Threads = envInt("FPDS_THREADS", c.Backfill.Threads)
	c.CacheDir = envString("FPDS_CACHE_DIR", c.CacheDir)
	c.LockDir = envString("FPDS_LOCK_DIR", c.LockDir)
}

// postgresDSN follows the deployment convention: POSTGRES_URL wins,
// otherwise a URL is assembled from POSTGRES_HOST and friends.
func postgresDSN() string {
	if u := envString("POSTGRES_URL", ""); u != "" {
		return u
	}
	host := envString("POSTGRES_HOST", "")
	if host == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(envString("POSTGRES_USER", "postgres"), envString("POSTGRES_PASSWORD", "password")),
		Host:   host,
		Path:   "/" + envString("POSTGRES_DATABASE", "fpds_data"),
	}
	u.RawQuery = url.Values{"sslmode": {envString("POSTGRES_SSLMODE", "prefer")}}.Encode()
	return u.String()
}

// Validate rejects settings no run can work with.
func (c *Config) Validate() error {
	if c.Feed.BaseURL == "" {
		return errors.New("feed.base_url is required")
	}
	if _, err := url.Parse(c.Feed.BaseURL); err != nil {
		return fmt.Errorf("feed.base_url: %w", err)
	}
	if c.Feed.Retries < 0 || c.Feed.ProbeRetries < 0 {
		return errors.New("retries must not be negative")
	}
	if c.Daily.JobName == "" || c.Backfill.JobName == "" {
		return errors.New("job names are required")
	}
	if c.Daily.LookBack < 0 || c.Daily.DaysBack < 0 {
		return errors.New("daily look_back and days_back must not be negative")
	}
	return nil
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
