// Package config loads the process configuration from the environment,
// following the recognized-key set in the system's external interface
// contract. Malformed values for the crawler keys are rejected; DEBUG and
// NOTIFIER_ENABLED fall back to their defaults when malformed. Nothing is
// accepted as a loose option bag.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// CrawlerConfig holds the crawler.* recognized options.
type CrawlerConfig struct {
	Concurrency      int
	Timeout          time.Duration
	Delay            time.Duration
	MaxPages         int
	RespectRobotsTxt bool
	UserAgent        string
}

// ScanFrequencies holds the three cron expressions the scheduler registers.
type ScanFrequencies struct {
	Daily   string
	Weekly  string
	Monthly string
}

// Config is the fully loaded process configuration.
type Config struct {
	Port            string
	Env             string
	StoreURL        string
	StoreServiceKey string
	QueueURL        string
	QueueToken      string
	NotifierAPIKey  string
	NotifierEnabled bool
	Debug           bool
	Crawler         CrawlerConfig
	ScanFrequencies ScanFrequencies
}

const (
	defaultUserAgent = "RankRiot Crawler/1.0 (+https://rankriot.app/bot)"
)

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		Port: "8080",
		Env:  "development",
		Crawler: CrawlerConfig{
			Concurrency:      3,
			Timeout:          30 * time.Second,
			Delay:            1 * time.Second,
			MaxPages:         100,
			RespectRobotsTxt: true,
			UserAgent:        defaultUserAgent,
		},
		ScanFrequencies: ScanFrequencies{
			Daily:   "0 0 * * *",
			Weekly:  "0 0 * * 0",
			Monthly: "0 0 1 * *",
		},
	}
}

// Load reads a local .env file if present (ignored if absent) and then
// overlays recognized environment variables onto the defaults. It returns
// a wrapped error, never a panic, so callers can os.Exit(1) per the
// startup-error contract.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("NODE_ENV"); v != "" {
		cfg.Env = v
	}
	cfg.Debug = boolEnv("DEBUG", false)

	cfg.StoreURL = os.Getenv("STORE_URL")
	cfg.StoreServiceKey = os.Getenv("STORE_SERVICE_KEY")
	cfg.QueueURL = os.Getenv("QUEUE_URL")
	cfg.QueueToken = os.Getenv("QUEUE_TOKEN")
	cfg.NotifierAPIKey = os.Getenv("NOTIFIER_API_KEY")
	cfg.NotifierEnabled = boolEnv("NOTIFIER_ENABLED", cfg.NotifierAPIKey != "")

	var err error
	if cfg.Crawler.Concurrency, err = intEnv("CRAWLER_CONCURRENCY", cfg.Crawler.Concurrency); err != nil {
		return nil, err
	}
	if cfg.Crawler.Timeout, err = durationEnvMs("CRAWLER_TIMEOUT_MS", cfg.Crawler.Timeout); err != nil {
		return nil, err
	}
	if cfg.Crawler.Delay, err = durationEnvMs("CRAWLER_DELAY_MS", cfg.Crawler.Delay); err != nil {
		return nil, err
	}
	if cfg.Crawler.MaxPages, err = intEnv("CRAWLER_MAX_PAGES", cfg.Crawler.MaxPages); err != nil {
		return nil, err
	}
	if cfg.Crawler.RespectRobotsTxt, err = boolEnvStrict("CRAWLER_RESPECT_ROBOTS_TXT", cfg.Crawler.RespectRobotsTxt); err != nil {
		return nil, err
	}
	if v := os.Getenv("CRAWLER_USER_AGENT"); v != "" {
		cfg.Crawler.UserAgent = v
	}

	if v := os.Getenv("SCAN_FREQUENCY_DAILY"); v != "" {
		cfg.ScanFrequencies.Daily = v
	}
	if v := os.Getenv("SCAN_FREQUENCY_WEEKLY"); v != "" {
		cfg.ScanFrequencies.Weekly = v
	}
	if v := os.Getenv("SCAN_FREQUENCY_MONTHLY"); v != "" {
		cfg.ScanFrequencies.Monthly = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required fields and recognized options hold sane
// values.
func (c *Config) Validate() error {
	if c.StoreURL == "" {
		return fmt.Errorf("config: STORE_URL is required")
	}
	if c.StoreServiceKey == "" {
		return fmt.Errorf("config: STORE_SERVICE_KEY is required")
	}
	if c.Crawler.Concurrency < 1 {
		return fmt.Errorf("config: crawler.concurrency must be at least 1")
	}
	if c.Crawler.MaxPages < 1 {
		return fmt.Errorf("config: crawler.maxPages must be at least 1")
	}
	if c.Crawler.UserAgent == "" {
		return fmt.Errorf("config: crawler.userAgent must not be empty")
	}
	return nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid integer for %s: %w", key, err)
	}
	return n, nil
}

func durationEnvMs(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid duration (ms) for %s: %w", key, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func boolEnv(key string, def bool) bool {
	v, err := boolEnvStrict(key, def)
	if err != nil {
		return def
	}
	return v
}

func boolEnvStrict(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: invalid boolean for %s: %w", key, err)
	}
	return b, nil
}
