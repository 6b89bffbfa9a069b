// Package config loads service settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/deusflow/feedharvest/internal/scheduler"
)

const (
	DriverMemory   = "memory"
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
)

// DefaultFeeds are the IoT feeds ingested when RSS_FEEDS is not set.
var DefaultFeeds = []string{
	"https://www.iottechnews.com/feed/",
	"https://www.iot-now.com/feed/",
	"https://iotbusinessnews.com/feed/",
	"https://www.iotinsider.com/feed/",
}

type Config struct {
	// Feeds
	Feeds           []string
	FeedsConfigPath string

	// Scheduling
	FetchInterval   string
	CleanupSchedule string
	RetentionDays   int
	InitialDelay    time.Duration

	// Storage
	StoreDriver         string
	DatabaseURL         string
	BoltPath            string
	StoreCapacity       int
	StoreEvictBatch     int
	StoreConnectRetries int
	StoreConnectBackoff time.Duration

	// Fetching and scraping
	FeedTimeout       time.Duration
	PageTimeout       time.Duration
	ScrapeConcurrency int
	ScrapeMaxPages    int
	PageCacheTTL      time.Duration
	UserAgent         string

	// Lookup tables and sinks
	DomainsConfigPath string
	PublishersFile    string

	// Process
	HTTPAddr  string
	LogLevel  string
	LogFormat string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("RSS_FEEDS", strings.Join(DefaultFeeds, ","))
	v.SetDefault("FEEDS_CONFIG_PATH", "")
	v.SetDefault("RSS_FETCH_INTERVAL", scheduler.DefaultInterval)
	v.SetDefault("CLEANUP_SCHEDULE", scheduler.DefaultCleanup)
	v.SetDefault("RETENTION_DAYS", 90)
	v.SetDefault("INITIAL_DELAY", "10s")
	v.SetDefault("STORE_DRIVER", DriverMemory)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("BOLT_PATH", "data/articles.db")
	v.SetDefault("STORE_CAPACITY", 10000)
	v.SetDefault("STORE_EVICT_BATCH", 1000)
	v.SetDefault("STORE_CONNECT_RETRIES", 5)
	v.SetDefault("STORE_CONNECT_BACKOFF", "5s")
	v.SetDefault("FEED_TIMEOUT", "30s")
	v.SetDefault("PAGE_TIMEOUT", "8s")
	v.SetDefault("SCRAPE_CONCURRENCY", 4)
	v.SetDefault("SCRAPE_MAX_PAGES", 50)
	v.SetDefault("PAGE_CACHE_TTL", "6h")
	v.SetDefault("USER_AGENT", "feedharvest/1.0 (+RSS ingestion)")
	v.SetDefault("DOMAINS_CONFIG_PATH", "")
	v.SetDefault("PUBLISHERS_FILE", "")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// Load reads the configuration. Values from .env never override variables
// already present in the process environment. A variable set to the empty
// string counts as set, so HTTP_ADDR= disables the monitor.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	cfg := &Config{
		Feeds:           splitList(v.GetString("RSS_FEEDS")),
		FeedsConfigPath: strings.TrimSpace(v.GetString("FEEDS_CONFIG_PATH")),

		FetchInterval:   strings.TrimSpace(v.GetString("RSS_FETCH_INTERVAL")),
		CleanupSchedule: strings.TrimSpace(v.GetString("CLEANUP_SCHEDULE")),
		RetentionDays:   v.GetInt("RETENTION_DAYS"),
		InitialDelay:    v.GetDuration("INITIAL_DELAY"),

		StoreDriver:         strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER"))),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		BoltPath:            v.GetString("BOLT_PATH"),
		StoreCapacity:       v.GetInt("STORE_CAPACITY"),
		StoreEvictBatch:     v.GetInt("STORE_EVICT_BATCH"),
		StoreConnectRetries: v.GetInt("STORE_CONNECT_RETRIES"),
		StoreConnectBackoff: v.GetDuration("STORE_CONNECT_BACKOFF"),

		FeedTimeout:       v.GetDuration("FEED_TIMEOUT"),
		PageTimeout:       v.GetDuration("PAGE_TIMEOUT"),
		ScrapeConcurrency: v.GetInt("SCRAPE_CONCURRENCY"),
		ScrapeMaxPages:    v.GetInt("SCRAPE_MAX_PAGES"),
		PageCacheTTL:      v.GetDuration("PAGE_CACHE_TTL"),
		UserAgent:         v.GetString("USER_AGENT"),

		DomainsConfigPath: strings.TrimSpace(v.GetString("DOMAINS_CONFIG_PATH")),
		PublishersFile:    strings.TrimSpace(v.GetString("PUBLISHERS_FILE")),

		HTTPAddr:  strings.TrimSpace(v.GetString("HTTP_ADDR")),
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}

	return cfg, cfg.Validate()
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

// Retention returns RetentionDays as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func (c *Config) Validate() error {
	if len(c.Feeds) == 0 && c.FeedsConfigPath == "" {
		return fmt.Errorf("RSS_FEEDS or FEEDS_CONFIG_PATH is required")
	}
	if _, err := scheduler.ParseCadence(c.FetchInterval); err != nil {
		return fmt.Errorf("RSS_FETCH_INTERVAL: %w", err)
	}
	if _, err := scheduler.ParseCadence(c.CleanupSchedule); err != nil {
		return fmt.Errorf("CLEANUP_SCHEDULE: %w", err)
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("RETENTION_DAYS must be positive")
	}
	if c.InitialDelay < 0 {
		return fmt.Errorf("INITIAL_DELAY must not be negative")
	}

	switch c.StoreDriver {
	case DriverMemory, DriverBolt:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of memory, bolt, postgres")
	}
	if c.StoreDriver == DriverBolt && c.BoltPath == "" {
		return fmt.Errorf("BOLT_PATH is required for the bolt driver")
	}
	if c.StoreCapacity < 0 || c.StoreEvictBatch < 0 {
		return fmt.Errorf("STORE_CAPACITY and STORE_EVICT_BATCH must not be negative")
	}
	if c.StoreConnectRetries < 1 {
		return fmt.Errorf("STORE_CONNECT_RETRIES must be at least 1")
	}

	if c.FeedTimeout <= 0 || c.PageTimeout <= 0 {
		return fmt.Errorf("FEED_TIMEOUT and PAGE_TIMEOUT must be positive")
	}
	if c.ScrapeConcurrency < 1 {
		return fmt.Errorf("SCRAPE_CONCURRENCY must be at least 1")
	}
	if c.ScrapeMaxPages < 0 {
		return fmt.Errorf("SCRAPE_MAX_PAGES must not be negative")
	}
	return nil
}
