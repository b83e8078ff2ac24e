// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// EnvPrefix is prepended to every environment override, e.g.
// SITECRAWLER_CRAWLER_CONCURRENCY=4.
const EnvPrefix = "SITECRAWLER"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// CrawlerConfig governs traversal and scheduling.
type CrawlerConfig struct {
	Concurrency          int     `mapstructure:"concurrency"`
	MaxRequestsPerSecond float64 `mapstructure:"max_requests_per_second"`
	FollowDepth          int     `mapstructure:"follow_depth"`
	TimeoutMs            int     `mapstructure:"timeout_ms"`
	UserAgent            string  `mapstructure:"user_agent"`
	MaxRetries           int     `mapstructure:"max_retries"`
}

// HTTPConfig configures the fetcher's HTTP client.
type HTTPConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig controls the optional status server. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// NewViper returns a Viper instance with defaults and environment overrides
// registered. Callers may bind flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads the optional config file at path into v, then decodes and
// validates the merged result. Precedence is flags, env, file, defaults.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := crawler.DefaultConfig()
	v.SetDefault("crawler.concurrency", def.MaxConcurrentRequests)
	v.SetDefault("crawler.max_requests_per_second", def.MaxRequestsPerSecond)
	v.SetDefault("crawler.follow_depth", def.MaxDepth)
	v.SetDefault("crawler.timeout_ms", 0)
	v.SetDefault("crawler.user_agent", def.UserAgent)
	v.SetDefault("crawler.max_retries", def.MaxRetries)
	v.SetDefault("http.request_timeout", "15s")
	v.SetDefault("logging.development", false)
	v.SetDefault("metrics.addr", "")
}

// Validate rejects negative limits and an unusable request timeout.
func (c Config) Validate() error {
	if c.Crawler.Concurrency < 0 {
		return fmt.Errorf("crawler.concurrency must be >= 0")
	}
	if c.Crawler.MaxRequestsPerSecond < 0 {
		return fmt.Errorf("crawler.max_requests_per_second must be >= 0")
	}
	if c.Crawler.FollowDepth < 0 {
		return fmt.Errorf("crawler.follow_depth must be >= 0")
	}
	if c.Crawler.TimeoutMs < 0 {
		return fmt.Errorf("crawler.timeout_ms must be >= 0")
	}
	if c.Crawler.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must be >= 0")
	}
	if c.HTTP.RequestTimeout <= 0 {
		return fmt.Errorf("http.request_timeout must be > 0")
	}
	return nil
}

// CrawlerConfig converts the loaded settings into a per-run crawler.Config.
// A zero rate or depth is explicit here, so it maps to crawler.Unthrottled or
// crawler.SeedOnly. Callbacks are left for the caller to set.
func (c Config) CrawlerConfig() crawler.Config {
	rps := c.Crawler.MaxRequestsPerSecond
	if rps == 0 {
		rps = crawler.Unthrottled
	}
	depth := c.Crawler.FollowDepth
	if depth == 0 {
		depth = crawler.SeedOnly
	}
	return crawler.Config{
		MaxConcurrentRequests: c.Crawler.Concurrency,
		MaxRequestsPerSecond:  rps,
		MaxDepth:              depth,
		Timeout:               time.Duration(c.Crawler.TimeoutMs) * time.Millisecond,
		MaxRetries:            c.Crawler.MaxRetries,
		UserAgent:             c.Crawler.UserAgent,
	}
}
