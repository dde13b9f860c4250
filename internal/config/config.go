// Package config loads and validates scanner configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
)

// EnvPrefix is prepended to every environment override, e.g. JOBSCAN_SERVER_PORT.
const EnvPrefix = "JOBSCAN"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Document DocumentConfig `mapstructure:"document"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Portals  []PortalEntry  `mapstructure:"portals"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	Workers        int `mapstructure:"workers"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs the scan fan-out and politeness.
type CrawlerConfig struct {
	UserAgent    string  `mapstructure:"user_agent"`
	Concurrency  int     `mapstructure:"concurrency"`
	QueueDepth   int     `mapstructure:"queue_depth"`
	PerHostRPS   float64 `mapstructure:"per_host_rps"`
	PerHostBurst int     `mapstructure:"per_host_burst"`
	IgnoreRobots bool    `mapstructure:"ignore_robots"`
}

// HTTPConfig configures HTTP client retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
	MaxBodyBytes     int `mapstructure:"max_body_bytes"`
}

// HeadlessConfig configures the browser used for rendering and dynamic portals.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	WaitTimeoutSec  int  `mapstructure:"wait_timeout_seconds"`
	SettleMs        int  `mapstructure:"settle_ms"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
	PromoteStatic   bool `mapstructure:"promote_static"`
}

// DocumentConfig controls linked PDF inspection.
type DocumentConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	MaxBytes int64  `mapstructure:"max_bytes"`
	TempDir  string `mapstructure:"temp_dir"`
}

// StorageConfig selects where scans are kept and where finished scans are exported.
type StorageConfig struct {
	Backend    string `mapstructure:"backend"`
	BaseDir    string `mapstructure:"base_dir"`
	GCSBucket  string `mapstructure:"gcs_bucket"`
	GCSCache   string `mapstructure:"gcs_cache_control"`
	Prefix     string `mapstructure:"prefix"`
	ScanStore  string `mapstructure:"scan_store"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// PortalEntry is the configuration spelling of one portal.
type PortalEntry struct {
	Name        string                `mapstructure:"name"`
	URLTemplate string                `mapstructure:"url_template"`
	BaseURL     string                `mapstructure:"base_url"`
	Kind        string                `mapstructure:"kind"`
	Dynamic     jobs.DynamicSelectors `mapstructure:"dynamic"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.workers", 2)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("crawler.user_agent", "govjob-scanner/0.1")
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.per_host_rps", 1.0)
	v.SetDefault("crawler.per_host_burst", 2)
	v.SetDefault("crawler.ignore_robots", false)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.wait_timeout_seconds", 10)
	v.SetDefault("headless.settle_ms", 2000)
	v.SetDefault("headless.promotion_threshold", 60)
	v.SetDefault("headless.promote_static", false)
	v.SetDefault("document.enabled", true)
	v.SetDefault("document.max_bytes", 20<<20)
	v.SetDefault("document.temp_dir", "")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.base_dir", "exports")
	v.SetDefault("storage.prefix", "scans")
	v.SetDefault("storage.gcs_cache_control", "private, max-age=0")
	v.SetDefault("storage.scan_store", "memory")
	v.SetDefault("storage.sqlite_path", "jobscan.db")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("portals", []map[string]any{
		{
			"name":         "DRDO",
			"url_template": "https://www.drdo.gov.in/careers",
			"base_url":     "https://www.drdo.gov.in",
			"kind":         "static",
		},
	})
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.Workers <= 0 {
		return fmt.Errorf("server.workers must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.PerHostRPS < 0 {
		return fmt.Errorf("crawler.per_host_rps must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Backend {
	case "", "memory":
	case "local":
		if strings.TrimSpace(c.Storage.BaseDir) == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case "gcs":
		if strings.TrimSpace(c.Storage.GCSBucket) == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	switch c.Storage.ScanStore {
	case "", "memory":
	case "sqlite":
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			return fmt.Errorf("storage.sqlite_path must be set for the sqlite scan store")
		}
	default:
		return fmt.Errorf("storage.scan_store %q is not supported", c.Storage.ScanStore)
	}
	if _, err := c.PortalConfigs(); err != nil {
		return err
	}
	return nil
}

// PortalConfigs converts the configured portal entries into validated jobs.PortalConfig values.
func (c Config) PortalConfigs() ([]jobs.PortalConfig, error) {
	if len(c.Portals) == 0 {
		return nil, errors.New("at least one portal must be configured")
	}
	seen := make(map[string]struct{}, len(c.Portals))
	out := make([]jobs.PortalConfig, 0, len(c.Portals))
	for i, entry := range c.Portals {
		portal, err := entry.toPortal()
		if err != nil {
			return nil, fmt.Errorf("portals[%d]: %w", i, err)
		}
		if _, dup := seen[portal.Name]; dup {
			return nil, fmt.Errorf("portals[%d]: duplicate portal name %q", i, portal.Name)
		}
		seen[portal.Name] = struct{}{}
		out = append(out, portal)
	}
	return out, nil
}

func (e PortalEntry) toPortal() (jobs.PortalConfig, error) {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return jobs.PortalConfig{}, errors.New("name is required")
	}
	kind, err := jobs.ParseAdapterKind(e.Kind)
	if err != nil {
		return jobs.PortalConfig{}, fmt.Errorf("portal %q: %w", name, err)
	}
	portal := jobs.PortalConfig{
		Name:        name,
		URLTemplate: strings.TrimSpace(e.URLTemplate),
		BaseURL:     strings.TrimSpace(e.BaseURL),
		Kind:        kind,
		Dynamic:     e.Dynamic,
	}
	if err := checkAbsolute(strings.ReplaceAll(portal.URLTemplate, jobs.KeywordPlaceholder, "x")); err != nil {
		return jobs.PortalConfig{}, fmt.Errorf("portal %q url_template: %w", name, err)
	}
	if portal.BaseURL != "" {
		if err := checkAbsolute(portal.BaseURL); err != nil {
			return jobs.PortalConfig{}, fmt.Errorf("portal %q base_url: %w", name, err)
		}
	}
	if kind == jobs.KindKeywordDriven && !portal.HasPlaceholder() {
		return jobs.PortalConfig{}, fmt.Errorf("portal %q: keyword portals need %s in url_template", name, jobs.KeywordPlaceholder)
	}
	return portal, nil
}

func checkAbsolute(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must be an absolute http(s) URL", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}

// FetchTimeout is the per-attempt HTTP timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RequestTimeout bounds one API request.
func (c Config) RequestTimeout() time.Duration {
	if c.Server.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}
