package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  workers: 3
auth:
  enabled: true
  api_key: secret
crawler:
  concurrency: 6
  user_agent: real-agent
  queue_depth: 128
  per_host_rps: 0.5
  per_host_burst: 1
http:
  timeout_seconds: 45
  max_retries: 4
headless:
  enabled: true
  max_parallel: 2
  settle_ms: 500
document:
  enabled: false
storage:
  backend: local
  base_dir: /tmp/exports
  prefix: out
logging:
  development: false
portals:
  - name: DRDO
    url_template: https://www.drdo.gov.in/careers
    base_url: https://www.drdo.gov.in
    kind: static
  - name: Search Board
    url_template: https://jobs.example.gov/search?q={keyword}
    kind: keyword
  - name: Careers SPA
    url_template: https://careers.example.gov/
    kind: dynamic
    dynamic:
      search_input: "#search"
      card: "div.card"
      card_link_attr: data-href
      location_field: ".loc"
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.Workers != 3 {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Crawler.Concurrency != 6 || cfg.Crawler.PerHostRPS != 0.5 {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.Document.Enabled {
		t.Fatalf("expected document extraction disabled")
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
	// Untouched keys keep their defaults.
	if cfg.HTTP.BackoffMaxMs != 2000 || cfg.Headless.NavTimeoutSec != 45 {
		t.Fatalf("expected defaults to survive partial overrides: %+v %+v", cfg.HTTP, cfg.Headless)
	}

	portals, err := cfg.PortalConfigs()
	if err != nil {
		t.Fatalf("PortalConfigs() error = %v", err)
	}
	if len(portals) != 3 {
		t.Fatalf("expected 3 portals, got %d", len(portals))
	}
	if portals[1].Kind != jobs.KindKeywordDriven || !portals[1].HasPlaceholder() {
		t.Fatalf("expected keyword portal, got %+v", portals[1])
	}
	dyn := portals[2]
	if dyn.Kind != jobs.KindDynamicRendered || dyn.Dynamic.SearchInput != "#search" ||
		dyn.Dynamic.CardLinkAttr != "data-href" || dyn.Dynamic.LocationFld != ".loc" {
		t.Fatalf("expected dynamic selectors to be decoded, got %+v", dyn.Dynamic)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Crawler.Concurrency != 4 || cfg.Storage.Backend != "memory" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	portals, err := cfg.PortalConfigs()
	if err != nil {
		t.Fatalf("PortalConfigs() error = %v", err)
	}
	if len(portals) != 1 || portals[0].Name != "DRDO" || portals[0].Kind != jobs.KindStatic {
		t.Fatalf("expected the DRDO careers portal by default, got %+v", portals)
	}
	if portals[0].BaseURL != "https://www.drdo.gov.in" {
		t.Fatalf("unexpected base url %q", portals[0].BaseURL)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("JOBSCAN_SERVER_PORT", "7070")
	t.Setenv("JOBSCAN_CRAWLER_CONCURRENCY", "1")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 || cfg.Crawler.Concurrency != 1 {
		t.Fatalf("expected env overrides, got port=%d concurrency=%d", cfg.Server.Port, cfg.Crawler.Concurrency)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"workers", func(c *Config) { c.Server.Workers = 0 }, "server.workers"},
		{"concurrency", func(c *Config) { c.Crawler.Concurrency = 0 }, "crawler.concurrency"},
		{"rps", func(c *Config) { c.Crawler.PerHostRPS = -1 }, "per_host_rps"},
		{"timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"headless", func(c *Config) { c.Headless.Enabled = true; c.Headless.MaxParallel = 0 }, "headless.max_parallel"},
		{"auth", func(c *Config) { c.Auth.Enabled = true; c.Auth.APIKey = "" }, "auth.api_key"},
		{"backend", func(c *Config) { c.Storage.Backend = "s3" }, "not supported"},
		{"gcs bucket", func(c *Config) { c.Storage.Backend = "gcs" }, "gcs_bucket"},
		{"scan store", func(c *Config) { c.Storage.ScanStore = "postgres" }, "scan_store"},
		{"sqlite path", func(c *Config) { c.Storage.ScanStore = "sqlite"; c.Storage.SQLitePath = " " }, "sqlite_path"},
		{"no portals", func(c *Config) { c.Portals = nil }, "at least one portal"},
		{"bad kind", func(c *Config) { c.Portals = []PortalEntry{{Name: "X", URLTemplate: "https://x.gov", Kind: "ftp"}} }, "unknown adapter kind"},
		{"relative url", func(c *Config) { c.Portals = []PortalEntry{{Name: "X", URLTemplate: "/careers", Kind: "static"}} }, "absolute"},
		{"missing placeholder", func(c *Config) {
			c.Portals = []PortalEntry{{Name: "X", URLTemplate: "https://x.gov/search", Kind: "keyword"}}
		}, "{keyword}"},
		{"duplicate", func(c *Config) {
			c.Portals = []PortalEntry{
				{Name: "X", URLTemplate: "https://x.gov", Kind: "static"},
				{Name: "X", URLTemplate: "https://y.gov", Kind: "static"},
			}
		}, "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Portals = append([]PortalEntry(nil), base.Portals...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRequestTimeoutFallback(t *testing.T) {
	t.Parallel()

	if got := (Config{}).RequestTimeout(); got != 60*time.Second {
		t.Fatalf("expected 60s fallback, got %v", got)
	}
}

func TestExampleConfigLoads(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	if err != nil {
		t.Fatalf("load example config: %v", err)
	}
	portals, err := cfg.PortalConfigs()
	if err != nil {
		t.Fatalf("portal configs: %v", err)
	}
	if len(portals) != 4 {
		t.Fatalf("expected 4 portals, got %d", len(portals))
	}
	if portals[3].Dynamic.CardLinkAttr != "onclick" {
		t.Fatalf("expected dynamic selectors to decode, got %+v", portals[3].Dynamic)
	}
	if cfg.Storage.ScanStore != "sqlite" {
		t.Fatalf("expected sqlite scan store, got %q", cfg.Storage.ScanStore)
	}
}
