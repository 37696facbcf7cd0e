package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "no seed and no url",
			mutate: func(cfg *Config) {
				cfg.SeedFile = ""
				cfg.ProductURL = ""
			},
			wantErr: "seed file or product URL",
		},
		{
			name: "invalid product url",
			mutate: func(cfg *Config) {
				cfg.ProductURL = "http://"
			},
			wantErr: "product URL",
		},
		{
			name: "zero page size",
			mutate: func(cfg *Config) {
				cfg.OfferPageSize = 0
			},
			wantErr: "page size",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "backoff above max",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = 5 * time.Second
				cfg.RetryBackoffMax = time.Second
			},
			wantErr: "retry backoff",
		},
		{
			name: "offers template without id",
			mutate: func(cfg *Config) {
				cfg.OffersURLTemplate = "https://kaspi.kz/yml/offer-view/offers/"
			},
			wantErr: "offers URL template",
		},
		{
			name: "unknown export format",
			mutate: func(cfg *Config) {
				cfg.ExportFormat = "xml"
			},
			wantErr: "export format",
		},
		{
			name: "unknown driver",
			mutate: func(cfg *Config) {
				cfg.Database.Driver = "mysql"
			},
			wantErr: "database driver",
		},
		{
			name: "zero offer page cap",
			mutate: func(cfg *Config) {
				cfg.MaxOfferPages = 0
			},
			wantErr: "max offer pages",
		},
		{
			name: "zero interval",
			mutate: func(cfg *Config) {
				cfg.Interval = 0
			},
			wantErr: "interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.Interval != 15*time.Minute {
		t.Fatalf("interval = %v, want 15m", cfg.Interval)
	}
	if cfg.OfferPageSize != 20 {
		t.Fatalf("page size = %d, want 20", cfg.OfferPageSize)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	body := "product_url: https://kaspi.kz/shop/p/phone-1/\noffer_page_size: 10\ntimeout: 3s\ndatabase:\n  driver: sqlite3\n  path: /tmp/x.db\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OfferPageSize != 10 {
		t.Fatalf("page size = %d, want 10", cfg.OfferPageSize)
	}
	if cfg.Timeout != 3*time.Second {
		t.Fatalf("timeout = %v, want 3s", cfg.Timeout)
	}
	if cfg.Database.Driver != "sqlite3" || cfg.Database.ConnectionString() != "/tmp/x.db" {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.CityID != "710000000" {
		t.Fatalf("defaults should survive partial yaml, city = %q", cfg.CityID)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("TRACKER_INTERVAL", "60")
	t.Setenv("DB_NAME", "kaspi")
	t.Setenv("TRACKER_MAX_RETRIES", "3")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Interval != time.Minute {
		t.Fatalf("interval = %v, want 1m", cfg.Interval)
	}
	if cfg.Database.Name != "kaspi" {
		t.Fatalf("db name = %q", cfg.Database.Name)
	}
	if cfg.MaxRetries != 3 {
		t.Fatalf("max retries = %d", cfg.MaxRetries)
	}
	if !strings.Contains(cfg.Database.ConnectionString(), "dbname=kaspi") {
		t.Fatalf("dsn = %q", cfg.Database.ConnectionString())
	}
}

func TestApplyEnvInvalidInt(t *testing.T) {
	t.Setenv("TRACKER_OFFER_PARALLELISM", "many")
	if err := DefaultConfig().ApplyEnv(); err == nil {
		t.Fatalf("expected error for non-numeric parallelism")
	}
}

func TestLoadSeed(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "seed.json")
	if err := os.WriteFile(good, []byte(`{"product_url": "https://kaspi.kz/shop/p/phone-1/"}`), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	got, err := LoadSeed(good)
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	if got != "https://kaspi.kz/shop/p/phone-1/" {
		t.Fatalf("url = %q", got)
	}

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if _, err := LoadSeed(empty); err == nil {
		t.Fatalf("expected error for seed without product_url")
	}
}

func TestResolveProductURLPrefersOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SeedFile = filepath.Join(t.TempDir(), "missing.json")
	cfg.ProductURL = "https://kaspi.kz/shop/p/override/"
	got, err := cfg.ResolveProductURL()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != cfg.ProductURL {
		t.Fatalf("url = %q", got)
	}
}
